package etl

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/BartekS5/catalog-migrator/pkg/logger"
	"github.com/BartekS5/catalog-migrator/pkg/models"
)

// IdentityResolver maps price records to local product ids. The index is
// built once and held for the run; Rebuild refreshes it on demand.
type IdentityResolver struct {
	store ProductStore
	log   logger.Logger

	mu    sync.RWMutex
	index map[string]int64
	built bool
}

func NewIdentityResolver(store ProductStore, log logger.Logger) *IdentityResolver {
	return &IdentityResolver{store: store, log: log, index: make(map[string]int64)}
}

// Build scans the product store unless the index is already built.
func (r *IdentityResolver) Build(ctx context.Context) error {
	r.mu.RLock()
	built := r.built
	r.mu.RUnlock()
	if built {
		return nil
	}
	return r.Rebuild(ctx)
}

// Rebuild rescans the product store and replaces the index.
func (r *IdentityResolver) Rebuild(ctx context.Context) error {
	ids, err := r.store.ScanIdentities(ctx)
	if err != nil {
		return err
	}

	index := make(map[string]int64, len(ids)*2)
	for _, id := range ids {
		if id.Slug != "" {
			index[strings.ToLower(id.Slug)] = id.ID
		}
	}
	// Remote ids are a secondary key; a slug that looks like an id keeps priority.
	for _, id := range ids {
		if id.RemoteID == 0 {
			continue
		}
		key := strconv.FormatInt(id.RemoteID, 10)
		if _, taken := index[key]; !taken {
			index[key] = id.ID
		}
	}

	r.mu.Lock()
	r.index = index
	r.built = true
	r.mu.Unlock()

	r.log.Info("Identity index built with %d products", len(ids))
	return nil
}

// Size is the number of keys in the index.
func (r *IdentityResolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}

// Resolve returns the local product id for rec: by slug, then by remote id
// as an index key, then by remote id as a local entity id.
func (r *IdentityResolver) Resolve(ctx context.Context, rec *models.RemotePriceRecord) (int64, bool) {
	r.mu.RLock()
	if slug := strings.ToLower(strings.TrimSpace(rec.ProductSlug)); slug != "" {
		if id, ok := r.index[slug]; ok {
			r.mu.RUnlock()
			return id, true
		}
	}
	remote := int64(rec.ProductID)
	if remote > 0 {
		if id, ok := r.index[strconv.FormatInt(remote, 10)]; ok {
			r.mu.RUnlock()
			return id, true
		}
	}
	r.mu.RUnlock()

	if remote <= 0 {
		return 0, false
	}
	entity, err := r.store.FindByID(ctx, remote)
	if err != nil {
		r.log.Warning("Lookup of product %d failed: %v", remote, err)
		return 0, false
	}
	if entity == nil || entity.Type == "" {
		return 0, false
	}
	return entity.ID, true
}
