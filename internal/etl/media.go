package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BartekS5/catalog-migrator/pkg/logger"
	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/BartekS5/catalog-migrator/pkg/utils"
)

// ImageOutcome is the result of EnsureImage.
type ImageOutcome int

const (
	ImageSkipped ImageOutcome = iota
	ImageAttached
	ImageFailed
)

func (o ImageOutcome) String() string {
	switch o {
	case ImageAttached:
		return "attached"
	case ImageFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// MediaResolver turns a media attachment id into a URL.
type MediaResolver interface {
	MediaURL(ctx context.Context, id int64) (string, error)
}

// DefaultImageFields are the legacy fields checked for a product image.
var DefaultImageFields = []string{"featured_image", "product_image", "image"}

// MediaSideloader attaches a representative image to migrated products.
type MediaSideloader struct {
	Resolver MediaResolver
	Store    MediaStore
	Fields   []string
	Timeout  time.Duration
	log      logger.Logger
}

func NewMediaSideloader(resolver MediaResolver, store MediaStore, timeout time.Duration, log logger.Logger) *MediaSideloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MediaSideloader{
		Resolver: resolver,
		Store:    store,
		Fields:   DefaultImageFields,
		Timeout:  timeout,
		log:      log,
	}
}

// EnsureImage attaches an image to entity unless it already has one.
// Failures are logged as warnings and never returned.
func (m *MediaSideloader) EnsureImage(ctx context.Context, entity *models.LocalProductEntity, rec *models.RemoteProductRecord, dryRun bool) ImageOutcome {
	if entity.HasImage() {
		return ImageSkipped
	}
	if dryRun {
		m.log.DryRun("Would sideload image for %s", rec.Slug)
		return ImageSkipped
	}

	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	url, found, err := m.candidateURL(ctx, rec)
	if err != nil {
		m.log.Warning("Image for %s could not be resolved: %v", rec.Slug, err)
		return ImageFailed
	}
	if !found {
		return ImageSkipped
	}

	ref, err := m.Store.SideloadAndAttach(ctx, url, entity)
	if err != nil {
		m.log.Warning("Image for %s could not be sideloaded from %s: %v", rec.Slug, url, err)
		return ImageFailed
	}
	entity.Image = ref
	return ImageAttached
}

// candidateURL checks the legacy image fields, then the primary media
// reference of the record. A field holding 0 or false means no image and
// falls through to the next candidate.
func (m *MediaSideloader) candidateURL(ctx context.Context, rec *models.RemoteProductRecord) (string, bool, error) {
	for _, field := range m.Fields {
		v, ok := rec.FieldBag.Get(field)
		if !ok || utils.IsEmpty(v) {
			continue
		}
		url, found, err := m.fromValue(ctx, v)
		if err != nil || found {
			return url, found, err
		}
	}

	if rec.MediaReference > 0 {
		url, err := m.Resolver.MediaURL(ctx, rec.MediaReference)
		if err != nil {
			return "", false, fmt.Errorf("media %d: %w", rec.MediaReference, err)
		}
		return url, true, nil
	}
	return "", false, nil
}

func (m *MediaSideloader) fromValue(ctx context.Context, v interface{}) (string, bool, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		obj := models.FieldBag(val)
		for _, key := range []string{"url", "source_url", "sizes.large"} {
			if s := obj.String(key, ""); isURL(s) {
				return s, true, nil
			}
		}
		for _, key := range []string{"id", "ID"} {
			if obj.Has(key) {
				return m.fromValue(ctx, obj.First(key))
			}
		}
		return "", false, fmt.Errorf("image object has neither a URL nor an id")
	case []interface{}:
		return m.fromValue(ctx, utils.GetFirst(val))
	case bool:
		if !val {
			return "", false, nil
		}
	}

	s := utils.ToString(v)
	if isURL(s) {
		return s, true, nil
	}
	if utils.IsNumeric(s) {
		id, _ := utils.ConvertToInt(s)
		if id <= 0 {
			return "", false, nil
		}
		url, err := m.Resolver.MediaURL(ctx, int64(id))
		if err != nil {
			return "", false, fmt.Errorf("media %d: %w", id, err)
		}
		return url, true, nil
	}
	return "", false, fmt.Errorf("unrecognised image reference %q", s)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
