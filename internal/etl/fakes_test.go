package etl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/BartekS5/catalog-migrator/internal/config"
	"github.com/BartekS5/catalog-migrator/internal/source"
	"github.com/BartekS5/catalog-migrator/pkg/logger"
	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func loadMapping(t *testing.T) *models.MappingConfig {
	t.Helper()
	m, err := config.LoadMapping("")
	require.NoError(t, err)
	return m
}

// memProductStore is an in-memory ProductStore, TaxonomyStore and MediaStore.
type memProductStore struct {
	mu       sync.Mutex
	bySlug   map[string]*models.LocalProductEntity
	nextID   int64
	writes   int
	failSlug string
	mediaErr error
}

func newMemProductStore() *memProductStore {
	return &memProductStore{bySlug: make(map[string]*models.LocalProductEntity)}
}

func (s *memProductStore) FindBySlug(_ context.Context, slug string) (*models.LocalProductEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.bySlug[slug]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *memProductStore) FindByID(_ context.Context, id int64) (*models.LocalProductEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.bySlug {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memProductStore) CreateOrUpdate(_ context.Context, e *models.LocalProductEntity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Slug == s.failSlug {
		return false, errors.New("duplicate key")
	}
	s.writes++
	if existing, ok := s.bySlug[e.Slug]; ok {
		e.ID = existing.ID
		cp := *e
		cp.TaxonomyRefs = existing.TaxonomyRefs
		cp.Image = existing.Image
		s.bySlug[e.Slug] = &cp
		return false, nil
	}
	s.nextID++
	e.ID = s.nextID
	cp := *e
	s.bySlug[e.Slug] = &cp
	return true, nil
}

func (s *memProductStore) ScanIdentities(_ context.Context) ([]models.ProductIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProductIdentity
	for _, e := range s.bySlug {
		out = append(out, models.ProductIdentity{ID: e.ID, RemoteID: e.RemoteID, Slug: e.Slug, Type: e.Type})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memProductStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.bySlug)), nil
}

func (s *memProductStore) Assign(_ context.Context, id int64, taxonomy, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.bySlug {
		if e.ID != id {
			continue
		}
		s.writes++
		if e.TaxonomyRefs == nil {
			e.TaxonomyRefs = make(map[string][]string)
		}
		for _, v := range e.TaxonomyRefs[taxonomy] {
			if v == value {
				return nil
			}
		}
		e.TaxonomyRefs[taxonomy] = append(e.TaxonomyRefs[taxonomy], value)
		return nil
	}
	return fmt.Errorf("product %d not found", id)
}

func (s *memProductStore) SideloadAndAttach(_ context.Context, url string, e *models.LocalProductEntity) (*models.MediaRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mediaErr != nil {
		return nil, s.mediaErr
	}
	s.writes++
	ref := &models.MediaRef{FileID: "file-" + e.Slug, SourceURL: url, AttachedAt: time.Now()}
	if stored, ok := s.bySlug[e.Slug]; ok {
		stored.Image = ref
	}
	return ref, nil
}

func (s *memProductStore) get(slug string) *models.LocalProductEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bySlug[slug]
}

func (s *memProductStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// memPriceStore keeps rows by their unique key.
type memPriceStore struct {
	mu     sync.Mutex
	rows   map[models.PriceKey]models.LocalPriceRow
	writes int
}

func newMemPriceStore() *memPriceStore {
	return &memPriceStore{rows: make(map[models.PriceKey]models.LocalPriceRow)}
}

func (s *memPriceStore) Upsert(_ context.Context, row models.LocalPriceRow) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	_, exists := s.rows[row.Key()]
	s.rows[row.Key()] = row
	return !exists, nil
}

// mockPriceStore is used where calls themselves are asserted.
type mockPriceStore struct {
	mock.Mock
}

func (m *mockPriceStore) Upsert(ctx context.Context, row models.LocalPriceRow) (bool, error) {
	args := m.Called(ctx, row)
	return args.Bool(0), args.Error(1)
}

// fakeSource serves canned pages and records every page request.
type fakeSource struct {
	mu         sync.Mutex
	products   [][]models.RemoteProductRecord
	prices     [][]models.RemotePriceRecord
	failures   map[int]int
	media      map[int64]string
	stats      models.PriceHistoryStats
	hideTotals bool
	// strictEnd answers pages past the last one with 400, like WordPress.
	strictEnd  bool
	calls      []int
}

func (f *fakeSource) fail(page int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, page)
	if f.failures[page] > 0 {
		f.failures[page]--
		return &source.ConnectionError{Op: "fetch page " + strconv.Itoa(page), URL: "http://legacy.test", StatusCode: 502, Err: errors.New("bad gateway")}
	}
	if f.strictEnd && page > len(f.products) {
		return &source.ConnectionError{Op: "fetch page " + strconv.Itoa(page), URL: "http://legacy.test", StatusCode: 400, Err: errors.New("rest_post_invalid_page_number")}
	}
	return nil
}

func (f *fakeSource) Products(_ context.Context, page, _ int) (*source.Page[models.RemoteProductRecord], error) {
	if err := f.fail(page); err != nil {
		return nil, err
	}
	out := &source.Page[models.RemoteProductRecord]{Number: page, TotalPages: len(f.products)}
	for _, p := range f.products {
		out.TotalCount += len(p)
	}
	if f.hideTotals {
		out.TotalPages, out.TotalCount = 0, 0
	}
	if page >= 1 && page <= len(f.products) {
		out.Records = append(out.Records, f.products[page-1]...)
	}
	return out, nil
}

func (f *fakeSource) Product(_ context.Context, identifier string) (*models.RemoteProductRecord, error) {
	for _, p := range f.products {
		for _, rec := range p {
			if rec.Slug == identifier || strconv.FormatInt(rec.ID, 10) == identifier {
				cp := rec
				return &cp, nil
			}
		}
	}
	return nil, source.ErrNotFound
}

func (f *fakeSource) MediaURL(_ context.Context, id int64) (string, error) {
	if u, ok := f.media[id]; ok {
		return u, nil
	}
	return "", &source.ConnectionError{Op: "resolve media", URL: "http://legacy.test/media", StatusCode: 404, Err: errors.New("not found")}
}

func (f *fakeSource) PriceHistory(_ context.Context, page, _ int) (*source.Page[models.RemotePriceRecord], error) {
	if err := f.fail(page); err != nil {
		return nil, err
	}
	out := &source.Page[models.RemotePriceRecord]{Number: page, TotalPages: len(f.prices)}
	if page >= 1 && page <= len(f.prices) {
		out.Records = append(out.Records, f.prices[page-1]...)
		out.TotalCount += len(f.prices[page-1])
	}
	return out, nil
}

func (f *fakeSource) PriceHistoryCount(_ context.Context) (*models.PriceHistoryStats, error) {
	stats := f.stats
	return &stats, nil
}

func (f *fakeSource) pageCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

// memCheckpoints mirrors the checkpoint package in memory.
type memCheckpoints struct {
	last    map[models.Job]int
	total   map[models.Job]int
	failed  map[models.Job]map[int]bool
	cleared int
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{last: map[models.Job]int{}, total: map[models.Job]int{}, failed: map[models.Job]map[int]bool{}}
}

func (c *memCheckpoints) Resume(_ context.Context, job models.Job, _ string) (models.Checkpoint, error) {
	cp := models.Checkpoint{NextPage: c.last[job] + 1, TotalPages: c.total[job]}
	for p := range c.failed[job] {
		cp.FailedPages = append(cp.FailedPages, p)
	}
	sort.Ints(cp.FailedPages)
	return cp, nil
}

func (c *memCheckpoints) MarkCompleted(_ context.Context, job models.Job, _ string, page, totalPages int) error {
	if page > c.last[job] {
		c.last[job] = page
	}
	if totalPages > 0 {
		c.total[job] = totalPages
	}
	delete(c.failed[job], page)
	return nil
}

func (c *memCheckpoints) MarkFailed(_ context.Context, job models.Job, _ string, page int) error {
	if c.failed[job] == nil {
		c.failed[job] = map[int]bool{}
	}
	c.failed[job][page] = true
	return nil
}

func (c *memCheckpoints) Clear(_ context.Context, job models.Job, _ string) error {
	delete(c.last, job)
	delete(c.total, job)
	delete(c.failed, job)
	c.cleared++
	return nil
}

// memLocker hands out one lock per name.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocker) Acquire(_ context.Context, name string, _ time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[name] {
		return nil, ErrRunLocked
	}
	l.held[name] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
		return nil
	}, nil
}

func newTestOrchestrator(t *testing.T, src *fakeSource, products *memProductStore, prices PriceHistoryStore) (*Orchestrator, *logger.RunLog) {
	t.Helper()
	log := logger.NewMemory()
	o, err := NewOrchestrator(src, Stores{
		Products: products,
		Taxonomy: products,
		Media:    products,
		Prices:   prices,
	}, loadMapping(t), log)
	require.NoError(t, err)
	o.RetryDelay = 0
	o.sleep = func(context.Context, time.Duration) error { return nil }
	return o, log
}

func product(id int64, slug, title string, bag models.FieldBag) models.RemoteProductRecord {
	if bag == nil {
		bag = models.FieldBag{}
	}
	return models.RemoteProductRecord{ID: id, Slug: slug, Title: title, Status: "publish", FieldBag: bag}
}

func scooterPages(pages, perPage int) [][]models.RemoteProductRecord {
	out := make([][]models.RemoteProductRecord, pages)
	id := int64(100)
	for p := range out {
		for i := 0; i < perPage; i++ {
			id++
			out[p] = append(out[p], product(id, fmt.Sprintf("scooter-%d", id), fmt.Sprintf("Apollo City %d", id), models.FieldBag{
				"brand":                 "Apollo",
				"nominal_motor_wattage": "500",
				"deck_length":           "21 in",
			}))
		}
	}
	return out
}
