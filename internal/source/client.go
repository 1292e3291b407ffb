// Package source reads products, media and price history from the legacy
// REST API.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/BartekS5/catalog-migrator/pkg/utils"
	"golang.org/x/time/rate"
)

// HTTPClient is the subset of *http.Client the fetcher needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Pagination says where a resource reports its totals.
type Pagination int

const (
	// PaginationHeaders reads X-WP-Total / X-WP-TotalPages and expects a bare JSON array.
	PaginationHeaders Pagination = iota
	// PaginationEnvelope expects {"data": [...], "pages": N, "total": N}.
	PaginationEnvelope
)

const (
	HeaderTotal      = "X-WP-Total"
	HeaderTotalPages = "X-WP-TotalPages"
)

// Resource describes one paged collection of the legacy API.
type Resource struct {
	Path       string
	Fields     []string
	Secret     bool
	Pagination Pagination
}

var (
	ProductsResource = Resource{
		Path:       "/products",
		Fields:     []string{"id", "slug", "title", "status", "featured_media", "acf"},
		Pagination: PaginationHeaders,
	}
	PriceHistoryResource = Resource{
		Path:       "/price-history",
		Secret:     true,
		Pagination: PaginationEnvelope,
	}
)

// ErrNotFound is returned when a single product lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Page is one page of records plus the totals the API reported.
type Page[T any] struct {
	Number     int
	Records    []T
	TotalCount int
	TotalPages int
}

type envelope[T any] struct {
	Data  []T            `json:"data"`
	Pages models.FlexInt `json:"pages"`
	Total models.FlexInt `json:"total"`
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	Secret            string
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string
	HTTPClient        HTTPClient
}

// Client talks to the legacy API. It performs no retries.
type Client struct {
	baseURL   string
	secret    string
	userAgent string
	http      HTTPClient
	limiter   *rate.Limiter
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = "catalog-migrator/1.0"
	}

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		secret:    opts.Secret,
		userAgent: ua,
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// FetchPage retrieves one page of res. Totals are taken from the headers or
// the envelope depending on res.Pagination.
func FetchPage[T any](ctx context.Context, c *Client, res Resource, page, perPage int) (*Page[T], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if len(res.Fields) > 0 {
		q.Set("_fields", strings.Join(res.Fields, ","))
	}
	if res.Secret {
		q.Set("secret", c.secret)
	}

	op := fmt.Sprintf("fetch %s page %d", res.Path, page)
	body, header, err := c.get(ctx, op, res.Path, q)
	if err != nil {
		return nil, err
	}

	out := &Page[T]{Number: page}
	switch res.Pagination {
	case PaginationEnvelope:
		var env envelope[T]
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, &ConnectionError{Op: op, URL: c.baseURL + res.Path, Err: fmt.Errorf("invalid JSON: %w", err)}
		}
		out.Records = env.Data
		out.TotalCount = int(env.Total)
		out.TotalPages = int(env.Pages)
	default:
		if err := json.Unmarshal(body, &out.Records); err != nil {
			return nil, &ConnectionError{Op: op, URL: c.baseURL + res.Path, Err: fmt.Errorf("invalid JSON: %w", err)}
		}
		out.TotalCount = headerInt(header, HeaderTotal)
		out.TotalPages = headerInt(header, HeaderTotalPages)
	}

	if out.TotalPages == 0 && out.TotalCount > 0 && perPage > 0 {
		out.TotalPages = (out.TotalCount + perPage - 1) / perPage
	}
	return out, nil
}

// Products fetches one page of product records.
func (c *Client) Products(ctx context.Context, page, perPage int) (*Page[models.RemoteProductRecord], error) {
	return FetchPage[models.RemoteProductRecord](ctx, c, ProductsResource, page, perPage)
}

// PriceHistory fetches one page of price observations.
func (c *Client) PriceHistory(ctx context.Context, page, perPage int) (*Page[models.RemotePriceRecord], error) {
	return FetchPage[models.RemotePriceRecord](ctx, c, PriceHistoryResource, page, perPage)
}

// Product looks a single product up by numeric id or by slug.
func (c *Client) Product(ctx context.Context, identifier string) (*models.RemoteProductRecord, error) {
	identifier = strings.TrimSpace(identifier)
	q := url.Values{}
	q.Set("_fields", strings.Join(ProductsResource.Fields, ","))

	if utils.IsNumeric(identifier) {
		op := "fetch product " + identifier
		body, _, err := c.get(ctx, op, "/products/"+identifier, q)
		if err != nil {
			var connErr *ConnectionError
			if errors.As(err, &connErr) && connErr.StatusCode == http.StatusNotFound {
				return nil, ErrNotFound
			}
			return nil, err
		}
		var rec models.RemoteProductRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, &ConnectionError{Op: op, URL: c.baseURL + "/products/" + identifier, Err: fmt.Errorf("invalid JSON: %w", err)}
		}
		return &rec, nil
	}

	q.Set("slug", identifier)
	op := "fetch product slug " + identifier
	body, _, err := c.get(ctx, op, "/products", q)
	if err != nil {
		return nil, err
	}
	var recs []models.RemoteProductRecord
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, &ConnectionError{Op: op, URL: c.baseURL + "/products", Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// MediaURL resolves a media attachment id to its source URL.
func (c *Client) MediaURL(ctx context.Context, id int64) (string, error) {
	q := url.Values{}
	q.Set("_fields", "source_url")
	path := "/media/" + strconv.FormatInt(id, 10)
	op := "resolve media " + strconv.FormatInt(id, 10)

	body, _, err := c.get(ctx, op, path, q)
	if err != nil {
		return "", err
	}
	var media struct {
		SourceURL string `json:"source_url"`
	}
	if err := json.Unmarshal(body, &media); err != nil {
		return "", &ConnectionError{Op: op, URL: c.baseURL + path, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if media.SourceURL == "" {
		return "", ErrNotFound
	}
	return media.SourceURL, nil
}

// PriceHistoryCount returns the size of the remote price history.
func (c *Client) PriceHistoryCount(ctx context.Context) (*models.PriceHistoryStats, error) {
	q := url.Values{}
	q.Set("secret", c.secret)
	op := "count price history"

	body, _, err := c.get(ctx, op, "/price-history/count", q)
	if err != nil {
		return nil, err
	}
	var stats models.PriceHistoryStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, &ConnectionError{Op: op, URL: c.baseURL + "/price-history/count", Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	return &stats, nil
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values) ([]byte, http.Header, error) {
	endpoint := c.baseURL + path
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	redacted := redact(endpoint)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, &ConnectionError{Op: op, URL: redacted, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, &ConnectionError{Op: op, URL: redacted, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &ConnectionError{Op: op, URL: redacted, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &ConnectionError{Op: op, URL: redacted, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &ConnectionError{
			Op:         op,
			URL:        redacted,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet(body)),
		}
	}
	return body, resp.Header, nil
}

func headerInt(h http.Header, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(h.Get(key)))
	if err != nil {
		return 0
	}
	return n
}

// redact hides the shared secret in URLs that end up in logs.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	if q.Has("secret") {
		q.Set("secret", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
