// Package catalog pages through the server's song and album listings.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/errs"
)

const (
	DefaultPageSize = 9
	// MaxPageSize is the largest page the server will return.
	MaxPageSize = 10

	DefaultCacheTTL  = 30 * time.Second
	defaultCacheSize = 128
)

type Request struct {
	Page     int
	PageSize int
	Search   string
}

func (r Request) normalized() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
	r.Search = strings.TrimSpace(r.Search)
	return r
}

type listResponse struct {
	Data       []listItem `json:"data"`
	TotalItems int        `json:"totalItems"`
}

type listItem struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	AudioFilePath string `json:"audioFilePath"`
	PicFilePath   string `json:"picFilePath"`
	AlbumID       uint   `json:"albumId"`
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(cl *Client) {
		cl.log = log
	}
}

// WithCacheTTL sets how long a fetched page is reused. Zero disables the
// cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cl *Client) {
		cl.ttl = ttl
	}
}

// Client is safe for concurrent use. Identical page requests in flight at
// the same time share one HTTP call.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
	ttl     time.Duration
	cache   *expirable.LRU[string, models.Page]
	group   singleflight.Group
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.log == nil {
		c.log = logger.GetLogger().Named("catalog")
	}
	if c.ttl > 0 {
		c.cache = expirable.NewLRU[string, models.Page](defaultCacheSize, nil, c.ttl)
	}
	return c
}

func (c *Client) Songs(ctx context.Context, req Request) (models.Page, error) {
	return c.List(ctx, models.CatalogSongs, req)
}

func (c *Client) Albums(ctx context.Context, req Request) (models.Page, error) {
	return c.List(ctx, models.CatalogAlbums, req)
}

// List fetches one page of the given catalog.
func (c *Client) List(ctx context.Context, catalog models.Catalog, req Request) (models.Page, error) {
	if catalog != models.CatalogSongs && catalog != models.CatalogAlbums {
		return models.Page{}, errs.New(errs.CodeInvalidInput, fmt.Sprintf("unknown catalog %q", catalog), nil)
	}
	req = req.normalized()
	key := fmt.Sprintf("%s|%d|%d|%s", catalog, req.Page, req.PageSize, req.Search)

	if c.cache != nil {
		if page, ok := c.cache.Get(key); ok {
			return page, nil
		}
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		page, err := c.fetch(ctx, catalog, req)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Add(key, page)
		}
		return page, nil
	})
	if err != nil {
		return models.Page{}, err
	}
	if shared {
		c.log.Debugf("shared in-flight fetch for %s", key)
	}
	return v.(models.Page), nil
}

// Invalidate drops every cached page.
func (c *Client) Invalidate() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

func (c *Client) fetch(ctx context.Context, catalog models.Catalog, req Request) (models.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("page_size", strconv.Itoa(req.PageSize))
	if req.Search != "" {
		q.Set("search", req.Search)
	}
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, catalog, q.Encode())

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Page{}, errs.New(errs.CodeInvalidInput, "building request", err)
	}
	hreq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(hreq)
	if err != nil {
		return models.Page{}, errs.RequestFailed(errs.CodeBrowseRequestFailed, 0, "GET /"+string(catalog), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Page{}, errs.RequestFailed(errs.CodeBrowseRequestFailed, resp.StatusCode,
			fmt.Sprintf("GET /%s returned %d: %s", catalog, resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return models.Page{}, errs.RequestFailed(errs.CodeBrowseRequestFailed, resp.StatusCode, "decoding response", err)
	}

	page := models.Page{
		Catalog:    catalog,
		Items:      make([]models.Item, len(lr.Data)),
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalItems: lr.TotalItems,
		Search:     req.Search,
	}
	for i, it := range lr.Data {
		path := it.AudioFilePath
		if path == "" {
			path = it.PicFilePath
		}
		page.Items[i] = models.Item{ID: it.ID, Name: it.Name, FilePath: path, AlbumID: it.AlbumID}
	}
	c.log.Debugf("fetched %s page %d/%d (%d items)", catalog, page.Page, page.TotalPages(), len(page.Items))
	return page, nil
}
