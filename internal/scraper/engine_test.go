package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/maltedev/alkoteka-scraper/internal/fetcher"
	"github.com/maltedev/alkoteka-scraper/internal/models"
	"github.com/maltedev/alkoteka-scraper/internal/parser"
	"github.com/maltedev/alkoteka-scraper/internal/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const seedURL = "https://alkoteka.com/catalog/vino"

type fakeSite struct {
	mu       sync.Mutex
	pages    map[string]string
	statuses map[string]int
	requests []request.Descriptor
}

func newFakeSite() *fakeSite {
	return &fakeSite{pages: map[string]string{}, statuses: map[string]int{}}
}

func (s *fakeSite) Fetch(ctx context.Context, desc request.Descriptor) (*fetcher.Page, error) {
	s.mu.Lock()
	s.requests = append(s.requests, desc)
	body, ok := s.pages[desc.URL]
	status := s.statuses[desc.URL]
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if status != 0 {
		return nil, &fetcher.StatusError{URL: desc.URL, StatusCode: status}
	}
	if !ok {
		return nil, &fetcher.StatusError{URL: desc.URL, StatusCode: http.StatusNotFound}
	}
	return &fetcher.Page{URL: desc.URL, FinalURL: desc.URL, Body: []byte(body), StatusCode: http.StatusOK}, nil
}

func (s *fakeSite) fetched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r.URL)
	}
	return out
}

func (s *fakeSite) descriptors() []request.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]request.Descriptor(nil), s.requests...)
}

func categoryPage(next string, links ...string) string {
	html := `<html><body><div class="catalog-list">`
	for _, l := range links {
		html += fmt.Sprintf(`<div class="product-card"><a class="product-card__link" href="%s">item</a></div>`, l)
	}
	html += `</div>`
	if next != "" {
		html += fmt.Sprintf(`<div class="pagination"><a rel="next" href="%s">Далее</a></div>`, next)
	}
	return html + `</body></html>`
}

func productPage(id, title string) string {
	return fmt.Sprintf(`<html><body><div class="product-info" data-product-id="%s">
		<h1 class="product-info__title">%s</h1>
		<span class="product-price__current">100 ₽</span>
	</div></body></html>`, id, title)
}

type collectSink struct {
	mu       sync.Mutex
	products []models.Product
}

func (c *collectSink) Emit(ctx context.Context, p models.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = append(c.products, p)
	return nil
}

func (c *collectSink) rpcs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p.RPC)
	}
	sort.Strings(out)
	return out
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Emit(ctx context.Context, p models.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(site fetcher.Fetcher, aug *request.Augmenter, sinks []Sink, opts Options) *Engine {
	opts.Logger = quietLogger()
	opts.Now = func() time.Time { return time.Unix(1700000000, 0) }
	if opts.Workers == 0 {
		opts.Workers = 3
	}
	return NewEngine(site, aug, nil, parser.NewAlkotekaParser(parser.DefaultSelectors()), sinks, opts)
}

func twoPageCatalog() *fakeSite {
	site := newFakeSite()
	site.pages[seedURL] = categoryPage("?page=2",
		"/product/vino/a_1",
		"/product/vino/b_2",
		"https://example.org/product/x_9",
	)
	site.pages[seedURL+"?page=2"] = categoryPage("",
		"/product/vino/b_2",
		"/product/vino/c_3#reviews",
	)
	site.pages["https://alkoteka.com/product/vino/a_1"] = productPage("1", "A")
	site.pages["https://alkoteka.com/product/vino/b_2"] = productPage("2", "B")
	site.pages["https://alkoteka.com/product/vino/c_3"] = productPage("3", "C")
	return site
}

func TestRunCrawlsCategoriesAndProducts(t *testing.T) {
	site := twoPageCatalog()
	sink := &collectSink{}
	engine := newTestEngine(site, nil, []Sink{sink}, Options{})

	stats, err := engine.Run(context.Background(), []string{seedURL})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, sink.rpcs())
	assert.Equal(t, int64(2), stats.CategoryPages)
	assert.Equal(t, int64(3), stats.Products)
	assert.Equal(t, int64(0), stats.Failures)
	assert.Equal(t, 0, stats.Pending)
	assert.False(t, stats.Running)

	fetched := site.fetched()
	assert.Len(t, fetched, 5, "every page is fetched exactly once")
	assert.NotContains(t, fetched, "https://example.org/product/x_9")

	for _, p := range sink.products {
		assert.Empty(t, p.Validate())
		assert.Equal(t, int64(1700000000), p.Timestamp)
	}
}

func TestRunAttachesRegionAndProxyToEveryRequest(t *testing.T) {
	site := twoPageCatalog()
	pool := []string{"http://p1:3128", "http://p2:3128"}
	aug := request.NewAugmenter(request.DefaultRegion(), pool)
	engine := newTestEngine(site, aug, nil, Options{})

	_, err := engine.Run(context.Background(), []string{seedURL})
	require.NoError(t, err)

	descs := site.descriptors()
	require.NotEmpty(t, descs)
	for _, d := range descs {
		value, ok := d.Cookie("current_city_id")
		assert.True(t, ok, d.URL)
		assert.Equal(t, "2", value)
		assert.Contains(t, pool, d.Proxy)
	}
}

func TestRunStopsAtPaginationCycle(t *testing.T) {
	site := newFakeSite()
	site.pages[seedURL] = categoryPage("?page=2", "/product/vino/a_1")
	site.pages[seedURL+"?page=2"] = categoryPage(seedURL+"#top", "/product/vino/a_1")
	site.pages["https://alkoteka.com/product/vino/a_1"] = productPage("1", "A")

	sink := &collectSink{}
	engine := newTestEngine(site, nil, []Sink{sink}, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := engine.Run(context.Background(), []string{seedURL})
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not terminate")
	}

	assert.Equal(t, []string{"1"}, sink.rpcs())
	assert.Len(t, site.fetched(), 3)
}

func TestRunDropsFailedCategoryBranch(t *testing.T) {
	site := twoPageCatalog()
	site.statuses[seedURL+"?page=2"] = http.StatusInternalServerError
	site.statuses["https://alkoteka.com/catalog/pivo"] = http.StatusForbidden

	sink := &collectSink{}
	engine := newTestEngine(site, nil, []Sink{sink}, Options{})

	stats, err := engine.Run(context.Background(), []string{seedURL, "https://alkoteka.com/catalog/pivo"})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, sink.rpcs())
	assert.Equal(t, int64(2), stats.Failures)
	assert.NotContains(t, site.fetched(), "https://alkoteka.com/product/vino/c_3")
}

func TestRunSkipsFailedProduct(t *testing.T) {
	site := twoPageCatalog()
	site.statuses["https://alkoteka.com/product/vino/b_2"] = http.StatusNotFound

	sink := &collectSink{}
	engine := newTestEngine(site, nil, []Sink{sink}, Options{})

	stats, err := engine.Run(context.Background(), []string{seedURL})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "3"}, sink.rpcs())
	assert.Equal(t, int64(1), stats.Failures)
}

func TestRunHonoursPerCategoryCap(t *testing.T) {
	site := twoPageCatalog()
	sink := &collectSink{}
	engine := newTestEngine(site, nil, []Sink{sink}, Options{MaxItemsPerCategory: 2, Workers: 1})

	stats, err := engine.Run(context.Background(), []string{seedURL})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, sink.rpcs())
	assert.NotContains(t, site.fetched(), seedURL+"?page=2")
	assert.Equal(t, map[string]int{seedURL: 2}, stats.PerCategory)
}

func TestRunDeduplicatesSeeds(t *testing.T) {
	site := twoPageCatalog()
	sink := &collectSink{}
	engine := newTestEngine(site, nil, []Sink{sink}, Options{})

	_, err := engine.Run(context.Background(), []string{seedURL, "HTTPS://ALKOTEKA.COM/catalog/vino#top", seedURL})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, sink.rpcs())
	assert.Len(t, site.fetched(), 5)
}

func TestRunWithoutSeeds(t *testing.T) {
	engine := newTestEngine(newFakeSite(), nil, nil, Options{})

	_, err := engine.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoSeeds)

	_, err = engine.Run(context.Background(), []string{"not a url", "ftp://alkoteka.com/x"})
	assert.ErrorIs(t, err, ErrNoSeeds)
}

func TestRunCancelledEmitsNothing(t *testing.T) {
	site := twoPageCatalog()
	sink := &collectSink{}
	engine := newTestEngine(site, nil, []Sink{sink}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, []string{seedURL})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.products)
}

func TestRunContinuesAfterSinkError(t *testing.T) {
	site := newFakeSite()
	site.pages[seedURL] = categoryPage("", "/product/vino/a_1")
	site.pages["https://alkoteka.com/product/vino/a_1"] = productPage("1", "A")

	failing := new(MockSink)
	failing.On("Emit", mock.Anything, mock.MatchedBy(func(p models.Product) bool {
		return p.RPC == "1"
	})).Return(errors.New("redis unavailable")).Once()
	sink := &collectSink{}

	engine := newTestEngine(site, nil, []Sink{failing, sink}, Options{})
	stats, err := engine.Run(context.Background(), []string{seedURL})
	require.NoError(t, err)

	failing.AssertExpectations(t)
	assert.Equal(t, []string{"1"}, sink.rpcs())
	assert.Equal(t, int64(1), stats.SinkErrors)
}

func TestAllowedHostsExtendSite(t *testing.T) {
	site := newFakeSite()
	site.pages[seedURL] = categoryPage("", "https://www.alkoteka.com/product/vino/a_1", "https://cdn.alkoteka.ru/product/b_2")
	site.pages["https://www.alkoteka.com/product/vino/a_1"] = productPage("1", "A")
	site.pages["https://cdn.alkoteka.ru/product/b_2"] = productPage("2", "B")

	sink := &collectSink{}
	engine := newTestEngine(site, nil, []Sink{sink}, Options{AllowedHosts: []string{"cdn.alkoteka.ru"}})

	_, err := engine.Run(context.Background(), []string{seedURL})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, sink.rpcs())
}
