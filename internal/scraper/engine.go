package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/alkoteka-scraper/internal/fetcher"
	"github.com/maltedev/alkoteka-scraper/internal/models"
	"github.com/maltedev/alkoteka-scraper/internal/parser"
	"github.com/maltedev/alkoteka-scraper/internal/queue"
	"github.com/maltedev/alkoteka-scraper/internal/ratelimit"
	"github.com/maltedev/alkoteka-scraper/internal/request"
)

var ErrNoSeeds = errors.New("no valid category URLs to crawl")

// Sink receives every completed product record.
type Sink interface {
	Emit(ctx context.Context, product models.Product) error
}

type Options struct {
	Workers             int
	MaxItemsPerCategory int
	// AllowedHosts restricts link following. Seed hosts are always allowed.
	AllowedHosts []string
	Logger       *slog.Logger
	Now          func() time.Time
}

// Engine walks category listings and their pagination and turns every
// product page it finds into a record for the sinks.
type Engine struct {
	fetcher    fetcher.Fetcher
	augmenter  *request.Augmenter
	limiter    ratelimit.RateLimiter
	parser     *parser.AlkotekaParser
	normalizer *parser.Normalizer
	sinks      []Sink

	workers  int
	maxItems int
	allowed  map[string]bool
	logger   *slog.Logger
	now      func() time.Time

	stats    *Stats
	mu       sync.Mutex
	frontier *Frontier
}

func NewEngine(f fetcher.Fetcher, aug *request.Augmenter, limiter ratelimit.RateLimiter, p *parser.AlkotekaParser, sinks []Sink, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if limiter == nil {
		limiter = ratelimit.NewSimpleRateLimiter(0, 0)
	}
	if aug == nil {
		aug = request.NewAugmenter(request.DefaultRegion(), nil)
	}

	allowed := make(map[string]bool, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		if u, err := url.Parse("//" + h); err == nil {
			allowed[siteHost(u)] = true
		}
	}

	return &Engine{
		fetcher:    f,
		augmenter:  aug,
		limiter:    limiter,
		parser:     p,
		normalizer: parser.NewNormalizer(p),
		sinks:      sinks,
		workers:    opts.Workers,
		maxItems:   opts.MaxItemsPerCategory,
		allowed:    allowed,
		logger:     opts.Logger.With("component", "engine"),
		now:        opts.Now,
		stats:      NewStats(),
	}
}

// Run crawls from seeds until the frontier is exhausted or ctx is done.
// Records already handed to the sinks stay valid after cancellation; the
// returned error is then ctx.Err().
func (e *Engine) Run(ctx context.Context, seeds []string) (Snapshot, error) {
	for _, s := range seeds {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			e.allowed[siteHost(u)] = true
		}
	}

	q := queue.NewInMemoryQueue()
	frontier := NewFrontier(q, e.maxItems)
	e.mu.Lock()
	e.frontier = frontier
	e.mu.Unlock()

	if frontier.Seed(seeds) == 0 {
		return e.Stats(), ErrNoSeeds
	}

	e.stats.start(e.now())
	e.logger.Info("crawl started",
		"seeds", len(seeds),
		"workers", e.workers,
		"max_items_per_category", e.maxItems,
		"proxies", e.augmenter.ProxyCount())

	stop := context.AfterFunc(ctx, func() {
		_ = q.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.worker(ctx, id, q, frontier)
		}(i)
	}
	wg.Wait()

	e.stats.finish(e.now())
	snapshot := e.Stats()
	e.logger.Info("crawl finished",
		"categories", snapshot.CategoryPages,
		"products", snapshot.Products,
		"failures", snapshot.Failures,
		"duration", snapshot.Duration)

	if err := ctx.Err(); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

// Stats is safe to call while Run is in progress.
func (e *Engine) Stats() Snapshot {
	e.mu.Lock()
	frontier := e.frontier
	e.mu.Unlock()

	snap := e.stats.snapshot()
	if frontier != nil {
		snap.Pending = frontier.Pending()
		snap.Visited = frontier.Visited()
		snap.PerCategory = frontier.Categories()
	}
	return snap
}

func (e *Engine) worker(ctx context.Context, id int, q queue.Queue, frontier *Frontier) {
	logger := e.logger.With("worker", id)
	for {
		item, err := q.Pop(ctx)
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		e.stats.inFlight.Add(1)
		e.process(ctx, logger, item, frontier)
		e.stats.inFlight.Add(-1)
		frontier.Done()
	}
}

func (e *Engine) process(ctx context.Context, logger *slog.Logger, item *queue.WorkItem, frontier *Frontier) {
	logger = logger.With("url", item.URL, "kind", item.Kind.String())

	if err := e.limiter.Wait(ctx); err != nil {
		return
	}

	desc := e.augmenter.Augment(request.Descriptor{URL: item.URL, Kind: item.Kind})
	page, err := e.fetcher.Fetch(ctx, desc)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.recordFetchError(err)
		logger.Warn("fetch failed, dropping item", "error", err)
		return
	}
	if fb, ok := e.limiter.(ratelimit.Feedback); ok {
		fb.RecordSuccess()
	}

	doc, err := parser.ParseDocument(page.Body)
	if err != nil {
		e.stats.failures.Add(1)
		logger.Warn("unparsable page, dropping item", "error", err)
		return
	}

	base, err := url.Parse(page.FinalURL)
	if err != nil || page.FinalURL == "" {
		base, _ = url.Parse(item.URL)
	}

	switch item.Kind {
	case request.KindCategory:
		e.stats.categoryPages.Add(1)
		e.expandCategory(logger, item, doc, base, frontier)
	case request.KindProduct:
		if ctx.Err() != nil {
			return
		}
		product := e.normalizer.Normalize(doc, item.URL, e.now())
		e.stats.products.Add(1)
		e.emit(ctx, logger, product)
	}
}

func (e *Engine) expandCategory(logger *slog.Logger, item *queue.WorkItem, doc *goquery.Document, base *url.URL, frontier *Frontier) {
	found, added := 0, 0
	for _, link := range e.parser.ProductLinks(doc, base) {
		if !e.onSite(link) {
			continue
		}
		found++
		if frontier.AddProduct(item.Category, link) {
			added++
		}
	}

	next := e.parser.NextPage(doc, base)
	nextQueued := false
	if next.Found && e.onSite(next.Value) {
		nextQueued = frontier.AddPage(item.Category, next.Value)
	}

	logger.Debug("category page parsed",
		"product_links", found,
		"products_enqueued", added,
		"next_page", nextQueued,
		"capped", frontier.Capped(item.Category))
}

func (e *Engine) emit(ctx context.Context, logger *slog.Logger, product models.Product) {
	for _, sink := range e.sinks {
		if err := sink.Emit(ctx, product); err != nil {
			e.stats.sinkErrors.Add(1)
			logger.Error("sink rejected product", "rpc", product.RPC, "error", err)
		}
	}
}

func (e *Engine) recordFetchError(err error) {
	e.stats.failures.Add(1)

	var statusErr *fetcher.StatusError
	if errors.As(err, &statusErr) && statusErr.Retryable() {
		if fb, ok := e.limiter.(ratelimit.Feedback); ok {
			fb.RecordError()
		}
	}
}

func (e *Engine) onSite(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return e.allowed[siteHost(u)]
}
