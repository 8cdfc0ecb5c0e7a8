package scraper

import (
	"sync"

	"github.com/maltedev/alkoteka-scraper/internal/queue"
	"github.com/maltedev/alkoteka-scraper/internal/request"
)

const productPriority = 1

// Frontier owns the visited set and the count of items that are queued or
// in flight. The queue is closed when that count drops to zero.
type Frontier struct {
	mu          sync.Mutex
	queue       *queue.InMemoryQueue
	visited     map[string]struct{}
	pending     int
	perCategory map[string]int
	maxItems    int
}

func NewFrontier(q *queue.InMemoryQueue, maxItemsPerCategory int) *Frontier {
	return &Frontier{
		queue:       q,
		visited:     make(map[string]struct{}),
		perCategory: make(map[string]int),
		maxItems:    maxItemsPerCategory,
	}
}

// Seed enqueues the category start pages. Duplicates and unparsable URLs
// are skipped. It returns the number of seeds accepted.
func (f *Frontier) Seed(urls []string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	accepted := 0
	for _, raw := range urls {
		key, err := NormalizeURL(raw)
		if err != nil {
			continue
		}
		if !f.markLocked(key) {
			continue
		}
		if f.pushLocked(&queue.WorkItem{URL: key, Kind: request.KindCategory, Category: key}) {
			accepted++
		}
	}
	if accepted == 0 {
		_ = f.queue.Close()
	}
	return accepted
}

// AddProduct enqueues a product page found on a page of category. It is
// a no-op for known URLs and once the category has reached its cap.
func (f *Frontier) AddProduct(category, rawURL string) bool {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cappedLocked(category) || !f.markLocked(key) {
		return false
	}
	if !f.pushLocked(&queue.WorkItem{URL: key, Kind: request.KindProduct, Category: category, Priority: productPriority}) {
		return false
	}
	f.perCategory[category]++
	return true
}

// AddPage enqueues the next listing page of category.
func (f *Frontier) AddPage(category, rawURL string) bool {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cappedLocked(category) || !f.markLocked(key) {
		return false
	}
	return f.pushLocked(&queue.WorkItem{URL: key, Kind: request.KindCategory, Category: category})
}

// Done marks one popped item as finished.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending--
	if f.pending <= 0 {
		f.pending = 0
		_ = f.queue.Close()
	}
}

// Capped reports whether category has enqueued its maximum of products.
func (f *Frontier) Capped(category string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cappedLocked(category)
}

func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *Frontier) Visited() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Categories returns the number of products enqueued per seed category.
func (f *Frontier) Categories() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]int, len(f.perCategory))
	for k, v := range f.perCategory {
		out[k] = v
	}
	return out
}

func (f *Frontier) cappedLocked(category string) bool {
	return f.maxItems > 0 && f.perCategory[category] >= f.maxItems
}

func (f *Frontier) markLocked(key string) bool {
	if _, seen := f.visited[key]; seen {
		return false
	}
	f.visited[key] = struct{}{}
	return true
}

func (f *Frontier) pushLocked(item *queue.WorkItem) bool {
	if err := f.queue.Push(item); err != nil {
		return false
	}
	f.pending++
	return true
}
