package scraper

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds the live counters of a crawl.
type Stats struct {
	categoryPages atomic.Int64
	products      atomic.Int64
	failures      atomic.Int64
	sinkErrors    atomic.Int64
	inFlight      atomic.Int64

	mu         sync.Mutex
	startedAt  time.Time
	finishedAt time.Time
}

// Snapshot is a point-in-time copy of the crawl counters.
type Snapshot struct {
	CategoryPages int64          `json:"category_pages"`
	Products      int64          `json:"products"`
	Failures      int64          `json:"failures"`
	SinkErrors    int64          `json:"sink_errors"`
	InFlight      int64          `json:"in_flight"`
	Pending       int            `json:"pending"`
	Visited       int            `json:"visited"`
	PerCategory   map[string]int `json:"per_category"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Duration      time.Duration  `json:"duration_ns"`
	Running       bool           `json:"running"`
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) start(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedAt = at
	s.finishedAt = time.Time{}
}

func (s *Stats) finish(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishedAt = at
}

func (s *Stats) snapshot() Snapshot {
	s.mu.Lock()
	started, finished := s.startedAt, s.finishedAt
	s.mu.Unlock()

	snap := Snapshot{
		CategoryPages: s.categoryPages.Load(),
		Products:      s.products.Load(),
		Failures:      s.failures.Load(),
		SinkErrors:    s.sinkErrors.Load(),
		InFlight:      s.inFlight.Load(),
		PerCategory:   map[string]int{},
		StartedAt:     started,
		FinishedAt:    finished,
		Running:       !started.IsZero() && finished.IsZero(),
	}
	switch {
	case !finished.IsZero():
		snap.Duration = finished.Sub(started)
	case !started.IsZero():
		snap.Duration = time.Since(started)
	}
	return snap
}
