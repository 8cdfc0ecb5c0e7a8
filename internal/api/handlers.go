package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/alkoteka-scraper/internal/scraper"
)

// StatsProvider is implemented by *scraper.Engine.
type StatsProvider interface {
	Stats() scraper.Snapshot
}

type Handlers struct {
	stats  StatsProvider
	runID  string
	logger *slog.Logger
}

func NewHandlers(stats StatsProvider, runID string, logger *slog.Logger) *Handlers {
	return &Handlers{
		stats:  stats,
		runID:  runID,
		logger: logger,
	}
}

// HealthResponse reports whether the crawl is still running
type HealthResponse struct {
	Status  string `json:"status"`
	RunID   string `json:"run_id"`
	Running bool   `json:"running"`
}

// StatsResponse wraps the engine counters with the run id
type StatsResponse struct {
	RunID string           `json:"run_id"`
	Stats scraper.Snapshot `json:"stats"`
}

// CategoryStat is the number of products queued for one seed category
type CategoryStat struct {
	Category string `json:"category"`
	Products int    `json:"products"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.stats.Stats()
	h.respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		RunID:   h.runID,
		Running: snap.Running,
	})
}

// GetStats handles statistics retrieval
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, StatsResponse{
		RunID: h.runID,
		Stats: h.stats.Stats(),
	})
}

// ListCategories returns per-category product counts, largest first
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	snap := h.stats.Stats()

	out := make([]CategoryStat, 0, len(snap.PerCategory))
	for category, n := range snap.PerCategory {
		out = append(out, CategoryStat{Category: category, Products: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Products != out[j].Products {
			return out[i].Products > out[j].Products
		}
		return out[i].Category < out[j].Category
	})

	h.respondJSON(w, http.StatusOK, out)
}

// GetRun answers 404 for any id other than the current run
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "runID") != h.runID {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	h.GetStats(w, r)
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
