package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/alkoteka-scraper/internal/scraper"
)

type staticStats struct {
	snap scraper.Snapshot
}

func (s staticStats) Stats() scraper.Snapshot {
	return s.snap
}

func newTestHandlers() *Handlers {
	stats := staticStats{snap: scraper.Snapshot{
		CategoryPages: 3,
		Products:      42,
		Failures:      1,
		Running:       true,
		PerCategory: map[string]int{
			"https://alkoteka.com/catalog/vino": 30,
			"https://alkoteka.com/catalog/pivo": 12,
		},
	}}
	return NewHandlers(stats, "run-123", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHealth(t *testing.T) {
	router := NewRouter(newTestHandlers())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, HealthResponse{Status: "ok", RunID: "run-123", Running: true}, resp)
}

func TestGetStats(t *testing.T) {
	router := NewRouter(newTestHandlers())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "run-123", resp.RunID)
	assert.Equal(t, int64(42), resp.Stats.Products)
	assert.Equal(t, int64(3), resp.Stats.CategoryPages)
}

func TestListCategoriesSorted(t *testing.T) {
	router := NewRouter(newTestHandlers())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []CategoryStat
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []CategoryStat{
		{Category: "https://alkoteka.com/catalog/vino", Products: 30},
		{Category: "https://alkoteka.com/catalog/pivo", Products: 12},
	}, resp)
}

func TestGetRun(t *testing.T) {
	router := NewRouter(newTestHandlers())

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"Current run", "/api/v1/runs/run-123", http.StatusOK},
		{"Unknown run", "/api/v1/runs/other", http.StatusNotFound},
		{"Unknown route", "/api/v1/jobs", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRejectsWrites(t *testing.T) {
	router := NewRouter(newTestHandlers())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/stats", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := NewRouter(newTestHandlers())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/stats", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerShutsDownWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(newTestHandlers(), ServerOptions{ShutdownTimeout: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
