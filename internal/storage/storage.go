package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/maltedev/alkoteka-scraper/internal/models"
)

// ResultStore collects product records and writes them as one JSON array.
// The file on disk is always a complete array, even mid-crawl.
type ResultStore struct {
	mu         sync.RWMutex
	products   []models.Product
	filename   string
	flushEvery int
	unsaved    int
}

// NewResultStore writes to filename. With flushEvery > 0 the file is
// rewritten after every flushEvery records.
func NewResultStore(filename string, flushEvery int) *ResultStore {
	return &ResultStore{
		products:   make([]models.Product, 0),
		filename:   filename,
		flushEvery: flushEvery,
	}
}

func (rs *ResultStore) Emit(ctx context.Context, product models.Product) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.products = append(rs.products, product)
	rs.unsaved++

	if rs.flushEvery > 0 && rs.unsaved >= rs.flushEvery {
		return rs.save()
	}
	return nil
}

// Save writes every record collected so far.
func (rs *ResultStore) Save() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.save()
}

func (rs *ResultStore) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.products)
}

func (rs *ResultStore) Records() []models.Product {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return append([]models.Product(nil), rs.products...)
}

func (rs *ResultStore) Filename() string {
	return rs.filename
}

func (rs *ResultStore) save() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rs.products); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	if dir := filepath.Dir(rs.filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	// Write to temp file first for atomicity
	tmpFile := rs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if err := os.Rename(tmpFile, rs.filename); err != nil {
		return fmt.Errorf("replace results: %w", err)
	}

	rs.unsaved = 0
	return nil
}

// Load reads a result file written by Save.
func Load(filename string) ([]models.Product, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	return products, nil
}
