package scraper

import (
	"context"
	"testing"

	"github.com/maltedev/alkoteka-scraper/internal/queue"
	"github.com/maltedev/alkoteka-scraper/internal/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{"Already normal", "https://alkoteka.com/catalog/vino", "https://alkoteka.com/catalog/vino", false},
		{"Case of scheme and host", "HTTPS://AlKoteka.COM/catalog/Vino", "https://alkoteka.com/catalog/Vino", false},
		{"Fragment stripped", "https://alkoteka.com/product/a_1#reviews", "https://alkoteka.com/product/a_1", false},
		{"Empty path", "https://alkoteka.com", "https://alkoteka.com/", false},
		{"Query sorted", "https://alkoteka.com/catalog/vino?sort=price&page=2", "https://alkoteka.com/catalog/vino?page=2&sort=price", false},
		{"Surrounding space", "  https://alkoteka.com/catalog/vino\t", "https://alkoteka.com/catalog/vino", false},
		{"Relative", "/catalog/vino", "", true},
		{"Unsupported scheme", "mailto:shop@alkoteka.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFrontierDeduplicates(t *testing.T) {
	q := queue.NewInMemoryQueue()
	f := NewFrontier(q, 0)

	assert.Equal(t, 1, f.Seed([]string{seedURL, seedURL + "#x"}))
	assert.True(t, f.AddProduct(seedURL, "https://alkoteka.com/product/a_1"))
	assert.False(t, f.AddProduct(seedURL, "https://ALKOTEKA.com/product/a_1#top"))
	assert.False(t, f.AddPage(seedURL, seedURL))

	assert.Equal(t, 2, q.Size())
	assert.Equal(t, 2, f.Pending())
	assert.Equal(t, 2, f.Visited())
}

func TestFrontierClosesQueueWhenDrained(t *testing.T) {
	q := queue.NewInMemoryQueue()
	f := NewFrontier(q, 0)
	require.Equal(t, 1, f.Seed([]string{seedURL}))

	item, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, request.KindCategory, item.Kind)
	assert.Equal(t, seedURL, item.Category)

	require.True(t, f.AddProduct(item.Category, "https://alkoteka.com/product/a_1"))
	f.Done()

	product, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, request.KindProduct, product.Kind)
	f.Done()

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
}

func TestFrontierCapStopsProductsAndPages(t *testing.T) {
	q := queue.NewInMemoryQueue()
	f := NewFrontier(q, 1)
	f.Seed([]string{seedURL, "https://alkoteka.com/catalog/pivo"})

	assert.True(t, f.AddProduct(seedURL, "https://alkoteka.com/product/a_1"))
	assert.True(t, f.Capped(seedURL))
	assert.False(t, f.AddProduct(seedURL, "https://alkoteka.com/product/b_2"))
	assert.False(t, f.AddPage(seedURL, seedURL+"?page=2"))

	assert.False(t, f.Capped("https://alkoteka.com/catalog/pivo"))
	assert.True(t, f.AddPage("https://alkoteka.com/catalog/pivo", "https://alkoteka.com/catalog/pivo?page=2"))

	assert.Equal(t, map[string]int{seedURL: 1}, f.Categories())
}

func TestFrontierEmptySeedClosesQueue(t *testing.T) {
	q := queue.NewInMemoryQueue()
	f := NewFrontier(q, 0)

	assert.Equal(t, 0, f.Seed([]string{"::bad"}))
	_, err := q.TryPop()
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
}
