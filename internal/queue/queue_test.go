package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/maltedev/alkoteka-scraper/internal/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopOrder(t *testing.T) {
	q := NewInMemoryQueue()

	items := []*WorkItem{
		{URL: "https://alkoteka.com/catalog/vino", Kind: request.KindCategory},
		{URL: "https://alkoteka.com/product/a", Kind: request.KindProduct, Priority: 1},
		{URL: "https://alkoteka.com/catalog/vino?page=2", Kind: request.KindCategory},
		{URL: "https://alkoteka.com/product/b", Kind: request.KindProduct, Priority: 1},
	}
	for _, item := range items {
		require.NoError(t, q.Push(item))
	}
	assert.Equal(t, 4, q.Size())

	var got []string
	for i := 0; i < len(items); i++ {
		item, err := q.Pop(context.Background())
		require.NoError(t, err)
		got = append(got, item.URL)
	}

	assert.Equal(t, []string{
		"https://alkoteka.com/product/a",
		"https://alkoteka.com/product/b",
		"https://alkoteka.com/catalog/vino",
		"https://alkoteka.com/catalog/vino?page=2",
	}, got)
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := NewInMemoryQueue()

	result := make(chan *WorkItem, 1)
	go func() {
		item, err := q.Pop(context.Background())
		if err == nil {
			result <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(&WorkItem{URL: "https://alkoteka.com/product/a"}))

	select {
	case item := <-result:
		assert.Equal(t, "https://alkoteka.com/product/a", item.URL)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestPopHonoursContext(t *testing.T) {
	q := NewInMemoryQueue()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseWakesAllWaiters(t *testing.T) {
	q := NewInMemoryQueue()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Pop(context.Background())
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Close())
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrQueueClosed)
	}
}

func TestClosedQueueDrainsThenFails(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(&WorkItem{URL: "https://alkoteka.com/product/a"}))
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(&WorkItem{URL: "https://alkoteka.com/product/b"}), ErrQueueClosed)

	item, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://alkoteka.com/product/a", item.URL)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.NoError(t, q.Close())
}

func TestTryPop(t *testing.T) {
	q := NewInMemoryQueue()

	_, err := q.TryPop()
	assert.ErrorIs(t, err, ErrQueueEmpty)

	require.NoError(t, q.Push(&WorkItem{URL: "https://alkoteka.com/product/a"}))
	item, err := q.TryPop()
	require.NoError(t, err)
	assert.Equal(t, "https://alkoteka.com/product/a", item.URL)

	require.NoError(t, q.Close())
	_, err = q.TryPop()
	assert.ErrorIs(t, err, ErrQueueClosed)
}
