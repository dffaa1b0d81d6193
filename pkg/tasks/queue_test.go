package tasks

import (
	"context"
	"testing"
	"time"

	"link-shortener/pkg/logging"
	"link-shortener/pkg/storage"

	"github.com/stretchr/testify/assert"
)

func TestQueueProcessesJobs(t *testing.T) {
	exec, links, clicks := newTestExecutor(&stubFetcher{}, &stubResolver{})
	links.links["abc123"] = &storage.ShortLink{Code: "abc123", OriginalURL: "https://a.example/x"}

	q := NewQueue(16, 2, exec, logging.NewLogger(logging.LevelError))
	for i := 0; i < 5; i++ {
		q.EnqueueClick("abc123", "", "test-agent", "")
	}
	q.Shutdown() // drains in-flight work before returning

	assert.Equal(t, int64(5), links.links["abc123"].ClickCount)
	assert.Len(t, clicks.clicks, 5)
}

func TestEnqueueNeverBlocksWhenFull(t *testing.T) {
	exec, _, _ := newTestExecutor(&stubFetcher{}, &stubResolver{})
	// Zero workers: nothing drains the queue
	q := &Queue{
		jobs:     make(chan job, 1),
		executor: exec,
		logger:   logging.NewLogger(logging.LevelError),
	}

	done := make(chan struct{})
	go func() {
		q.EnqueueClick("a", "", "", "")
		q.EnqueueClick("b", "", "", "") // queue full; must drop, not block
		q.EnqueueMetadataFetch("c")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	assert.Len(t, q.jobs, 1)
}

func TestSweeperRunOnce(t *testing.T) {
	links := newStubLinkStorage()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	links.links["old1"] = &storage.ShortLink{Code: "old1", IsActive: true, ExpiresAt: &past}
	links.links["old2"] = &storage.ShortLink{Code: "old2", IsActive: true, ExpiresAt: &past}
	links.links["done"] = &storage.ShortLink{Code: "done", IsActive: false, ExpiresAt: &past}
	links.links["live"] = &storage.ShortLink{Code: "live", IsActive: true, ExpiresAt: &future}
	links.links["keep"] = &storage.ShortLink{Code: "keep", IsActive: true}

	s := NewSweeper(links, time.Hour, logging.NewLogger(logging.LevelError))
	count := s.RunOnce(context.Background())

	// Deactivates expired links, skips already-inactive ones, deletes nothing
	assert.Equal(t, int64(2), count)
	assert.False(t, links.links["old1"].IsActive)
	assert.False(t, links.links["old2"].IsActive)
	assert.True(t, links.links["live"].IsActive)
	assert.True(t, links.links["keep"].IsActive)
	assert.Len(t, links.links, 5)

	// A second sweep has nothing left to do
	assert.Zero(t, s.RunOnce(context.Background()))
}
