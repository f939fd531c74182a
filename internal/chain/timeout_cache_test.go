package chain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHeightSource struct {
	mu     sync.Mutex
	height int64
	err    error
	calls  int
}

func (s *fakeHeightSource) GetCurrentBlockHeight(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.height, nil
}

func (s *fakeHeightSource) set(height int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.height = height
	s.err = err
}

func (s *fakeHeightSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestTimeoutHeightAddsOffset(t *testing.T) {
	source := &fakeHeightSource{height: 1000}
	cache := NewTimeoutHeightCache(source, 30, time.Minute)

	got, err := cache.TimeoutHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1030), got)
}

func TestTimeoutHeightCachesWithinRefreshWindow(t *testing.T) {
	source := &fakeHeightSource{height: 1000}
	cache := NewTimeoutHeightCache(source, 30, time.Minute)

	first, err := cache.TimeoutHeight(context.Background())
	require.NoError(t, err)

	// The chain moved, but the window has not elapsed.
	source.set(2000, nil)
	second, err := cache.TimeoutHeight(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.callCount())
}

func TestTimeoutHeightRefreshesAfterWindow(t *testing.T) {
	source := &fakeHeightSource{height: 1000}
	cache := NewTimeoutHeightCache(source, 30, 10*time.Millisecond)

	_, err := cache.TimeoutHeight(context.Background())
	require.NoError(t, err)

	source.set(2000, nil)
	time.Sleep(20 * time.Millisecond)

	got, err := cache.TimeoutHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2030), got)
}

func TestTimeoutHeightServesStaleOnError(t *testing.T) {
	source := &fakeHeightSource{height: 1000}
	cache := NewTimeoutHeightCache(source, 30, 10*time.Millisecond)

	first, err := cache.TimeoutHeight(context.Background())
	require.NoError(t, err)

	source.set(0, errors.New("node down"))
	time.Sleep(20 * time.Millisecond)

	got, err := cache.TimeoutHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestTimeoutHeightServesStaleWhileRefreshInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	source := &blockingHeightSource{entered: entered, release: release, height: 2000}
	cache := NewTimeoutHeightCache(source, 30, 10*time.Millisecond)

	// Seed the cache, then let the window lapse so the next caller
	// triggers a refresh.
	cache.mu.Lock()
	cache.cached = 1030
	cache.refreshedAt = time.Now().Add(-time.Minute)
	cache.mu.Unlock()

	slow := make(chan int64, 1)
	go func() {
		got, _ := cache.TimeoutHeight(context.Background())
		slow <- got
	}()
	<-entered

	// While the refresh hangs on the node, other broadcasters are served
	// the stale value immediately instead of queueing on the mutex.
	fastDone := make(chan int64, 1)
	go func() {
		got, _ := cache.TimeoutHeight(context.Background())
		fastDone <- got
	}()
	select {
	case got := <-fastDone:
		assert.Equal(t, int64(1030), got)
	case <-time.After(time.Second):
		t.Fatal("reader blocked behind in-flight refresh")
	}

	close(release)
	assert.Equal(t, int64(2030), <-slow)
	assert.Equal(t, 1, source.callCount())
}

// blockingHeightSource parks every call until released.
type blockingHeightSource struct {
	mu      sync.Mutex
	calls   int
	height  int64
	entered chan struct{}
	release chan struct{}
}

func (s *blockingHeightSource) GetCurrentBlockHeight(ctx context.Context) (int64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	close(s.entered)
	<-s.release
	return s.height, nil
}

func (s *blockingHeightSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestTimeoutHeightErrorsWithNothingCached(t *testing.T) {
	source := &fakeHeightSource{err: errors.New("node down")}
	cache := NewTimeoutHeightCache(source, 30, time.Minute)

	_, err := cache.TimeoutHeight(context.Background())
	assert.Error(t, err)
}
