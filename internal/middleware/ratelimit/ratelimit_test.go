package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(t *testing.T, n int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewLimiter(Config{RequestsPerWindow: n, Window: time.Minute, Now: clock.Now})
	t.Cleanup(rl.Stop)
	return rl, clock
}

func TestAllowWindow(t *testing.T) {
	rl, clock := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("a"), "request %d", i)
	}
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "clients are counted separately")

	clock.Advance(30 * time.Second)
	assert.False(t, rl.Allow("a"))
	assert.Equal(t, 30*time.Second, rl.RetryAfter("a"))

	clock.Advance(30 * time.Second)
	assert.True(t, rl.Allow("a"))

	m := rl.GetMetrics()
	assert.Equal(t, int64(2), m.TotalHits)
	assert.Equal(t, int64(2), m.ClientCount)
}

func TestRetryAfterRoundsUp(t *testing.T) {
	rl, clock := newTestLimiter(t, 1)
	rl.Allow("a")

	assert.Equal(t, time.Minute, rl.RetryAfter("a"))
	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 59*time.Second, rl.RetryAfter("a"))
	clock.Advance(58*time.Second + 499*time.Millisecond)
	assert.Equal(t, time.Second, rl.RetryAfter("a"))
	assert.Equal(t, time.Duration(0), rl.RetryAfter("unknown"))
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, clock := newTestLimiter(t, 3)
	rl.Allow("a")
	clock.Advance(90 * time.Second)
	rl.Allow("b")
	clock.Advance(60 * time.Second)

	assert.Equal(t, 1, rl.cleanupStaleEntries())
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestMiddlewareLimitsListedMethods(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(*http.Request) string { return "ip" }, http.MethodPost)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(method string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/api/expenses", nil))
		return rr
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost).Code)
	rr := do(http.MethodPost)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, do(http.MethodGet).Code)
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewLimiter(Config{})
	rl.Stop()
	rl.Stop()
}
