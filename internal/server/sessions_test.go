package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/internal/workflow"
)

// blockingGenerator holds GenerateEbook until release is closed.
type blockingGenerator struct {
	release chan struct{}
}

func (g blockingGenerator) GenerateEbook(context.Context, string, int) (*ebook.GenerationResult, error) {
	<-g.release
	return &ebook.GenerationResult{Title: "T", Content: "# T", CoverPrompt: "p"}, nil
}

func (g blockingGenerator) GenerateCover(context.Context, string) (string, error) {
	return "aGk=", nil
}

func (g blockingGenerator) ContinueEbook(context.Context, string) (string, error) {
	return "## More", nil
}

// fakeClock is a manually advanced clock safe for concurrent reads.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, gen workflow.Generator, clock *fakeClock) *sessionStore {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newSessionStore(time.Hour, false, logger, func() *workflow.Machine {
		return workflow.New(gen, workflow.WithLogger(logger), workflow.WithClock(clock.Now))
	})
	store.now = clock.Now

	return store
}

func newTestContext(cookie *http.Cookie) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		c.Request.AddCookie(cookie)
	}

	return c, w
}

func TestSessionStore_Session(t *testing.T) {
	store := newTestStore(t, blockingGenerator{}, newFakeClock())

	c, w := newTestContext(nil)
	first := store.session(c)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.NotEmpty(t, first.tag)
	assert.NotEqual(t, cookies[0].Value, first.tag, "the public tag is not the cookie")

	c, w = newTestContext(cookies[0])
	assert.Same(t, first, store.session(c), "known cookie maps to the same session")
	refreshed := w.Result().Cookies()
	require.Len(t, refreshed, 1, "the cookie is re-issued so it slides")
	assert.Equal(t, cookies[0].Value, refreshed[0].Value)
	assert.Equal(t, 3600, refreshed[0].MaxAge)

	c, w = newTestContext(&http.Cookie{Name: sessionCookie, Value: "forged"})
	other := store.session(c)
	assert.NotSame(t, first, other, "unknown ids get a fresh session")
	assert.NotEqual(t, first.tag, other.tag)
	require.Len(t, w.Result().Cookies(), 1)
	assert.NotEqual(t, "forged", w.Result().Cookies()[0].Value)
	assert.Equal(t, 2, store.len())
}

func TestSessionStore_RequestsKeepSessionAlive(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, blockingGenerator{}, clock)

	c, w := newTestContext(nil)
	sess := store.session(c)
	cookie := w.Result().Cookies()[0]

	// a reader polling every 40 minutes outlives the one hour TTL
	for range 4 {
		clock.Advance(40 * time.Minute)
		c, _ = newTestContext(cookie)
		assert.Same(t, sess, store.session(c))
		assert.Equal(t, 0, store.sweep())
	}

	clock.Advance(61 * time.Minute)
	assert.Equal(t, 1, store.sweep())
	assert.Equal(t, 0, store.len())
}

func TestSessionStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	gen := blockingGenerator{release: make(chan struct{})}
	store := newTestStore(t, gen, clock)

	idle := store.session(mustContext())
	busy := store.session(mustContext())
	req, err := ebook.NewGenerationRequest("topic", 0, "")
	require.NoError(t, err)
	require.NoError(t, busy.Start(context.Background(), req))

	clock.Advance(30 * time.Minute)
	assert.Equal(t, 0, store.sweep(), "nothing expired yet")

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, store.sweep(), "only the idle session expires")
	assert.Equal(t, 1, store.len())

	updates, cancel := idle.Subscribe()
	defer cancel()
	_, open := <-updates
	assert.False(t, open, "expired machines are closed")

	close(gen.release)
	busy.Wait()
	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, store.sweep())
	assert.Equal(t, 0, store.len())
}

func mustContext() *gin.Context {
	c, _ := newTestContext(nil)
	return c
}

func TestSessionStore_Janitor(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, blockingGenerator{}, clock)
	store.session(mustContext())
	clock.Advance(3 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.janitor(ctx, time.Millisecond) }()

	require.Eventually(t, func() bool { return store.len() == 0 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
