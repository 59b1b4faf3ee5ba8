package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alkime/ebooks/internal/config"
	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/internal/server"
)

// pixelPNG is a base64 encoded 1x1 PNG.
var pixelPNG = func() string {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}()

// stubGenerator implements workflow.Generator for testing.
type stubGenerator struct {
	generateErr error
	// gate, when set, blocks every provider call until closed.
	gate chan struct{}
}

func (g *stubGenerator) wait() {
	if g.gate != nil {
		<-g.gate
	}
}

func (g *stubGenerator) GenerateEbook(_ context.Context, topic string, chapters int) (*ebook.GenerationResult, error) {
	g.wait()
	if g.generateErr != nil {
		return nil, g.generateErr
	}

	return &ebook.GenerationResult{
		Title:       "Gardening <Basics>",
		Content:     "# Gardening <Basics>\n\n## Introduction\n\nGrow **" + topic + "** things.",
		CoverPrompt: "A garden",
	}, nil
}

func (g *stubGenerator) GenerateCover(context.Context, string) (string, error) {
	g.wait()
	return pixelPNG, nil
}

func (g *stubGenerator) ContinueEbook(context.Context, string) (string, error) {
	g.wait()
	return "## Watering\n\nWater in the morning.", nil
}

func testConfig() *config.Config {
	return &config.Config{
		Env:             "test",
		Port:            "8080",
		HSTSMaxAge:      31536000,
		CSPMode:         config.CSPModeRelaxed,
		LogLevel:        "info",
		AnthropicAPIKey: "test",
		OpenAIAPIKey:    "test",
		SessionTTL:      time.Hour,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:       slog.LevelError, // Only show errors during tests
		AddSource:   false,
		ReplaceAttr: nil,
	}))
}

// client replays the session cookie like a browser would.
type client struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func newClient(t *testing.T, gen *stubGenerator) *client {
	t.Helper()
	srv := server.New(testConfig(), testLogger(), gen)

	return &client{t: t, handler: srv.Router()}
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)

	if cookies := w.Result().Cookies(); len(cookies) > 0 {
		c.cookies = cookies
	}

	return w
}

type snapshotBody struct {
	Session string `json:"session"`
	Status  string `json:"status"`
	Ebook  *struct {
		Title         string `json:"title"`
		Markdown      string `json:"markdown"`
		CoverImageURL string `json:"coverImageUrl"`
		HTML          string `json:"html"`
	} `json:"ebook"`
	Error       string `json:"error"`
	Continuing  bool   `json:"continuing"`
	CanContinue bool   `json:"canContinue"`
	Style       string `json:"style"`
	Topic       string `json:"topic"`
}

func (c *client) snapshot() snapshotBody {
	c.t.Helper()

	w := c.do(http.MethodGet, "/api/v1/ebook", "")
	require.Equal(c.t, http.StatusOK, w.Code)

	return decode(c.t, w)
}

func (c *client) waitFor(status string) snapshotBody {
	c.t.Helper()

	var snap snapshotBody
	require.Eventually(c.t, func() bool {
		snap = c.snapshot()
		return snap.Status == status && !snap.Continuing
	}, 2*time.Second, 5*time.Millisecond)

	return snap
}

func decode(t *testing.T, w *httptest.ResponseRecorder) snapshotBody {
	t.Helper()

	var snap snapshotBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))

	return snap
}

func TestHealthEndpoint(t *testing.T) {
	c := newClient(t, &stubGenerator{})

	w := c.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code, "Health endpoint should return 200 OK")
	assert.Contains(t, w.Body.String(), "healthy", "Response should contain 'healthy'")
	assert.Contains(t, w.Body.String(), "ebooks", "Response should contain service name 'ebooks'")
}

func TestSecurityHeaders(t *testing.T) {
	c := newClient(t, &stubGenerator{})

	w := c.do(http.MethodGet, "/health", "")

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "img-src 'self' data:")
	assert.NotEmpty(t, w.Header().Get(server.RequestIDHeader))
}

func TestWebUI(t *testing.T) {
	c := newClient(t, &stubGenerator{})

	w := c.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Ebook Generator")

	w = c.do(http.MethodGet, "/app.js", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "javascript")

	w = c.do(http.MethodGet, "/missing.js", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOptions(t *testing.T) {
	c := newClient(t, &stubGenerator{})

	w := c.do(http.MethodGet, "/api/v1/options", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Styles []struct {
			Value string `json:"value"`
			Label string `json:"label"`
		} `json:"styles"`
		ChapterCounts []struct {
			Value int `json:"value"`
		} `json:"chapterCounts"`
		DefaultStyle    string   `json:"defaultStyle"`
		DefaultChapters int      `json:"defaultChapters"`
		ExportFormats   []string `json:"exportFormats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Len(t, body.Styles, 3)
	assert.Len(t, body.ChapterCounts, 5)
	assert.Equal(t, "modern", body.DefaultStyle)
	assert.Equal(t, 4, body.DefaultChapters)
	assert.Equal(t, []string{"md", "txt", "pdf"}, body.ExportFormats)
}

func TestGenerateFlow(t *testing.T) {
	c := newClient(t, &stubGenerator{})

	assert.Equal(t, "idle", c.snapshot().Status)
	require.NotEmpty(t, c.cookies, "session cookie set on first visit")
	assert.Equal(t, "ebook_session", c.cookies[0].Name)
	assert.True(t, c.cookies[0].HttpOnly)

	w := c.do(http.MethodPost, "/api/v1/ebook", `{"topic":"beginner gardening","chapters":4,"style":"classic"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	snap := c.waitFor("success")
	require.NotNil(t, snap.Ebook)
	assert.Equal(t, "Gardening <Basics>", snap.Ebook.Title)
	assert.Contains(t, snap.Ebook.Markdown, "beginner gardening")
	assert.Equal(t, "data:image/png;base64,"+pixelPNG, snap.Ebook.CoverImageURL)
	assert.Contains(t, snap.Ebook.HTML, "<h1>Gardening &lt;Basics&gt;</h1>", "rendered body is escaped")
	assert.Contains(t, snap.Ebook.HTML, "<strong>beginner gardening</strong>")
	assert.Equal(t, "classic", snap.Style)
	assert.True(t, snap.CanContinue)

	w = c.do(http.MethodPost, "/api/v1/ebook", `{"topic":"again"}`)
	assert.Equal(t, http.StatusConflict, w.Code, "submit only from idle")

	w = c.do(http.MethodPost, "/api/v1/ebook/continue", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	continued := c.waitFor("success")
	assert.Equal(t, snap.Ebook.Markdown+"\n\n## Watering\n\nWater in the morning.", continued.Ebook.Markdown)

	w = c.do(http.MethodDelete, "/api/v1/ebook", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", decode(t, w).Status)
	assert.Nil(t, c.snapshot().Ebook)
}

func TestGenerate_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "blank topic", body: `{"topic":"   "}`},
		{name: "unsupported chapters", body: `{"topic":"x","chapters":12}`},
		{name: "unknown style", body: `{"topic":"x","style":"gothic"}`},
		{name: "malformed json", body: `{"topic":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, &stubGenerator{})

			w := c.do(http.MethodPost, "/api/v1/ebook", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "idle", c.snapshot().Status)
		})
	}
}

func TestGenerate_ProviderFailure(t *testing.T) {
	c := newClient(t, &stubGenerator{generateErr: ebook.NewGenerationFailure(errors.New("boom"))})

	w := c.do(http.MethodPost, "/api/v1/ebook", `{"topic":"beginner gardening"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	snap := c.waitFor("error")
	assert.Equal(t, ebook.MsgGeneration, snap.Error)
	assert.Nil(t, snap.Ebook)

	w = c.do(http.MethodGet, "/api/v1/ebook/export/md", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	c.do(http.MethodDelete, "/api/v1/ebook", "")
	assert.Equal(t, "idle", c.snapshot().Status)
}

func TestGenerate_BusyAndContinueConflicts(t *testing.T) {
	gen := &stubGenerator{gate: make(chan struct{})}
	c := newClient(t, gen)

	w := c.do(http.MethodPost, "/api/v1/ebook/continue", "")
	assert.Equal(t, http.StatusConflict, w.Code, "continue needs an ebook")

	w = c.do(http.MethodPost, "/api/v1/ebook", `{"topic":"beginner gardening"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "loading", decode(t, w).Status)
	assert.Equal(t, "beginner gardening", decode(t, w).Topic)

	w = c.do(http.MethodPost, "/api/v1/ebook", `{"topic":"beginner gardening"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(gen.gate)
	c.waitFor("success")

	gen.gate = make(chan struct{})
	w = c.do(http.MethodPost, "/api/v1/ebook/continue", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, decode(t, w).Continuing)
	assert.False(t, decode(t, w).CanContinue)

	w = c.do(http.MethodPost, "/api/v1/ebook/continue", "")
	assert.Equal(t, http.StatusConflict, w.Code, "one continuation at a time")

	close(gen.gate)
	c.waitFor("success")
}

func TestReset_RefusedWhileBusy(t *testing.T) {
	gen := &stubGenerator{gate: make(chan struct{})}
	c := newClient(t, gen)

	w := c.do(http.MethodPost, "/api/v1/ebook", `{"topic":"beginner gardening"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = c.do(http.MethodDelete, "/api/v1/ebook", "")
	assert.Equal(t, http.StatusConflict, w.Code, "a running generation cannot be abandoned")
	assert.Equal(t, "loading", c.snapshot().Status)

	w = c.do(http.MethodPost, "/api/v1/ebook", `{"topic":"beginner gardening"}`)
	assert.Equal(t, http.StatusConflict, w.Code, "no second generation after a refused reset")

	close(gen.gate)
	c.waitFor("success")

	gen.gate = make(chan struct{})
	w = c.do(http.MethodPost, "/api/v1/ebook/continue", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	w = c.do(http.MethodDelete, "/api/v1/ebook", "")
	assert.Equal(t, http.StatusConflict, w.Code, "nor can a running continuation")
	assert.True(t, c.snapshot().Continuing)

	close(gen.gate)
	c.waitFor("success")

	w = c.do(http.MethodDelete, "/api/v1/ebook", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", decode(t, w).Status)
}

func TestSnapshotsCarrySessionTag(t *testing.T) {
	srv := server.New(testConfig(), testLogger(), &stubGenerator{})
	alice := &client{t: t, handler: srv.Router()}
	bob := &client{t: t, handler: srv.Router()}

	tag := alice.snapshot().Session
	require.NotEmpty(t, tag)
	assert.NotEqual(t, alice.cookies[0].Value, tag, "the cookie value stays private")

	w := alice.do(http.MethodPost, "/api/v1/ebook", `{"topic":"beginner gardening"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, tag, decode(t, w).Session)
	assert.Equal(t, tag, alice.waitFor("success").Session)

	assert.NotEqual(t, tag, bob.snapshot().Session)

	// a browser whose cookie is no longer known lands in a new session
	alice.cookies[0].Value = "expired"
	assert.NotEqual(t, tag, alice.snapshot().Session)
}

// lockedBuffer is a bytes.Buffer safe for a logger writing from handlers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(b.buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		out = append(out, rec)
	}

	return out
}

func TestExport_LogsPageHeight(t *testing.T) {
	logs := &lockedBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	c := &client{t: t, handler: server.New(testConfig(), logger, &stubGenerator{}).Router()}

	c.do(http.MethodPost, "/api/v1/ebook", `{"topic":"beginner gardening"}`)
	c.waitFor("success")

	for _, format := range []string{"md", "pdf"} {
		w := c.do(http.MethodGet, "/api/v1/ebook/export/"+format, "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	heights := map[string]any{}
	for _, rec := range logs.records(t) {
		if rec["msg"] == "Exported ebook" {
			heights[rec["format"].(string)] = rec["height"]
		}
	}
	require.Contains(t, heights, "md")
	require.Contains(t, heights, "pdf")
	assert.Nil(t, heights["md"], "text formats have no page")
	assert.Greater(t, heights["pdf"], float64(0))
}

func TestExport(t *testing.T) {
	c := newClient(t, &stubGenerator{})

	w := c.do(http.MethodGet, "/api/v1/ebook/export/pdf", "")
	assert.Equal(t, http.StatusConflict, w.Code, "nothing to export yet")

	c.do(http.MethodPost, "/api/v1/ebook", `{"topic":"beginner gardening"}`)
	snap := c.waitFor("success")

	tests := []struct {
		format      string
		contentType string
		filename    string
	}{
		{format: "md", contentType: "text/markdown; charset=utf-8", filename: "Gardening -Basics.md"},
		{format: "txt", contentType: "text/plain; charset=utf-8", filename: "Gardening -Basics.txt"},
		{format: "pdf", contentType: "application/pdf", filename: "Gardening -Basics.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w := c.do(http.MethodGet, "/api/v1/ebook/export/"+tt.format, "")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
			assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
			assert.Contains(t, w.Header().Get("Content-Disposition"), tt.filename)
		})
	}

	w = c.do(http.MethodGet, "/api/v1/ebook/export/md", "")
	assert.Equal(t, snap.Ebook.Markdown, w.Body.String())

	w = c.do(http.MethodGet, "/api/v1/ebook/export/txt", "")
	assert.NotContains(t, w.Body.String(), "#")
	assert.NotContains(t, w.Body.String(), "*")

	w = c.do(http.MethodGet, "/api/v1/ebook/export/docx", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionsAreIsolated(t *testing.T) {
	srv := server.New(testConfig(), testLogger(), &stubGenerator{})
	alice := &client{t: t, handler: srv.Router()}
	bob := &client{t: t, handler: srv.Router()}

	alice.do(http.MethodPost, "/api/v1/ebook", `{"topic":"beginner gardening"}`)
	alice.waitFor("success")

	assert.Equal(t, "idle", bob.snapshot().Status)
	assert.NotEqual(t, alice.cookies[0].Value, bob.cookies[0].Value)
}

func TestEvents(t *testing.T) {
	gen := &stubGenerator{gate: make(chan struct{})}
	srv := server.New(testConfig(), testLogger(), gen)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// establish a session
	resp, err := http.Get(ts.URL + "/api/v1/ebook")
	require.NoError(t, err)
	resp.Body.Close()
	cookies := resp.Cookies()
	require.NotEmpty(t, cookies)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/ebook/events", nil)
	require.NoError(t, err)
	req.AddCookie(cookies[0])
	events, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer events.Body.Close()
	assert.Contains(t, events.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(events.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if data, ok := strings.CutPrefix(scanner.Text(), "data:"); ok {
				select {
				case lines <- data:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	nextStatus := func() string {
		t.Helper()
		select {
		case data, ok := <-lines:
			require.True(t, ok, "stream ended early")
			var snap snapshotBody
			require.NoError(t, json.Unmarshal([]byte(data), &snap))
			return snap.Status
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
			return ""
		}
	}

	assert.Equal(t, "idle", nextStatus(), "current snapshot first")

	post, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/ebook", strings.NewReader(`{"topic":"beginner gardening"}`))
	require.NoError(t, err)
	post.Header.Set("Content-Type", "application/json")
	post.AddCookie(cookies[0])
	postResp, err := http.DefaultClient.Do(post)
	require.NoError(t, err)
	postResp.Body.Close()
	require.Equal(t, http.StatusAccepted, postResp.StatusCode)

	assert.Equal(t, "loading", nextStatus())
	close(gen.gate)
	assert.Equal(t, "success", nextStatus())
}
