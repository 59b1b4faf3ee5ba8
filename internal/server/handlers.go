package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/internal/export"
	"github.com/alkime/ebooks/internal/markdown"
	"github.com/alkime/ebooks/internal/metrics"
	"github.com/alkime/ebooks/internal/workflow"
)

// ebookView is an ebook as the browser receives it, with the body already
// rendered to escaped HTML.
type ebookView struct {
	Title         string `json:"title"`
	Markdown      string `json:"markdown"`
	CoverImageURL string `json:"coverImageUrl"`
	HTML          string `json:"html"`
}

type snapshotView struct {
	Session     string          `json:"session"`
	Status      workflow.Status `json:"status"`
	Ebook       *ebookView      `json:"ebook,omitempty"`
	Error       string          `json:"error,omitempty"`
	Continuing  bool            `json:"continuing"`
	CanContinue bool            `json:"canContinue"`
	Style       ebook.Style     `json:"style,omitempty"`
	Topic       string          `json:"topic,omitempty"`
	Version     uint64          `json:"version"`
}

// newSnapshotView tags snap with the session it belongs to. Versions restart
// in a replacement session, so clients compare them only within one tag.
func newSnapshotView(tag string, snap workflow.Snapshot) snapshotView {
	view := snapshotView{
		Session:     tag,
		Status:      snap.Status,
		Error:       snap.Error,
		Continuing:  snap.Continuing,
		CanContinue: snap.CanContinue(),
		Style:       snap.Style,
		Topic:       snap.Topic,
		Version:     snap.Version,
	}
	if snap.Ebook != nil {
		view.Ebook = &ebookView{
			Title:         snap.Ebook.Title,
			Markdown:      snap.Ebook.Markdown,
			CoverImageURL: snap.Ebook.CoverImageURL,
			HTML:          markdown.HTML(snap.Ebook.Markdown),
		}
	}

	return view
}

type option[T any] struct {
	Value T      `json:"value"`
	Label string `json:"label"`
}

func (s *Server) handleOptions(c *gin.Context) {
	styles := make([]option[ebook.Style], 0, len(ebook.Styles()))
	for _, st := range ebook.Styles() {
		styles = append(styles, option[ebook.Style]{Value: st, Label: st.Label()})
	}

	chapters := make([]option[int], 0, len(ebook.ChapterCounts()))
	for _, n := range ebook.ChapterCounts() {
		chapters = append(chapters, option[int]{Value: n, Label: ebook.ChapterLabel(n)})
	}

	formats := make([]string, 0, len(export.Formats()))
	for _, f := range export.Formats() {
		formats = append(formats, string(f))
	}

	c.JSON(http.StatusOK, gin.H{
		"styles":          styles,
		"chapterCounts":   chapters,
		"defaultStyle":    ebook.DefaultStyle,
		"defaultChapters": ebook.DefaultChapters,
		"exportFormats":   formats,
	})
}

func (s *Server) handleGetEbook(c *gin.Context) {
	sess := s.sessions.session(c)
	c.JSON(http.StatusOK, newSnapshotView(sess.tag, sess.Snapshot()))
}

type generateBody struct {
	Topic    string      `json:"topic"`
	Chapters int         `json:"chapters"`
	Style    ebook.Style `json:"style"`
}

// handleGenerate starts a generation and answers with the loading snapshot.
// The provider calls outlive the request.
func (s *Server) handleGenerate(c *gin.Context) {
	var body generateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req, err := ebook.NewGenerationRequest(body.Topic, body.Chapters, body.Style)
	if err != nil {
		s.respondError(c, err)
		return
	}

	sess := s.sessions.session(c)
	if err := sess.Start(detach(c), req); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, newSnapshotView(sess.tag, sess.Snapshot()))
}

func (s *Server) handleContinue(c *gin.Context) {
	sess := s.sessions.session(c)
	if err := sess.StartContinue(detach(c)); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, newSnapshotView(sess.tag, sess.Snapshot()))
}

func (s *Server) handleDismiss(c *gin.Context) {
	sess := s.sessions.session(c)
	sess.DismissError()
	c.JSON(http.StatusOK, newSnapshotView(sess.tag, sess.Snapshot()))
}

func (s *Server) handleReset(c *gin.Context) {
	sess := s.sessions.session(c)
	if err := sess.Reset(); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSnapshotView(sess.tag, sess.Snapshot()))
}

// handleEvents streams a snapshot after every transition as Server-Sent
// Events, starting with the current one.
func (s *Server) handleEvents(c *gin.Context) {
	sess := s.sessions.session(c)
	updates, cancel := sess.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", newSnapshotView(sess.tag, sess.Snapshot()))
	c.Writer.Flush()

	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("snapshot", newSnapshotView(sess.tag, snap))
			return true
		case <-keepalive.C:
			c.SSEvent("ping", "")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (s *Server) handleExport(c *gin.Context) {
	format, err := export.ParseFormat(c.Param("format"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	snap := s.sessions.session(c).Snapshot()
	if snap.Ebook == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no ebook to export"})
		return
	}

	f, err := export.Export(*snap.Ebook, snap.Style, format)
	metrics.ObserveExport(string(format), err)
	if err != nil {
		s.logger.Error("Export failed", "error", err, "format", format)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export ebook"})
		return
	}

	s.logExport(format, f)

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	c.Data(http.StatusOK, f.ContentType, f.Data)
}

// tallPageHeight is the PDF page height in pixels above which an export is
// logged as a warning. Long books render to a single page of any height.
const tallPageHeight = 20000

func (s *Server) logExport(format export.Format, f *export.File) {
	attrs := []any{"format", format, "bytes", len(f.Data)}
	if f.PageHeight == 0 {
		s.logger.Info("Exported ebook", attrs...)
		return
	}

	attrs = append(attrs, "height", f.PageHeight)
	if f.PageHeight > tallPageHeight {
		s.logger.Warn("Exported very tall PDF page", attrs...)
		return
	}
	s.logger.Info("Exported ebook", attrs...)
}

// respondError maps workflow and validation errors to status codes.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ebook.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, workflow.ErrBusy),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrContinuationInProgress):
		status = http.StatusConflict
	default:
		s.logger.Error("Request failed", "error", err, "path", c.FullPath())
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

// detach keeps the request's values, such as the trace span, without its
// cancellation so provider calls survive the response.
func detach(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
