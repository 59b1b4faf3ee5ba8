package logger_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alkime/ebooks/internal/config"
	"github.com/alkime/ebooks/internal/logger"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("verbose"))
}

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	l := logger.SetupLogger(&config.Config{Env: config.EnvProduction, LogLevel: "warn"})

	assert.False(t, l.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, l.Enabled(t.Context(), slog.LevelWarn))
	assert.Same(t, l, slog.Default())

	dev := logger.SetupLogger(&config.Config{Env: config.EnvDevelopment, LogLevel: "error"})
	assert.True(t, dev.Enabled(t.Context(), slog.LevelDebug), "development always logs debug")
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewText(&buf, slog.LevelInfo)

	l.Debug("hidden")
	l.Info("Saved ebook", "path", "/tmp/x.md")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "path=/tmp/x.md")
}
