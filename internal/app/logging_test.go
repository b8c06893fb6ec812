package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "json", "warn")
	assert.False(t, l.Enabled(context.Background(), slog.LevelInfo))
	l.Warn("Source degraded", "source", "sparhamster")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"source":"sparhamster"`)

	buf.Reset()
	l = NewLogger(&buf, "TEXT", "verbose")
	assert.True(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, l.Enabled(context.Background(), slog.LevelDebug))
	l.Info("Fetch finished", "inserted", 3)
	assert.Contains(t, buf.String(), "inserted=3")
}
