package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/nest/internal/adapters/logger"
	"go.trai.ch/zerr"
)

// newTestLogger creates a logger writing to a buffer without colors.
func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	lg := logger.New().(*logger.Logger)
	lg.SetOutput(buf)
	return lg, buf
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name string
		log  func(*logger.Logger)
		want string
	}{
		{"info", func(l *logger.Logger) { l.Info("resolved 3 packages") }, "resolved 3 packages\n"},
		{"warn", func(l *logger.Logger) { l.Warn("deprecated") }, "! deprecated\n"},
		{"error", func(l *logger.Logger) { l.Error(errors.New("boom")) }, "✗ Error: boom\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, buf := newTestLogger(t)
			tt.log(lg)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestLogger_ErrorNil(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.Error(nil)
	assert.Empty(t, buf.String())
}

func TestLogger_Quiet(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetQuiet(true)
	lg.Info("hidden")
	lg.Warn("shown")
	assert.Equal(t, "! shown\n", buf.String())
}

func TestLogger_JSON(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetJSON(true)
	lg.Error(zerr.Wrap(errors.New("root"), "outer"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "operation failed", record["msg"])
	group, ok := record["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "outer", group["msg"])
	assert.Equal(t, "root", group["cause"])
}

func TestLogger_ErrorChain(t *testing.T) {
	lg, buf := newTestLogger(t)

	err := zerr.With(zerr.Wrap(zerr.New("lifecycle script failed"), "reify failed"), "package", "foo@1.0.0")
	lg.Error(err)

	want := "✗ Error: reify failed (package=foo@1.0.0)\n" +
		"\n" +
		"  Caused by:\n" +
		"    → lifecycle script failed\n"
	assert.Equal(t, want, buf.String())
}
