package logger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/nest/internal/adapters/logger"
	"go.trai.ch/zerr"
)

func TestCollectErrorEntries(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantMessages []string
	}{
		{"standard error", errors.New("simple"), []string{"simple"}},
		{"zerr chain", zerr.Wrap(zerr.Wrap(errors.New("root"), "middle"), "outer"), []string{"outer", "middle", "root"}},
		{"metadata-only layer", zerr.With(errors.New("plain"), "k", "v"), []string{"plain"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := logger.CollectErrorEntries(tt.err)
			got := make([]string, len(entries))
			for i, e := range entries {
				got[i] = e.Message()
			}
			assert.Equal(t, tt.wantMessages, got)
		})
	}
}

func TestCollectErrorEntries_MetadataMerged(t *testing.T) {
	err := zerr.Wrap(zerr.With(errors.New("dial tcp"), "attempt", 3), "fetch failed")
	entries := logger.CollectErrorEntries(err)
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]any{"attempt": 3}, entries[0].Meta())
	assert.Equal(t, "dial tcp", entries[1].Message())
}

func TestFormatErrorEntries_Multiline(t *testing.T) {
	entries := logger.CollectErrorEntries(zerr.Wrap(errors.New("a\nb"), "top\nmore"))
	got := logger.FormatErrorEntries(entries)
	want := "Error: top\n" +
		"       more\n" +
		"\n" +
		"  Caused by:\n" +
		"    → a\n" +
		"      b"
	assert.Equal(t, want, got)
}
