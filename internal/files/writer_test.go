package files

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterCreatesTimestampedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	w := NewWriter(dir)
	w.now = func() time.Time { return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC) }

	path, err := w.Write(context.Background(), []string{"dish-42", "dish-7"})
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, regexp.MustCompile(`^20260314_150926_[0-9a-f-]{36}\.txt$`), filepath.Base(path))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dish-42\ndish-7\n", string(content))
}

func TestWriterNeverReusesNames(t *testing.T) {
	w := NewWriter(t.TempDir())

	first, err := w.Write(context.Background(), []string{"a"})
	require.NoError(t, err)
	second, err := w.Write(context.Background(), []string{"a"})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestWriterHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWriter(t.TempDir()).Write(ctx, []string{"a"})

	assert.ErrorIs(t, err, context.Canceled)
}
