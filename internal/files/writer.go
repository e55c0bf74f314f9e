package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iago/food-search-pipeline/internal/outcome"
)

const fileTimestampLayout = "20060102_150405"

// Writer stores resolved items as text files, one item per line.
type Writer struct {
	dir string
	now func() time.Time
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Write creates {yyyyMMdd_HHmmss}_{uuid}.txt under the output directory and
// returns its path.
func (w *Writer) Write(ctx context.Context, items []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", outcome.Internal(err, "create output directory")
	}

	name := fmt.Sprintf("%s_%s.txt", w.now().UTC().Format(fileTimestampLayout), uuid.NewString())
	path := filepath.Join(w.dir, name)

	var content strings.Builder
	for _, item := range items {
		content.WriteString(item)
		content.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(content.String()), 0o644); err != nil {
		return "", outcome.Internal(err, "write result file")
	}
	return path, nil
}

// Ready creates the output directory if needed and reports whether it can be
// used.
func (w *Writer) Ready(context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return outcome.Internal(err, "create output directory")
	}
	info, err := os.Stat(w.dir)
	if err != nil {
		return outcome.Internal(err, "stat output directory")
	}
	if !info.IsDir() {
		return outcome.Internal(nil, "%s is not a directory", w.dir)
	}
	return nil
}
