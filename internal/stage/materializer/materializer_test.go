package materializer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/food-search-pipeline/internal/domain"
	"github.com/iago/food-search-pipeline/internal/files"
)

type recordingNext struct {
	sent []domain.Envelope[string]
	err  error
}

func (n *recordingNext) Execute(_ context.Context, envelope domain.Envelope[string]) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, envelope)
	return nil
}

func TestHandleWritesFileAndForwardsPath(t *testing.T) {
	dir := t.TempDir()
	next := &recordingNext{}
	id := uuid.Must(uuid.NewV7())

	err := New(files.NewWriter(dir), next).Handle(context.Background(), domain.Envelope[[]string]{
		ID:   id,
		Data: []string{"dish-42", "dish-7"},
	})

	require.NoError(t, err)
	require.Len(t, next.sent, 1)
	assert.Equal(t, id, next.sent[0].ID)
	assert.Equal(t, dir, filepath.Dir(next.sent[0].Data))

	content, err := os.ReadFile(next.sent[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "dish-42\ndish-7\n", string(content))
}

func TestHandleForwardFailureIsReturned(t *testing.T) {
	next := &recordingNext{err: errors.New("channel closed")}

	err := New(files.NewWriter(t.TempDir()), next).Handle(context.Background(), domain.Envelope[[]string]{
		ID:   uuid.Must(uuid.NewV7()),
		Data: []string{"dish-42"},
	})

	assert.EqualError(t, err, "channel closed")
}
