package document

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titleregistry/internal/title/identity"
)

var storedName = regexp.MustCompile(`^1714557600000-[0-9a-f-]{36}\.pdf$`)

func newStore(t *testing.T, opts ...Option) *FileStore {
	t.Helper()
	clock := func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return NewFileStore(filepath.Join(t.TempDir(), "titres"), append([]Option{WithClock(clock)}, opts...)...)
}

func TestSave(t *testing.T) {
	store := newStore(t)
	doc := []byte("%PDF-1.7 acte de vente")

	stored, err := store.Save(context.Background(), "Acte.PDF", bytes.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, store.Dir(), filepath.Dir(stored.Location))
	assert.Regexp(t, storedName, filepath.Base(stored.Location))
	assert.Equal(t, int64(len(doc)), stored.Size)
	assert.Equal(t, identity.Default().Sum(doc), stored.ID)

	onDisk, err := os.ReadFile(stored.Location)
	require.NoError(t, err)
	assert.Equal(t, doc, onDisk)
}

func TestSaveGivesEveryUploadItsOwnFile(t *testing.T) {
	store := newStore(t)
	doc := []byte("same bytes")

	first, err := store.Save(context.Background(), "a.pdf", bytes.NewReader(doc))
	require.NoError(t, err)
	second, err := store.Save(context.Background(), "a.pdf", bytes.NewReader(doc))
	require.NoError(t, err)

	assert.NotEqual(t, first.Location, second.Location)
	assert.Equal(t, first.ID, second.ID)
	assert.FileExists(t, first.Location)
}

func TestSaveRejectsOversizedUploads(t *testing.T) {
	store := newStore(t, WithMaxSize(8))

	_, err := store.Save(context.Background(), "big.pdf", bytes.NewReader(make([]byte, 9)))
	assert.True(t, errors.Is(err, ErrTooLarge))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "a rejected upload leaves no partial file")

	_, err = store.Save(context.Background(), "fits.pdf", bytes.NewReader(make([]byte, 8)))
	assert.NoError(t, err)
}

func TestStoredNameExtension(t *testing.T) {
	store := newStore(t)
	for _, tc := range []struct {
		original string
		ext      string
	}{
		{"scan.png", ".png"},
		{"../../etc/cron.d/job.JPEG", ".jpeg"},
		{"no-extension", ""},
		{"weird.p d f", ""},
	} {
		t.Run(tc.original, func(t *testing.T) {
			assert.Equal(t, tc.ext, filepath.Ext(store.name(tc.original)))
		})
	}
}
