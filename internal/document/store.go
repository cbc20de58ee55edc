// Package document keeps uploaded title documents on the shared filesystem.
// Stored files are never modified or removed by the registry.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"titleregistry/internal/title/identity"
	"titleregistry/pkg/domain"
)

// DefaultMaxSize is the largest accepted upload.
const DefaultMaxSize = 10 << 20

var ErrTooLarge = errors.New("document exceeds the maximum size")

var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// Stored describes a document written to the store.
type Stored struct {
	Location string
	Size     int64
	ID       domain.TitleID
}

// FileStore writes each upload under a fresh name and computes its content
// identity while streaming.
type FileStore struct {
	dir     string
	hasher  *identity.Hasher
	maxSize int64
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*FileStore)

func WithMaxSize(n int64) Option {
	return func(s *FileStore) {
		s.maxSize = n
	}
}

func WithHasher(h *identity.Hasher) Option {
	return func(s *FileStore) {
		s.hasher = h
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *FileStore) {
		s.logger = logger
	}
}

func NewFileStore(dir string, opts ...Option) *FileStore {
	s := &FileStore{
		dir:     dir,
		hasher:  identity.Default(),
		maxSize: DefaultMaxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Dir is the directory documents are written to.
func (s *FileStore) Dir() string {
	return s.dir
}

// Save streams r to a new file named <unix-millis>-<uuid><ext>, where ext is
// taken from originalName. Uploads over the size limit return ErrTooLarge and
// leave nothing behind.
func (s *FileStore) Save(ctx context.Context, originalName string, r io.Reader) (*Stored, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating document directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating upload file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	digest := s.hasher.NewDigest()
	n, err := io.Copy(io.MultiWriter(tmp, digest), io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("writing upload: %w", err)
	}
	if n > s.maxSize {
		return nil, ErrTooLarge
	}
	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("syncing upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing upload: %w", err)
	}

	location := filepath.Join(s.dir, s.name(originalName))
	if err := os.Rename(tmp.Name(), location); err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}
	committed = true

	stored := &Stored{Location: location, Size: n, ID: digest.ID()}
	s.logger.InfoContext(ctx, "document stored",
		"location", location,
		"size", n,
		"title_id", stored.ID,
	)
	return stored, nil
}

func (s *FileStore) name(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if !safeExt.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.NewString(), ext)
}
