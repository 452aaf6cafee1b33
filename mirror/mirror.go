// Package mirror copies built archives into a lode Store.
//
// Archives land at Hive-partitioned paths:
//
//	datasets/<dataset>/partitions/user=<id>/day=<yyyy-mm-dd>/session=<id>/files/<name>
//
// The mirror is optional and best-effort. A failed write is reported to the
// caller but never stops delivery.
package mirror

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"
)

// DefaultDataset is the dataset name used when none is configured.
const DefaultDataset = "bundles"

// Key locates one session's archive.
type Key struct {
	UserID    int64
	SessionID string
	// Time picks the day partition (UTC).
	Time time.Time
}

// Writer stores archive bytes.
type Writer interface {
	// PutArchive streams r to the key's partition under filename and
	// returns the store path.
	PutArchive(ctx context.Context, key Key, filename string, r io.Reader) (string, error)
}

// Store is a lode-backed Writer.
type Store struct {
	dataset string
	factory lode.StoreFactory

	once     sync.Once
	store    lode.Store
	storeErr error
}

// New creates a mirror over a store factory.
// Use lode.NewMemoryFactory() for testing.
func New(dataset string, factory lode.StoreFactory) *Store {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return &Store{dataset: dataset, factory: factory}
}

// NewFS creates a mirror with filesystem storage rooted at root.
func NewFS(dataset, root string) *Store {
	return New(dataset, lode.NewFSFactory(root))
}

// PutArchive implements Writer.
func (s *Store) PutArchive(ctx context.Context, key Key, filename string, r io.Reader) (string, error) {
	if err := validateFilename(filename); err != nil {
		return "", err
	}
	store, err := s.getOrCreateStore()
	if err != nil {
		return "", WrapInitError(err, s.dataset)
	}

	path := BuildPath(s.dataset, key, filename)
	if err := store.Put(ctx, path, r); err != nil {
		return "", WrapWriteError(err, path)
	}
	return path, nil
}

// Open reads back a mirrored archive.
func (s *Store) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	store, err := s.getOrCreateStore()
	if err != nil {
		return nil, WrapInitError(err, s.dataset)
	}
	rc, err := store.Get(ctx, path)
	if err != nil {
		return nil, WrapReadError(err, path)
	}
	return rc, nil
}

// getOrCreateStore lazily initializes the Store from the factory.
func (s *Store) getOrCreateStore() (lode.Store, error) {
	s.once.Do(func() {
		s.store, s.storeErr = s.factory()
	})
	return s.store, s.storeErr
}

// BuildPath computes the Hive-partitioned path for an archive.
func BuildPath(dataset string, key Key, filename string) string {
	return fmt.Sprintf("datasets/%s/partitions/user=%s/day=%s/session=%s/files/%s",
		dataset,
		strconv.FormatInt(key.UserID, 10),
		key.Time.UTC().Format(time.DateOnly),
		key.SessionID,
		filename,
	)
}

func validateFilename(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("mirror: invalid filename %q", name)
	}
	return nil
}

// StubWriter records PutArchive calls for testing.
type StubWriter struct {
	mu    sync.Mutex
	Err   error
	Files []StubRecord
}

// StubRecord is a recorded archive write.
type StubRecord struct {
	Key      Key
	Filename string
	Data     []byte
}

// PutArchive implements Writer by recording the call.
func (w *StubWriter) PutArchive(_ context.Context, key Key, filename string, r io.Reader) (string, error) {
	if w.Err != nil {
		return "", w.Err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Files = append(w.Files, StubRecord{Key: key, Filename: filename, Data: data})
	return BuildPath(DefaultDataset, key, filename), nil
}

// Records returns a copy of the recorded writes.
func (w *StubWriter) Records() []StubRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]StubRecord(nil), w.Files...)
}

// Verify implementations.
var (
	_ Writer = (*Store)(nil)
	_ Writer = (*StubWriter)(nil)
)
