package modelstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"

	"github.com/selimozcann/seasec/internal/iforest"
)

// SnapshotVersion is bumped when the on-disk layout changes.
const SnapshotVersion = 1

// ErrNotFound is returned by Load when no model has been saved yet.
var ErrNotFound = errors.New("model not found")

// Snapshot is the persisted state of a fitted model.
type Snapshot struct {
	Version   int             `json:"version"`
	Features  []string        `json:"features"`
	TrainedOn int             `json:"trained_on"`
	TrainedAt time.Time       `json:"trained_at"`
	Forest    *iforest.Forest `json:"forest"`
}

// ModelStore is the single model slot of a deployment.
type ModelStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Location() string
}

const lockRetry = 50 * time.Millisecond

// FileStore keeps the snapshot in one JSON file. Saves take an exclusive
// lock on a sibling .lock file and replace the file atomically; loads take
// a shared lock.
type FileStore struct {
	path string
}

var _ ModelStore = (*FileStore)(nil)

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Location returns the snapshot file path.
func (s *FileStore) Location() string { return s.path }

// Save overwrites the stored snapshot.
func (s *FileStore) Save(ctx context.Context, snap *Snapshot) (err error) {
	if snap == nil || snap.Forest == nil {
		return errors.New("modelstore: nil snapshot")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create model directory")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode model snapshot")
	}

	lock := flock.New(s.path + ".lock")
	ok, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return errors.Wrap(err, "lock model slot")
	}
	if !ok {
		return errors.Newf("lock model slot %s: not acquired", s.path)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = errors.Wrap(uerr, "unlock model slot")
		}
	}()

	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write model %s", s.path)
	}
	return nil
}

// Load reads the stored snapshot, returning ErrNotFound when the slot is
// empty.
func (s *FileStore) Load(ctx context.Context) (snap *Snapshot, err error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(ErrNotFound, "%s", s.path)
	}
	lock := flock.New(s.path + ".lock")
	ok, err := lock.TryRLockContext(ctx, lockRetry)
	if err != nil {
		return nil, errors.Wrap(err, "lock model slot")
	}
	if !ok {
		return nil, errors.Newf("lock model slot %s: not acquired", s.path)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = errors.Wrap(uerr, "unlock model slot")
		}
	}()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(ErrNotFound, "%s", s.path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read model %s", s.path)
	}
	snap = &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, errors.Wrapf(err, "decode model %s", s.path)
	}
	if snap.Forest == nil {
		return nil, errors.Newf("model %s has no forest", s.path)
	}
	return snap, nil
}

// MemoryStore holds a snapshot in memory. It round-trips through JSON so
// callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	data []byte
}

var _ ModelStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory slot.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Location identifies the in-memory slot.
func (m *MemoryStore) Location() string { return "memory://model" }

// Save replaces the held snapshot.
func (m *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	if snap == nil || snap.Forest == nil {
		return errors.New("modelstore: nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode model snapshot")
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

// Load returns a copy of the held snapshot.
func (m *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	data := m.data
	m.mu.RUnlock()
	if data == nil {
		return nil, ErrNotFound
	}
	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, errors.Wrap(err, "decode model snapshot")
	}
	return snap, nil
}
