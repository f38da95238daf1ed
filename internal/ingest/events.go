package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/renameio/v2"

	"github.com/selimozcann/seasec/internal/model"
)

// EventStore persists the collected events as JSON lines, one event per
// line. Save replaces the whole file atomically.
type EventStore struct {
	path string
	mu   sync.Mutex
}

func NewEventStore(path string) *EventStore { return &EventStore{path: path} }

func (s *EventStore) Path() string { return s.path }

// Load returns the stored events in file order; a missing file yields none.
func (s *EventStore) Load() ([]model.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.SecurityEvent{}, nil
		}
		return nil, errors.Wrap(err, "open event store")
	}
	defer f.Close()
	return ReadJSONL(f)
}

// Save replaces the stored events.
func (s *EventStore) Save(events []model.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create event store directory")
	}
	pf, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o644))
	if err != nil {
		return errors.Wrap(err, "stage event store")
	}
	defer pf.Cleanup()

	w := NewJSONLWriter(pf)
	for _, ev := range events {
		if err := w.Write(ev); err != nil {
			return errors.Wrap(err, "encode event")
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "write event store")
	}
	return errors.Wrap(pf.CloseAtomicallyReplace(), "replace event store")
}

// JSONLWriter writes one event per line.
type JSONLWriter struct {
	w   *bufio.Writer
	enc *json.Encoder
	mu  sync.Mutex
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{w: bw, enc: enc}
}

func (j *JSONLWriter) Write(ev model.SecurityEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(ev)
}

func (j *JSONLWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.w.Flush()
}

// ReadJSONL decodes events until EOF. Blank lines are skipped; a malformed
// line fails the read with its line number.
func ReadJSONL(r io.Reader) ([]model.SecurityEvent, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 8<<20)
	events := []model.SecurityEvent{}
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		var ev model.SecurityEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			return nil, errors.Wrapf(err, "event store line %d", line)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read event store")
	}
	return events, nil
}
