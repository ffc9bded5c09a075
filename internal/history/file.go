package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"live-subtitle-pipeline/internal/model"
)

// FileSink appends one JSON record per line to a per-run history file,
// history_<timestamp>.log under the configured directory.
type FileSink struct {
	// SyncInterval batches fsync calls; zero syncs after every record.
	SyncInterval time.Duration

	mu       sync.Mutex
	f        *os.File
	enc      *json.Encoder
	lastSync time.Time
	closed   bool
}

// NewFileSink creates the history directory and opens a fresh run file.
func NewFileSink(dir string, syncInterval time.Duration) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	name := fmt.Sprintf("history_%s.log", time.Now().Format("2006-01-02_15-04-05"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	return &FileSink{
		SyncInterval: syncInterval,
		f:            f,
		enc:          json.NewEncoder(f),
	}, nil
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string {
	return s.f.Name()
}

// Append writes one record and syncs per the configured interval.
func (s *FileSink) Append(ctx context.Context, rec model.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("history file sink closed")
	}
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("append history record: %w", err)
	}
	if s.SyncInterval <= 0 || time.Since(s.lastSync) >= s.SyncInterval {
		if err := s.f.Sync(); err != nil {
			return fmt.Errorf("sync history file: %w", err)
		}
		s.lastSync = time.Now()
	}
	return nil
}

// Close performs a final sync and closes the file. Idempotent.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.f.Sync(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}
