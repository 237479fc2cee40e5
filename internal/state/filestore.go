package state

import (
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/liblib-tools/collector/internal/metrics"
)

// fileStore is the shared base of the JSON-file-backed stores: one owned
// file, one writer mutex, an injectable clock.
type fileStore struct {
	mu     sync.Mutex
	path   string
	now    func() time.Time
	logger *zap.Logger
}

func (s *fileStore) init(path string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	metrics.Init()
	s.path = path
	s.now = time.Now
	s.logger = logger
	return nil
}

// SetClock overrides the store's time source. Intended for tests.
func (s *fileStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Path returns the store's backing file path.
func (s *fileStore) Path() string {
	return s.path
}
