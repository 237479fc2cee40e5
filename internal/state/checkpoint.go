package state

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/liblib-tools/collector/internal/metrics"
)

const resumeFile = "resume_points.json"

// CheckpointStore persists exactly one live resume point per task type in
// resume_points.json. Writers serialize on the store's mutex and replace
// the file atomically.
type CheckpointStore struct {
	fileStore
}

// NewCheckpointStore creates the store rooted at dir.
func NewCheckpointStore(dir string, logger *zap.Logger) (*CheckpointStore, error) {
	s := &CheckpointStore{}
	if err := s.fileStore.init(filepath.Join(dir, resumeFile), logger); err != nil {
		return nil, err
	}
	return s, nil
}

// Save atomically overwrites the resume record for taskType.
func (s *CheckpointStore) Save(taskType string, currentPage, totalProcessed int, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := make(map[string]ResumePoint)
	if _, err := readJSON(s.path, &points); err != nil {
		return err
	}

	if metadata == nil {
		metadata = map[string]string{}
	}
	points[taskType] = ResumePoint{
		TaskType:       taskType,
		CurrentPage:    currentPage,
		TotalProcessed: totalProcessed,
		Metadata:       metadata,
		UpdatedAt:      s.now(),
	}

	if err := writeJSONAtomic(s.path, points); err != nil {
		return err
	}
	metrics.ObserveCheckpointWrite(taskType, currentPage)
	s.logger.Debug("checkpoint saved",
		zap.String("task_type", taskType),
		zap.Int("page", currentPage),
		zap.Int("processed", totalProcessed),
	)
	return nil
}

// Load returns the resume record for taskType. The bool reports whether a
// record exists; absence is a normal outcome.
func (s *CheckpointStore) Load(taskType string) (ResumePoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := make(map[string]ResumePoint)
	if _, err := readJSON(s.path, &points); err != nil {
		return ResumePoint{}, false, err
	}
	rp, ok := points[taskType]
	return rp, ok, nil
}

// All returns every live resume point keyed by task type.
func (s *CheckpointStore) All() (map[string]ResumePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := make(map[string]ResumePoint)
	if _, err := readJSON(s.path, &points); err != nil {
		return nil, err
	}
	return points, nil
}
