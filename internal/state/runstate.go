package state

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

const runStateFile = "collection_state.json"

// Run statuses recorded in collection_state.json.
const (
	RunRunning   = "RUNNING"
	RunCompleted = "COMPLETED"
	RunFailed    = "FAILED"
)

// RunStateStore persists run-level aggregate counters keyed by run ID.
type RunStateStore struct {
	fileStore
}

// NewRunStateStore creates the store rooted at dir.
func NewRunStateStore(dir string, logger *zap.Logger) (*RunStateStore, error) {
	s := &RunStateStore{}
	if err := s.fileStore.init(filepath.Join(dir, runStateFile), logger); err != nil {
		return nil, err
	}
	return s, nil
}

// Start records a new running session.
func (s *RunStateStore) Start(runID, taskType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	states, err := s.loadLocked()
	if err != nil {
		return err
	}
	now := s.now()
	states[runID] = RunState{
		RunID:      runID,
		TaskType:   taskType,
		Status:     RunRunning,
		StartTime:  now,
		LastUpdate: now,
	}
	return writeJSONAtomic(s.path, states)
}

// Update applies mutate to the run record and bumps its last-update time.
func (s *RunStateStore) Update(runID string, mutate func(*RunState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	states, err := s.loadLocked()
	if err != nil {
		return err
	}
	rs, ok := states[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	mutate(&rs)
	rs.LastUpdate = s.now()
	states[runID] = rs
	return writeJSONAtomic(s.path, states)
}

// Get returns the run record for runID.
func (s *RunStateStore) Get(runID string) (RunState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	states, err := s.loadLocked()
	if err != nil {
		return RunState{}, false, err
	}
	rs, ok := states[runID]
	return rs, ok, nil
}

func (s *RunStateStore) loadLocked() (map[string]RunState, error) {
	states := make(map[string]RunState)
	if _, err := readJSON(s.path, &states); err != nil {
		return nil, err
	}
	return states, nil
}
