package jobstate

import (
	"sync"

	"github.com/3leaps/thsubmit/pkg/treeherder"
)

// MemoryStore keeps state in memory. It backs tests and callers that carry
// state between phases by other means.
type MemoryStore struct {
	mu       sync.Mutex
	job      *treeherder.JobRecord
	exitCode *int
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// WriteJob stores a copy of the record.
func (m *MemoryStore) WriteJob(record *treeherder.JobRecord) error {
	cp, err := record.Clone()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.job = cp
	return nil
}

// ReadJob returns a copy of the stored record.
func (m *MemoryStore) ReadJob() (*treeherder.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job == nil {
		return nil, &DegradedError{Slot: SlotJob, Err: ErrStateMissing}
	}
	return m.job.Clone()
}

// SetExitCode records the build exit code.
func (m *MemoryStore) SetExitCode(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitCode = &code
}

// ReadExitCode returns the recorded exit code.
func (m *MemoryStore) ReadExitCode() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exitCode == nil {
		return 0, &DegradedError{Slot: SlotExitCode, Err: ErrStateMissing}
	}
	return *m.exitCode, nil
}
