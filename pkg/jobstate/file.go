package jobstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/3leaps/thsubmit/pkg/treeherder"
)

// FileStore keeps state in two files under a directory:
//
//	<dir>/job.json    job snapshot, written by the running phase
//	<dir>/retval.txt  build exit code, written by the build step
//
// There is no locking. Concurrent invocations sharing a directory race.
type FileStore struct {
	dir string
}

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)

// NewFileStore returns a store rooted at dir. An empty dir means the
// working directory.
func NewFileStore(dir string) *FileStore {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "."
	}
	return &FileStore{dir: dir}
}

// Dir returns the state directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// JobPath returns the path of the job snapshot.
func (s *FileStore) JobPath() string {
	return filepath.Join(s.dir, JobFileName)
}

// ExitCodePath returns the path of the exit code file.
func (s *FileStore) ExitCodePath() string {
	return filepath.Join(s.dir, ExitCodeFileName)
}

// WriteJob writes the snapshot atomically via temp file + rename.
func (s *FileStore) WriteJob(record *treeherder.JobRecord) error {
	if record == nil {
		return fmt.Errorf("job record is nil")
	}
	if strings.TrimSpace(record.JobGUID) == "" {
		return fmt.Errorf("job_guid is required")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(s.dir, JobFileName+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp job file: %w", err)
	}

	if err := os.Rename(tmpName, s.JobPath()); err != nil {
		return fmt.Errorf("rename job file: %w", err)
	}
	return nil
}

// ReadJob loads the snapshot written by WriteJob.
func (s *FileStore) ReadJob() (*treeherder.JobRecord, error) {
	path := s.JobPath()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &DegradedError{Slot: SlotJob, Path: path, Err: classifyReadErr(err)}
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, &DegradedError{Slot: SlotJob, Path: path, Err: fmt.Errorf("%w: file is empty", ErrStateCorrupt)}
	}

	var record treeherder.JobRecord
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, &DegradedError{Slot: SlotJob, Path: path, Err: fmt.Errorf("%w: %v", ErrStateCorrupt, err)}
	}
	if strings.TrimSpace(record.JobGUID) == "" {
		return nil, &DegradedError{Slot: SlotJob, Path: path, Err: fmt.Errorf("%w: job_guid is missing", ErrStateCorrupt)}
	}
	return &record, nil
}

// ReadExitCode parses the integer in retval.txt.
func (s *FileStore) ReadExitCode() (int, error) {
	path := s.ExitCodePath()
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, &DegradedError{Slot: SlotExitCode, Path: path, Err: classifyReadErr(err)}
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, &DegradedError{Slot: SlotExitCode, Path: path, Err: fmt.Errorf("%w: %v", ErrStateCorrupt, err)}
	}
	return code, nil
}

func classifyReadErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStateMissing, err)
	}
	return err
}
