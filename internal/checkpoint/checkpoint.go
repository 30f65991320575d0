// Package checkpoint persists run progress so an interrupted run can
// resume from the next unit of work.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint records the next unit of work to execute. Phase and Step are
// 0-indexed positions into the parsed plan; they always denote work not
// yet done, never a completed unit, so a crash can only under-count
// progress.
type Checkpoint struct {
	SpecPath   string    `json:"spec_path"`
	SpecHash   string    `json:"spec_hash"`
	Phase      int       `json:"phase"`
	Step       int       `json:"step"`
	Branch     string    `json:"branch"`
	StartedAt  time.Time `json:"started_at"`
	LastStepAt time.Time `json:"last_step_at"`
}

// CorruptError indicates the checkpoint file exists but cannot be
// decoded. It is never swallowed: the operator must delete or repair the
// file before resuming.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("checkpoint %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Load reads a checkpoint from path. Returns (nil, nil) when no
// checkpoint exists, and a CorruptError when the file cannot be decoded.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	return &cp, nil
}

// Save writes the checkpoint atomically: a temp file in the target's
// directory is renamed over the destination, so a reader never observes a
// half-written state.
func Save(path string, cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename checkpoint into place: %w", err)
	}
	return nil
}

// Delete removes the checkpoint file. A missing file is not an error.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Validate compares a loaded checkpoint against the spec being run.
// Mismatches are non-fatal (documents legitimately evolve between
// resumes): the returned string is a human-readable warning, empty when
// everything matches.
func Validate(cp *Checkpoint, specPath, specHash string) string {
	if cp == nil {
		return ""
	}
	if cp.SpecPath != specPath {
		return fmt.Sprintf("checkpoint was created for %s, resuming against %s", cp.SpecPath, specPath)
	}
	if cp.SpecHash != specHash {
		return "spec document changed since the checkpoint was written; resuming anyway, step numbering may have shifted"
	}
	return ""
}
