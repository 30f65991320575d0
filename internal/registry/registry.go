package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPaused    = "paused"
)

// ErrNotFound is returned for unknown run ids.
var ErrNotFound = errors.New("run not found")

// Run is one registered orchestrator run.
type Run struct {
	ID          string
	SpecPath    string
	SpecName    string
	Status      string
	PID         int
	PhaseCount  int
	StepCount   int
	TrackedStep int // best-effort position, advanced by skip
	Reason      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Registry stores run records. Safe for concurrent use; SQLite
// serializes writers underneath.
type Registry struct {
	db *sql.DB
}

// New creates a Registry over an open database.
func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// NewRunID generates a fresh run id.
func NewRunID() string {
	return uuid.New().String()[:8]
}

const runCols = "id, spec_path, spec_name, status, pid, phase_count, step_count, tracked_step, reason, created_at, updated_at"

// Create persists a new run record.
func (r *Registry) Create(run *Run) error {
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	_, err := r.db.Exec(
		"INSERT INTO runs ("+runCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		run.ID, run.SpecPath, run.SpecName, run.Status, run.PID,
		run.PhaseCount, run.StepCount, run.TrackedStep, run.Reason,
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run record: %w", err)
	}
	return nil
}

// Get retrieves a run by id.
func (r *Registry) Get(id string) (*Run, error) {
	row := r.db.QueryRow("SELECT "+runCols+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// List returns all runs, newest first.
func (r *Registry) List() ([]*Run, error) {
	rows, err := r.db.Query("SELECT " + runCols + " FROM runs ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SetStatus updates a run's status and reason.
func (r *Registry) SetStatus(id, status, reason string) error {
	return r.update(id, "UPDATE runs SET status = ?, reason = ?, updated_at = ? WHERE id = ?",
		status, reason, time.Now().UTC(), id)
}

// SetPID records the driver child's process id.
func (r *Registry) SetPID(id string, pid int) error {
	return r.update(id, "UPDATE runs SET pid = ?, updated_at = ? WHERE id = ?",
		pid, time.Now().UTC(), id)
}

// AdvanceTrackedStep bumps the best-effort step position (used by skip).
func (r *Registry) AdvanceTrackedStep(id string) error {
	return r.update(id, "UPDATE runs SET tracked_step = tracked_step + 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), id)
}

func (r *Registry) update(id, query string, args ...any) error {
	res, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	run := &Run{}
	err := scanner.Scan(
		&run.ID, &run.SpecPath, &run.SpecName, &run.Status, &run.PID,
		&run.PhaseCount, &run.StepCount, &run.TrackedStep, &run.Reason,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}
