package registry

import (
	"errors"
	"path/filepath"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "specrun.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func sampleRun(id string) *Run {
	return &Run{
		ID:         id,
		SpecPath:   "/plans/widget.md",
		SpecName:   "widget",
		Status:     StatusRunning,
		PID:        4242,
		PhaseCount: 2,
		StepCount:  5,
	}
}

func TestCreateAndGet(t *testing.T) {
	r := testRegistry(t)
	if err := r.Create(sampleRun("run-1")); err != nil {
		t.Fatal(err)
	}

	got, err := r.Get("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.SpecName != "widget" || got.Status != StatusRunning || got.PID != 4242 {
		t.Errorf("record mismatch: %+v", got)
	}
	if got.PhaseCount != 2 || got.StepCount != 5 {
		t.Errorf("plan counts mismatch: %+v", got)
	}
}

func TestGetUnknown(t *testing.T) {
	r := testRegistry(t)
	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	r := testRegistry(t)
	if err := r.Create(sampleRun("run-1")); err != nil {
		t.Fatal(err)
	}
	if err := r.SetStatus("run-1", StatusFailed, "aborted by operator"); err != nil {
		t.Fatal(err)
	}

	got, err := r.Get("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.Reason != "aborted by operator" {
		t.Errorf("status update not applied: %+v", got)
	}

	if err := r.SetStatus("nope", StatusFailed, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestAdvanceTrackedStep(t *testing.T) {
	r := testRegistry(t)
	if err := r.Create(sampleRun("run-1")); err != nil {
		t.Fatal(err)
	}
	if err := r.AdvanceTrackedStep("run-1"); err != nil {
		t.Fatal(err)
	}
	if err := r.AdvanceTrackedStep("run-1"); err != nil {
		t.Fatal(err)
	}

	got, err := r.Get("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.TrackedStep != 2 {
		t.Errorf("expected tracked step 2, got %d", got.TrackedStep)
	}
}

func TestListNewestFirst(t *testing.T) {
	r := testRegistry(t)
	if err := r.Create(sampleRun("run-1")); err != nil {
		t.Fatal(err)
	}
	if err := r.Create(sampleRun("run-2")); err != nil {
		t.Fatal(err)
	}

	runs, err := r.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if len(a) != 8 {
		t.Errorf("expected 8-char run id, got %q", a)
	}
	if a == b {
		t.Error("run ids should be unique")
	}
}

func TestMigrationIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "specrun.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	// Reopening applies no migration twice.
	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	db.Close()
}
