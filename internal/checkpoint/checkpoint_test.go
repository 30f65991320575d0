package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissing(t *testing.T) {
	cp, err := Load(filepath.Join(t.TempDir(), "absent.checkpoint.json"))
	if err != nil {
		t.Fatalf("Load of missing file should not error: %v", err)
	}
	if cp != nil {
		t.Errorf("expected nil checkpoint, got %+v", cp)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.checkpoint.json")
	want := &Checkpoint{
		SpecPath:   "/plans/widget.md",
		SpecHash:   "abc123",
		Phase:      1,
		Step:       2,
		Branch:     "specrun/widget-20260830120000",
		StartedAt:  time.Now().UTC().Truncate(time.Second),
		LastStepAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.SpecPath != want.SpecPath || got.SpecHash != want.SpecHash {
		t.Errorf("identity mismatch: %+v", got)
	}
	if got.Phase != 1 || got.Step != 2 {
		t.Errorf("position mismatch: phase=%d step=%d", got.Phase, got.Step)
	}
	if got.Branch != want.Branch {
		t.Errorf("branch mismatch: %q", got.Branch)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widget.checkpoint.json")
	if err := Save(path, &Checkpoint{SpecPath: "/plans/widget.md"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "widget.checkpoint.json" {
		t.Errorf("expected only the checkpoint file, got %v", entries)
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.checkpoint.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptError, got %v", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.checkpoint.json")
	if err := Save(path, &Checkpoint{}); err != nil {
		t.Fatal(err)
	}
	if err := Delete(path); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if err := Delete(path); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cp := &Checkpoint{SpecPath: "/plans/widget.md", SpecHash: "h1"}

	if warn := Validate(cp, "/plans/widget.md", "h1"); warn != "" {
		t.Errorf("expected no warning, got %q", warn)
	}
	if warn := Validate(cp, "/plans/widget.md", "h2"); warn == "" {
		t.Error("expected a hash-mismatch warning")
	}
	if warn := Validate(cp, "/plans/other.md", "h1"); warn == "" {
		t.Error("expected a path-mismatch warning")
	}
	if warn := Validate(nil, "/plans/widget.md", "h1"); warn != "" {
		t.Errorf("nil checkpoint should not warn, got %q", warn)
	}
}
