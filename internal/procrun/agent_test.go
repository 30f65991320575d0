package procrun

import (
	"strings"
	"testing"
)

func TestRunAgentQuietSuccess(t *testing.T) {
	r := NewRunner()
	result, err := r.RunAgent(t.TempDir(), "do the thing", AgentOptions{
		Command: "sh",
		Args:    []string{"-c", `echo done with: "$0"`},
		Mode:    ModeQuiet,
	})
	if err != nil {
		t.Fatalf("RunAgent failed: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if !strings.Contains(result.Summary, "done with: do the thing") {
		t.Errorf("summary should carry output tail, got %q", result.Summary)
	}
}

func TestRunAgentQuietCatastrophicPhrase(t *testing.T) {
	// Exit code is zero; the declared failure in output must win.
	r := NewRunner()
	result, err := r.RunAgent(t.TempDir(), "ignored", AgentOptions{
		Command: "sh",
		Args:    []string{"-c", "echo 'I cannot complete this task'"},
		Mode:    ModeQuiet,
	})
	if err == nil {
		t.Fatal("expected failure on catastrophic phrase")
	}
	if result.Success {
		t.Error("result should not be marked successful")
	}
	if !strings.Contains(result.Summary, "agent reported failure") {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
}

func TestRunAgentStreamSkipsPhraseScan(t *testing.T) {
	r := NewRunner()
	result, err := r.RunAgent(t.TempDir(), "ignored", AgentOptions{
		Command: "sh",
		Args:    []string{"-c", "echo 'fatal error mentioned in passing' > /dev/null"},
		Mode:    ModeStream,
	})
	if err != nil {
		t.Fatalf("streaming mode should not scan output: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
}

func TestRunAgentNonZeroExit(t *testing.T) {
	r := NewRunner()
	result, err := r.RunAgent(t.TempDir(), "ignored", AgentOptions{
		Command: "sh",
		Args:    []string{"-c", "echo broke >&2; exit 1"},
		Mode:    ModeQuiet,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Success {
		t.Error("result should not be successful")
	}
	if !strings.Contains(result.Summary, "exited with code 1") {
		t.Errorf("summary should name the exit code: %q", result.Summary)
	}
}

func TestScanCatastrophic(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"all good", ""},
		{"FATAL ERROR: out of road", "fatal error"},
		{"I Cannot Complete the migration", "i cannot complete"},
	}
	for _, tt := range tests {
		if got := scanCatastrophic(tt.output); got != tt.want {
			t.Errorf("scanCatastrophic(%q) = %q, want %q", tt.output, got, tt.want)
		}
	}
}
