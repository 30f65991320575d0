// Package specfile parses change-specification documents into an ordered
// execution plan of phases, steps, and verification commands.
package specfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VerifyCmd is a single verification command: an executable name plus
// whitespace-split arguments. Commands run via direct exec, no shell.
type VerifyCmd struct {
	Name string
	Args []string
}

// String renders the command the way it appeared in the document.
func (c VerifyCmd) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Step is the smallest unit of work: one prompt for the agent plus
// optional verification commands and an advisory timeout override.
type Step struct {
	ID        string // "<phase>.<n>"
	Title     string
	Prompt    string
	Verify    []VerifyCmd
	TimeoutMS int // 0 = no override; advisory only, the executor enforces a global cap
}

// Phase is an ordered group of steps followed by an optional gate.
type Phase struct {
	Number int
	Name   string
	Steps  []Step
	Gate   []VerifyCmd
}

// Spec is a parsed specification document. Immutable once parsed.
type Spec struct {
	Path   string
	Hash   string
	Phases []Phase
}

// Name returns the spec's identity used for locks, checkpoints, and
// workspace branches: the file name without extension.
func (s *Spec) Name() string {
	base := filepath.Base(s.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TotalSteps returns the number of steps across all phases.
func (s *Spec) TotalSteps() int {
	n := 0
	for _, p := range s.Phases {
		n += len(p.Steps)
	}
	return n
}

// Load reads and parses a specification document from disk.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec: %w", err)
	}
	spec, err := Parse(string(data))
	if err != nil {
		return nil, err
	}
	spec.Path = path
	return spec, nil
}

// HashContent returns the content hash used for checkpoint validation.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
