package specfile

import (
	"errors"
	"strings"
	"testing"
)

const sampleDoc = `# Widget Importer Rework

Background prose that the parser must skip entirely.

## Execution Plan

### Phase 1: Schema

#### Step 1.1: Add importer tables
Create the importer tables and backfill existing rows.

Keep names consistent with the ingestion module.

##### Verify
- ` + "`go build ./...`" + `
- ` + "`go test ./internal/schema/...`" + `

#### Step 1.2: Wire migrations
Register the new migrations in order.

##### Timeout
120000

#### Gate
- ` + "`go test ./...`" + `

### Phase 2: Pipeline

#### Step 2.1: Port the scorer
Move the scoring pass onto the new tables.

## Appendix

Ignored trailing section.
`

func TestParse(t *testing.T) {
	spec, err := Parse(sampleDoc)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(spec.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(spec.Phases))
	}

	p1 := spec.Phases[0]
	if p1.Number != 1 || p1.Name != "Schema" {
		t.Errorf("phase 1 header mismatch: %d %q", p1.Number, p1.Name)
	}
	if len(p1.Steps) != 2 {
		t.Fatalf("expected 2 steps in phase 1, got %d", len(p1.Steps))
	}

	s11 := p1.Steps[0]
	if s11.ID != "1.1" || s11.Title != "Add importer tables" {
		t.Errorf("step 1.1 header mismatch: %q %q", s11.ID, s11.Title)
	}
	if !strings.Contains(s11.Prompt, "backfill existing rows") {
		t.Errorf("step 1.1 prompt missing body text: %q", s11.Prompt)
	}
	if strings.Contains(s11.Prompt, "go build") {
		t.Errorf("verify commands leaked into prompt: %q", s11.Prompt)
	}
	if len(s11.Verify) != 2 {
		t.Fatalf("expected 2 verify commands, got %d", len(s11.Verify))
	}
	if s11.Verify[0].Name != "go" || s11.Verify[0].Args[0] != "build" {
		t.Errorf("verify command mismatch: %+v", s11.Verify[0])
	}

	s12 := p1.Steps[1]
	if s12.TimeoutMS != 120000 {
		t.Errorf("expected timeout override 120000, got %d", s12.TimeoutMS)
	}
	if len(s12.Verify) != 0 {
		t.Errorf("step 1.2 should have no verify commands, got %d", len(s12.Verify))
	}

	if len(p1.Gate) != 1 || p1.Gate[0].String() != "go test ./..." {
		t.Errorf("gate mismatch: %+v", p1.Gate)
	}

	p2 := spec.Phases[1]
	if len(p2.Steps) != 1 || p2.Steps[0].ID != "2.1" {
		t.Errorf("phase 2 steps mismatch: %+v", p2.Steps)
	}
	if len(p2.Gate) != 0 {
		t.Errorf("phase 2 should have no gate")
	}

	if spec.TotalSteps() != 3 {
		t.Errorf("expected 3 total steps, got %d", spec.TotalSteps())
	}
	if spec.Hash == "" {
		t.Error("expected non-empty content hash")
	}
}

func TestParseMissingPlanSection(t *testing.T) {
	_, err := Parse("# Document\n\nNo plan here.\n")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "non-increasing phase numbers",
			doc:  "## Execution Plan\n### Phase 2: Second\n#### Step 2.1: A\nbody\n### Phase 1: First\n#### Step 1.1: B\nbody\n",
		},
		{
			name: "step in wrong phase",
			doc:  "## Execution Plan\n### Phase 1: Only\n#### Step 2.1: Stray\nbody\n",
		},
		{
			name: "non-monotonic step ids",
			doc:  "## Execution Plan\n### Phase 1: Only\n#### Step 1.2: B\nbody\n#### Step 1.1: A\nbody\n",
		},
		{
			name: "unquoted verify command",
			doc:  "## Execution Plan\n### Phase 1: Only\n#### Step 1.1: A\nbody\n##### Verify\n- go test ./...\n",
		},
		{
			name: "bad timeout value",
			doc:  "## Execution Plan\n### Phase 1: Only\n#### Step 1.1: A\nbody\n##### Timeout\nsoon\n",
		},
		{
			name: "empty plan",
			doc:  "## Execution Plan\n\nnothing\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestIsolationConflicts(t *testing.T) {
	doc := "## Execution Plan\n" +
		"### Phase 1: Infra\n" +
		"#### Step 1.1: Bring up stack\nbody\n" +
		"##### Verify\n" +
		"- `supabase status`\n" +
		"- `docker compose ps`\n" +
		"- `go test ./...`\n"

	spec, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	conflicts := IsolationConflicts(spec)
	if len(conflicts) != 2 {
		t.Fatalf("expected 2 conflicts, got %v", conflicts)
	}
	if conflicts[0] != "supabase" || conflicts[1] != "docker" {
		t.Errorf("unexpected conflict order: %v", conflicts)
	}
}

func TestIsolationConflictsClean(t *testing.T) {
	spec, err := Parse(sampleDoc)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if conflicts := IsolationConflicts(spec); len(conflicts) != 0 {
		t.Errorf("expected no conflicts, got %v", conflicts)
	}
}

func TestSpecName(t *testing.T) {
	spec := &Spec{Path: "/tmp/plans/widget-rework.md"}
	if got := spec.Name(); got != "widget-rework" {
		t.Errorf("expected name widget-rework, got %q", got)
	}
}
