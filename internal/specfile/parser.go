package specfile

import (
	"fmt"
	"strconv"
	"strings"
)

// PlanHeading is the top-level section heading that introduces the
// executable plan. Everything before it is ignored.
const PlanHeading = "## Execution Plan"

// Structural markers within the plan section.
const (
	phaseMarker   = "### Phase "
	stepMarker    = "#### Step "
	gateMarker    = "#### Gate"
	verifyMarker  = "##### Verify"
	timeoutMarker = "##### Timeout"
)

// ParseError reports a malformed or missing plan section. It is fatal:
// parse errors are never retried and surface before any side effect.
type ParseError struct {
	Line int // 1-indexed; 0 when the error is not tied to a line
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("spec parse error at line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("spec parse error: %s", e.Msg)
}

// Parse parses document content into a Spec. The grammar is line-oriented:
//
//	plan     := PlanHeading phase*
//	phase    := "### Phase <N>: <name>" step* gate?
//	step     := "#### Step <N>.<M>: <title>" body
//	body     := prompt-lines verify? timeout?
//	verify   := "##### Verify" cmd-item*
//	timeout  := "##### Timeout" integer-line
//	gate     := "#### Gate" cmd-item*
//	cmd-item := ("-" | "*") "`" token+ "`"
//
// Phase numbers must be strictly increasing; step ids must carry the
// enclosing phase number and be monotonic within it.
func Parse(content string) (*Spec, error) {
	lines := strings.Split(content, "\n")

	start := -1
	for i, line := range lines {
		if strings.TrimRight(line, " \t") == PlanHeading {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, &ParseError{Msg: fmt.Sprintf("document has no %q section", PlanHeading)}
	}

	p := &parser{lines: lines, pos: start}
	phases, err := p.parsePhases()
	if err != nil {
		return nil, err
	}
	if len(phases) == 0 {
		return nil, &ParseError{Line: start, Msg: "plan section contains no phases"}
	}

	return &Spec{Hash: HashContent(content), Phases: phases}, nil
}

type parser struct {
	lines []string
	pos   int // index of the next unconsumed line
}

func (p *parser) parsePhases() ([]Phase, error) {
	var phases []Phase
	lastNumber := 0

	for p.pos < len(p.lines) {
		line := strings.TrimRight(p.lines[p.pos], " \t")

		// A new top-level section ends the plan.
		if strings.HasPrefix(line, "## ") && !strings.HasPrefix(line, "###") {
			break
		}

		if !strings.HasPrefix(line, phaseMarker) {
			p.pos++
			continue
		}

		number, name, err := parsePhaseHeader(line, p.pos+1)
		if err != nil {
			return nil, err
		}
		if number <= lastNumber {
			return nil, &ParseError{
				Line: p.pos + 1,
				Msg:  fmt.Sprintf("phase numbers must be strictly increasing: phase %d after phase %d", number, lastNumber),
			}
		}
		lastNumber = number
		p.pos++

		phase, err := p.parsePhaseBody(number, name)
		if err != nil {
			return nil, err
		}
		phases = append(phases, *phase)
	}

	return phases, nil
}

func (p *parser) parsePhaseBody(number int, name string) (*Phase, error) {
	phase := &Phase{Number: number, Name: name}
	seen := make(map[string]bool)
	lastStepOrdinal := 0

	for p.pos < len(p.lines) {
		line := strings.TrimRight(p.lines[p.pos], " \t")

		switch {
		case strings.HasPrefix(line, phaseMarker) || (strings.HasPrefix(line, "## ") && !strings.HasPrefix(line, "###")):
			// Next phase or end of plan section.
			return phase, nil

		case line == gateMarker:
			p.pos++
			cmds, err := p.parseCommandList()
			if err != nil {
				return nil, err
			}
			phase.Gate = cmds

		case strings.HasPrefix(line, stepMarker):
			phaseNum, ordinal, title, err := parseStepHeader(line, p.pos+1)
			if err != nil {
				return nil, err
			}
			if phaseNum != number {
				return nil, &ParseError{
					Line: p.pos + 1,
					Msg:  fmt.Sprintf("step %d.%d appears inside phase %d", phaseNum, ordinal, number),
				}
			}
			if ordinal <= lastStepOrdinal {
				return nil, &ParseError{
					Line: p.pos + 1,
					Msg:  fmt.Sprintf("step ids must be monotonic within a phase: %d.%d after %d.%d", phaseNum, ordinal, number, lastStepOrdinal),
				}
			}
			lastStepOrdinal = ordinal

			id := fmt.Sprintf("%d.%d", phaseNum, ordinal)
			if seen[id] {
				return nil, &ParseError{Line: p.pos + 1, Msg: fmt.Sprintf("duplicate step id %s", id)}
			}
			seen[id] = true
			p.pos++

			step, err := p.parseStepBody(id, title)
			if err != nil {
				return nil, err
			}
			phase.Steps = append(phase.Steps, *step)

		default:
			p.pos++
		}
	}

	return phase, nil
}

// parseStepBody consumes everything until the next step header, gate
// marker, phase header, or end of plan. Prompt text is the body minus the
// Verify/Timeout sub-sections.
func (p *parser) parseStepBody(id, title string) (*Step, error) {
	step := &Step{ID: id, Title: title}
	var prompt []string

	for p.pos < len(p.lines) {
		line := strings.TrimRight(p.lines[p.pos], " \t")

		if strings.HasPrefix(line, stepMarker) || line == gateMarker ||
			strings.HasPrefix(line, phaseMarker) ||
			(strings.HasPrefix(line, "## ") && !strings.HasPrefix(line, "###")) {
			break
		}

		switch {
		case line == verifyMarker:
			p.pos++
			cmds, err := p.parseCommandList()
			if err != nil {
				return nil, err
			}
			step.Verify = append(step.Verify, cmds...)

		case line == timeoutMarker:
			p.pos++
			ms, err := p.parseTimeoutValue()
			if err != nil {
				return nil, err
			}
			step.TimeoutMS = ms

		default:
			prompt = append(prompt, p.lines[p.pos])
			p.pos++
		}
	}

	step.Prompt = strings.TrimSpace(strings.Join(prompt, "\n"))
	return step, nil
}

// parseCommandList consumes consecutive list items wrapping a
// backtick-quoted command line. Blank lines within the list are allowed.
func (p *parser) parseCommandList() ([]VerifyCmd, error) {
	var cmds []VerifyCmd

	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])

		if line == "" {
			p.pos++
			continue
		}
		if !strings.HasPrefix(line, "- ") && !strings.HasPrefix(line, "* ") {
			break
		}

		item := strings.TrimSpace(line[2:])
		cmd, err := parseCommandItem(item, p.pos+1)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
		p.pos++
	}

	if len(cmds) == 0 {
		return nil, &ParseError{Line: p.pos + 1, Msg: "command list has no entries"}
	}
	return cmds, nil
}

func (p *parser) parseTimeoutValue() (int, error) {
	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])
		if line == "" {
			p.pos++
			continue
		}
		ms, err := strconv.Atoi(line)
		if err != nil || ms <= 0 {
			return 0, &ParseError{Line: p.pos + 1, Msg: fmt.Sprintf("timeout must be a positive integer, got %q", line)}
		}
		p.pos++
		return ms, nil
	}
	return 0, &ParseError{Line: p.pos, Msg: "timeout section has no value"}
}

// parsePhaseHeader parses "### Phase <N>: <name>".
func parsePhaseHeader(line string, lineNum int) (int, string, error) {
	rest := strings.TrimPrefix(line, phaseMarker)
	numStr, name, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, "", &ParseError{Line: lineNum, Msg: fmt.Sprintf("malformed phase header %q", line)}
	}
	number, err := strconv.Atoi(strings.TrimSpace(numStr))
	if err != nil || number < 1 {
		return 0, "", &ParseError{Line: lineNum, Msg: fmt.Sprintf("phase number must be a positive integer, got %q", strings.TrimSpace(numStr))}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, "", &ParseError{Line: lineNum, Msg: fmt.Sprintf("phase %d has no name", number)}
	}
	return number, name, nil
}

// parseStepHeader parses "#### Step <N>.<M>: <title>".
func parseStepHeader(line string, lineNum int) (int, int, string, error) {
	rest := strings.TrimPrefix(line, stepMarker)
	idStr, title, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, 0, "", &ParseError{Line: lineNum, Msg: fmt.Sprintf("malformed step header %q", line)}
	}
	phaseStr, ordStr, ok := strings.Cut(strings.TrimSpace(idStr), ".")
	if !ok {
		return 0, 0, "", &ParseError{Line: lineNum, Msg: fmt.Sprintf("step id must be <phase>.<n>, got %q", strings.TrimSpace(idStr))}
	}
	phaseNum, err := strconv.Atoi(phaseStr)
	if err != nil || phaseNum < 1 {
		return 0, 0, "", &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid phase number in step id %q", strings.TrimSpace(idStr))}
	}
	ordinal, err := strconv.Atoi(ordStr)
	if err != nil || ordinal < 1 {
		return 0, 0, "", &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid step ordinal in step id %q", strings.TrimSpace(idStr))}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, 0, "", &ParseError{Line: lineNum, Msg: fmt.Sprintf("step %d.%d has no title", phaseNum, ordinal)}
	}
	return phaseNum, ordinal, title, nil
}

// parseCommandItem parses a single backtick-quoted command: `tool arg arg`.
// The first token is the executable, the rest are arguments. No quoting or
// escaping semantics.
func parseCommandItem(item string, lineNum int) (VerifyCmd, error) {
	if !strings.HasPrefix(item, "`") || !strings.HasSuffix(item, "`") || len(item) < 3 {
		return VerifyCmd{}, &ParseError{Line: lineNum, Msg: fmt.Sprintf("command list item must be backtick-quoted, got %q", item)}
	}
	tokens := strings.Fields(item[1 : len(item)-1])
	if len(tokens) == 0 {
		return VerifyCmd{}, &ParseError{Line: lineNum, Msg: "empty command in list item"}
	}
	return VerifyCmd{Name: tokens[0], Args: tokens[1:]}, nil
}
