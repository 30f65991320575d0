package control

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/example/specrun/internal/version"
)

// MCPServer exposes the control operations as MCP tools over stdio, so a
// supervising agent can drive orchestrator runs remotely.
type MCPServer struct {
	mcpServer *mcpsdk.Server
	server    *Server
}

// NewMCPServer wraps a control server in an MCP stdio server.
func NewMCPServer(server *Server) *MCPServer {
	mcpServer := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "specrun",
		Version: version.String(),
	}, nil)

	s := &MCPServer{mcpServer: mcpServer, server: server}
	s.registerTools()
	return s
}

// Run serves MCP over stdin/stdout until ctx is cancelled.
func (s *MCPServer) Run(ctx context.Context) error {
	if err := s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func (s *MCPServer) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "run",
		Description: "Start executing a specification document. Validates the plan, spawns the orchestrator in the background, and returns a run id immediately.",
	}, s.handleRun)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "status",
		Description: "Get a run's status: lifecycle state, current phase/step, recent output, and log file paths.",
	}, s.handleStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "retry",
		Description: "Restart a failed or paused run. Execution resumes from the run's checkpoint; completed steps are not repeated.",
	}, s.handleRetry)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "skip",
		Description: "Record a human override that skips the run's current step without executing it. The reason is written to the audit log.",
	}, s.handleSkip)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "abort",
		Description: "Terminate a running orchestrator (graceful, then forceful). The checkpoint is preserved so the run can be retried later.",
	}, s.handleAbort)
}

// RunParams defines parameters for the run tool.
type RunParams struct {
	SpecPath    string `json:"spec_path" jsonschema:"Absolute path to the specification document"`
	FailFast    bool   `json:"fail_fast,omitempty" jsonschema:"Stop on the first failure instead of retrying"`
	NoIsolation bool   `json:"no_isolation,omitempty" jsonschema:"Run in the repository itself instead of an isolated worktree"`
}

// StatusParams defines parameters for the status tool.
type StatusParams struct {
	RunID string `json:"run_id" jsonschema:"Run id returned by the run tool"`
}

// RetryParams defines parameters for the retry tool.
type RetryParams struct {
	RunID string `json:"run_id" jsonschema:"Run id of a failed or paused run"`
}

// SkipParams defines parameters for the skip tool.
type SkipParams struct {
	RunID  string `json:"run_id" jsonschema:"Run id"`
	Reason string `json:"reason" jsonschema:"Why the step is being skipped"`
}

// AbortParams defines parameters for the abort tool.
type AbortParams struct {
	RunID  string `json:"run_id" jsonschema:"Run id"`
	Reason string `json:"reason" jsonschema:"Why the run is being aborted"`
}

func (s *MCPServer) handleRun(ctx context.Context, req *mcpsdk.CallToolRequest, params *RunParams) (*mcpsdk.CallToolResult, any, error) {
	run, err := s.server.Run(params.SpecPath, RunOptions{
		FailFast:    params.FailFast,
		NoIsolation: params.NoIsolation,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("run failed to start: %w", err)
	}
	return textResult(fmt.Sprintf("run %s started for %s (%d phases, %d steps)",
		run.ID, run.SpecName, run.PhaseCount, run.StepCount)), nil, nil
}

func (s *MCPServer) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, params *StatusParams) (*mcpsdk.CallToolResult, any, error) {
	st, err := s.server.Status(params.RunID)
	if err != nil {
		return textResult(fmt.Sprintf("run %s not found", params.RunID)), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %s (spec %s)\n", st.Run.ID, st.Run.Status, st.Run.SpecName)
	if st.Run.Reason != "" {
		fmt.Fprintf(&b, "reason: %s\n", st.Run.Reason)
	}
	if st.CurrentPhase > 0 {
		fmt.Fprintf(&b, "position: phase %d, step %d of %d total (via %s)\n",
			st.CurrentPhase, st.CurrentStep, st.Run.StepCount, st.Source)
	}
	if len(st.LogFiles) > 0 {
		fmt.Fprintf(&b, "logs:\n")
		for _, f := range st.LogFiles {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	}
	if st.OutputTail != "" {
		fmt.Fprintf(&b, "recent output:\n%s", st.OutputTail)
	}
	return textResult(b.String()), nil, nil
}

func (s *MCPServer) handleRetry(ctx context.Context, req *mcpsdk.CallToolRequest, params *RetryParams) (*mcpsdk.CallToolResult, any, error) {
	run, err := s.server.Retry(params.RunID)
	if err != nil {
		return nil, nil, fmt.Errorf("retry failed: %w", err)
	}
	return textResult(fmt.Sprintf("run %s restarted; resuming from checkpoint", run.ID)), nil, nil
}

func (s *MCPServer) handleSkip(ctx context.Context, req *mcpsdk.CallToolRequest, params *SkipParams) (*mcpsdk.CallToolResult, any, error) {
	if err := s.server.Skip(params.RunID, params.Reason); err != nil {
		return nil, nil, fmt.Errorf("skip failed: %w", err)
	}
	return textResult(fmt.Sprintf("run %s: current step skipped (%s)", params.RunID, params.Reason)), nil, nil
}

func (s *MCPServer) handleAbort(ctx context.Context, req *mcpsdk.CallToolRequest, params *AbortParams) (*mcpsdk.CallToolResult, any, error) {
	if err := s.server.Abort(params.RunID, params.Reason); err != nil {
		return nil, nil, fmt.Errorf("abort failed: %w", err)
	}
	return textResult(fmt.Sprintf("run %s aborted; checkpoint preserved for retry", params.RunID)), nil, nil
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}
