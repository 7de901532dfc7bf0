package tools

import (
	"context"
	"fmt"
	"strings"

	"opsagent/pkg/exec"
	"opsagent/pkg/logx"
)

// Runner executes registered tools through an executor and records their
// results. A single Run is one attempt; callers own any retry policy.
type Runner struct {
	registry *Registry
	executor exec.Executor
	history  *History
	logger   *logx.Logger
}

// NewRunner creates a tool runner.
func NewRunner(registry *Registry, executor exec.Executor, history *History) *Runner {
	if history == nil {
		history = NewHistory(DefaultHistorySize)
	}
	return &Runner{
		registry: registry,
		executor: executor,
		history:  history,
		logger:   logx.NewLogger("tools"),
	}
}

// Registry returns the runner's tool registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// History returns the runner's result history.
func (r *Runner) History() *History {
	return r.history
}

// Run executes the named tool once. A command that cannot start or exits
// non-zero is an error so callers can retry it; a completed run is parsed
// into a Result and recorded in history.
func (r *Runner) Run(ctx context.Context, toolName string) (Result, error) {
	argv, err := r.registry.Resolve(toolName)
	if err != nil {
		return Result{}, err
	}

	r.logger.Debug("running tool %s: %s", toolName, strings.Join(argv, " "))

	opts := exec.DefaultExecOpts()
	execResult, err := r.executor.Run(ctx, argv, &opts)
	if err != nil {
		return Result{}, fmt.Errorf("tool %s failed to execute: %w", toolName, err)
	}

	if execResult.ExitCode != 0 {
		return Result{}, fmt.Errorf("tool %s exited with code %d: %s",
			toolName, execResult.ExitCode, strings.TrimSpace(execResult.Stderr))
	}

	output := execResult.Stdout
	if execResult.Stderr != "" {
		output += execResult.Stderr
	}

	result := ParseOutput(toolName, output, execResult.ExitCode)
	result.Duration = execResult.Duration
	r.history.Append(result)

	r.logger.Info("tool %s completed in %v (success=%t, %d metrics, %d warnings)",
		toolName, execResult.Duration, result.Success, len(result.Metrics), len(result.Warnings))

	return result, nil
}
