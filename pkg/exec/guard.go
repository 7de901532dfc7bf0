package exec

import (
	"context"
	"fmt"
	"os"
	"strings"

	"opsagent/pkg/logx"
)

// Environment variables controlling command execution policy.
const (
	// EnvAllowShell must be set to "1" or "true" for any command to
	// actually run.
	EnvAllowShell = "OPSAGENT_ALLOW_SHELL"

	// EnvAllowedCommands is an optional comma-separated list of permitted
	// command names. Empty means any command is permitted once shell
	// execution is enabled.
	EnvAllowedCommands = "OPSAGENT_ALLOWED_COMMANDS"
)

// GuardedExec wraps an Executor with an operator-controlled policy. When
// shell execution is disabled it returns a dry-run result describing what
// would have run instead of executing anything.
type GuardedExec struct {
	inner   Executor
	logger  *logx.Logger
	allowed map[string]bool
	enabled bool
}

// NewGuardedExec creates a guarded executor with policy read from the
// environment.
func NewGuardedExec(inner Executor) *GuardedExec {
	return NewGuardedExecWithPolicy(inner,
		shellEnabled(os.Getenv(EnvAllowShell)),
		parseAllowedCommands(os.Getenv(EnvAllowedCommands)))
}

// NewGuardedExecWithPolicy creates a guarded executor with an explicit
// policy, used by tests and by callers that manage configuration themselves.
func NewGuardedExecWithPolicy(inner Executor, enabled bool, allowed []string) *GuardedExec {
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = true
	}
	return &GuardedExec{
		inner:   inner,
		logger:  logx.NewLogger("exec-guard"),
		allowed: allowedSet,
		enabled: enabled,
	}
}

// Name returns the executor type name.
func (g *GuardedExec) Name() ExecutorType {
	return g.inner.Name()
}

// Available returns whether the underlying executor is available.
func (g *GuardedExec) Available() bool {
	return g.inner.Available()
}

// Enabled reports whether real execution is permitted.
func (g *GuardedExec) Enabled() bool {
	return g.enabled
}

// Run applies the policy and delegates to the inner executor. Disabled
// execution produces a successful dry-run result so the agent pipeline can
// proceed; a disallowed command is an error because the plan named a
// command the operator explicitly excluded.
func (g *GuardedExec) Run(ctx context.Context, cmd []string, opts *Opts) (Result, error) {
	if len(cmd) == 0 {
		return Result{}, fmt.Errorf("command cannot be empty")
	}

	if !g.enabled {
		g.logger.Info("dry-run (set %s=1 to enable): %s", EnvAllowShell, strings.Join(cmd, " "))
		return Result{
			ExitCode:     0,
			Stdout:       fmt.Sprintf("[dry-run] %s", strings.Join(cmd, " ")),
			ExecutorUsed: "dry-run",
		}, nil
	}

	if len(g.allowed) > 0 && !g.allowed[cmd[0]] {
		return Result{}, fmt.Errorf("command %q is not in the allowed command list", cmd[0])
	}

	g.logger.Debug("executing: %s", strings.Join(cmd, " "))
	return g.inner.Run(ctx, cmd, opts)
}

func shellEnabled(raw string) bool {
	return raw == "1" || strings.EqualFold(raw, "true")
}

func parseAllowedCommands(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			names = append(names, name)
		}
	}
	return names
}
