package tools

import (
	"strings"
	"time"
)

// Result is the structured outcome of one tool invocation, parsed from the
// raw subprocess output.
type Result struct {
	ToolName  string
	Success   bool
	Output    string
	Metrics   map[string]string
	Warnings  []string
	Duration  time.Duration
	Timestamp time.Time
}

// failureMarkers flag output lines that indicate a failed run even when the
// process exited zero.
var failureMarkers = []string{"error", "failed", "fatal", "panic"}

// ParseOutput turns raw command output into a Result. Success is a
// heuristic: the process must exit zero and the output must not carry an
// obvious failure marker.
func ParseOutput(toolName, output string, exitCode int) Result {
	result := Result{
		ToolName:  toolName,
		Output:    output,
		Metrics:   map[string]string{},
		Timestamp: time.Now().UTC(),
	}

	success := exitCode == 0
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		lower := strings.ToLower(trimmed)

		if strings.Contains(lower, "warning") || strings.HasPrefix(lower, "warn") {
			result.Warnings = append(result.Warnings, trimmed)
			continue
		}

		for _, marker := range failureMarkers {
			if strings.Contains(lower, marker) {
				success = false
				break
			}
		}

		if key, value, ok := parseMetricLine(trimmed); ok {
			result.Metrics[key] = value
		}
	}

	result.Success = success
	return result
}

// parseMetricLine recognizes "key: value" and "key=value" lines where the
// key is a single token. Anything else is free text, not a metric.
func parseMetricLine(line string) (key, value string, ok bool) {
	for _, sep := range []string{":", "="} {
		idx := strings.Index(line, sep)
		if idx <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:idx])
		v := strings.TrimSpace(line[idx+1:])
		if k == "" || v == "" || strings.ContainsAny(k, " \t") {
			continue
		}
		return k, v, true
	}
	return "", "", false
}
