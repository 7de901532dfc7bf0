package tools

import (
	"strings"
	"testing"
)

func TestParseOutput_Success(t *testing.T) {
	output := "core: running\nuptime: 4h12m\nall services healthy\n"
	result := ParseOutput(ToolStatus, output, 0)

	if !result.Success {
		t.Error("Expected success for clean zero-exit output")
	}

	if result.ToolName != ToolStatus {
		t.Errorf("Expected tool name %s, got %s", ToolStatus, result.ToolName)
	}

	if result.Metrics["core"] != "running" {
		t.Errorf("Expected metric core=running, got %v", result.Metrics)
	}

	if result.Metrics["uptime"] != "4h12m" {
		t.Errorf("Expected metric uptime=4h12m, got %v", result.Metrics)
	}

	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}
}

func TestParseOutput_NonZeroExit(t *testing.T) {
	result := ParseOutput(ToolBuild, "compiling...", 2)
	if result.Success {
		t.Error("Expected failure for non-zero exit code")
	}
}

func TestParseOutput_FailureMarker(t *testing.T) {
	for _, output := range []string{
		"ERROR: connection refused",
		"build failed after 3s",
		"fatal: repository not found",
	} {
		result := ParseOutput(ToolBuild, output, 0)
		if result.Success {
			t.Errorf("Expected failure for output %q", output)
		}
	}
}

func TestParseOutput_Warnings(t *testing.T) {
	output := "status: ok\nWARNING: disk usage at 85%\nwarn: certificate expires soon\n"
	result := ParseOutput(ToolStatus, output, 0)

	if !result.Success {
		t.Error("Warnings alone should not flip success")
	}

	if len(result.Warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %v", result.Warnings)
	}

	if !strings.Contains(result.Warnings[0], "disk usage") {
		t.Errorf("Unexpected first warning: %s", result.Warnings[0])
	}
}

func TestParseOutput_EqualsMetrics(t *testing.T) {
	result := ParseOutput(ToolMetrics, "cpu=42%\nmem=1.2G\n", 0)

	if result.Metrics["cpu"] != "42%" {
		t.Errorf("Expected cpu=42%%, got %v", result.Metrics)
	}
	if result.Metrics["mem"] != "1.2G" {
		t.Errorf("Expected mem=1.2G, got %v", result.Metrics)
	}
}

func TestParseOutput_FreeTextNotMetric(t *testing.T) {
	result := ParseOutput(ToolLogs, "the server said: hello there\n", 0)

	// Multi-word keys are prose, not metrics.
	if len(result.Metrics) != 0 {
		t.Errorf("Expected no metrics from free text, got %v", result.Metrics)
	}
}

func TestParseOutput_Empty(t *testing.T) {
	result := ParseOutput(ToolStatus, "", 0)

	if !result.Success {
		t.Error("Empty zero-exit output should be success")
	}
	if len(result.Metrics) != 0 || len(result.Warnings) != 0 {
		t.Error("Expected empty metrics and warnings")
	}
}

func TestHistory_FIFOEviction(t *testing.T) {
	h := NewHistory(3)

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		h.Append(Result{ToolName: name})
	}

	all := h.All()
	if len(all) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(all))
	}

	for i, want := range []string{"c", "d", "e"} {
		if all[i].ToolName != want {
			t.Errorf("Entry %d: expected %s, got %s", i, want, all[i].ToolName)
		}
	}
}

func TestHistory_DefaultSize(t *testing.T) {
	h := NewHistory(0)

	for i := 0; i < DefaultHistorySize+5; i++ {
		h.Append(Result{ToolName: ToolStatus})
	}

	if h.Len() != DefaultHistorySize {
		t.Errorf("Expected %d entries, got %d", DefaultHistorySize, h.Len())
	}
}
