package agent

import (
	"strings"
	"testing"

	"opsagent/pkg/tools"
)

func testRegistry() *tools.Registry {
	return tools.DefaultRegistry("opsctl", map[string]string{
		"user": "postgres", "db": "app", "target": "core",
	})
}

func TestDecodePlan_SelectsTool(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		response string
		want     string
	}{
		{"TOOL: status", "status"},
		{"TOOL: status\n", "status"},
		{"  TOOL: logs  ", "logs"},
		{"TOOL: BACKUP", "backup"},
		{"I will check the system.\nTOOL: status", "status"},
		{"TOOL: status\nTOOL: status", "status"},
	}

	for _, tt := range tests {
		plan := DecodePlan(tt.response, reg)
		if plan.ToolName != tt.want {
			t.Errorf("DecodePlan(%q) = %q, want %q", tt.response, plan.ToolName, tt.want)
		}
	}
}

func TestDecodePlan_DirectAnswer(t *testing.T) {
	reg := testRegistry()

	tests := []string{
		"ANSWER",
		"The weather is not something I can check.",
		"TOOL: format-disk",          // unknown tool
		"TOOL: status TOOL: logs",    // not on its own line
		"maybe TOOL: status",         // marker not at line start
		"TOOL: status\nTOOL: deploy", // ambiguous
		"",
	}

	for _, response := range tests {
		plan := DecodePlan(response, reg)
		if !plan.Direct() {
			t.Errorf("DecodePlan(%q) selected %q, want direct answer", response, plan.ToolName)
		}
	}
}

func TestDecodePlan_PreservesRaw(t *testing.T) {
	plan := DecodePlan("TOOL: status", testRegistry())
	if plan.Raw != "TOOL: status" {
		t.Errorf("Expected raw response preserved, got %q", plan.Raw)
	}
}

func TestBuildPlanPrompt_ListsAllTools(t *testing.T) {
	reg := testRegistry()
	prompt := buildPlanPrompt(reg)

	for _, name := range reg.Names() {
		if !strings.Contains(prompt, "- "+name) {
			t.Errorf("Expected prompt to list tool %s", name)
		}
	}

	if !strings.Contains(prompt, "TOOL: <name>") {
		t.Error("Expected prompt to describe the tool marker format")
	}
	if !strings.Contains(prompt, "ANSWER") {
		t.Error("Expected prompt to describe the direct-answer option")
	}
}

func TestBuildPlanUserMessage(t *testing.T) {
	withContext := buildPlanUserMessage("postgres runs on 5432", "check the db")
	if !strings.Contains(withContext, "postgres runs on 5432") {
		t.Error("Expected context in plan message")
	}
	if !strings.Contains(withContext, "check the db") {
		t.Error("Expected query in plan message")
	}

	bare := buildPlanUserMessage("", "check the db")
	if strings.Contains(bare, "Relevant knowledge") {
		t.Error("Expected no knowledge block for empty context")
	}
}
