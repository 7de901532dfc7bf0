package agent

import (
	"fmt"
	"regexp"
	"strings"

	"opsagent/pkg/tools"
)

// toolMarker is the structured marker the planner must emit to select a
// tool. Anything else routes to the direct-answer path.
var toolMarker = regexp.MustCompile(`(?m)^\s*TOOL:\s*([a-zA-Z0-9_-]+)\s*$`)

// Plan is the decoded outcome of the planning step.
type Plan struct {
	// ToolName is the selected tool, empty for a direct answer.
	ToolName string

	// Raw is the model's full planning response.
	Raw string
}

// Direct reports whether the plan routes to the direct-answer path.
func (p Plan) Direct() bool {
	return p.ToolName == ""
}

// buildPlanPrompt renders the planning system prompt from the registry so
// the tool list always matches what can actually run.
func buildPlanPrompt(registry *tools.Registry) string {
	var sb strings.Builder
	sb.WriteString("You are an operations assistant that decides the next action for a user request.\n")
	sb.WriteString("Available tools:\n")
	for _, name := range registry.Names() {
		sb.WriteString("  - ")
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	sb.WriteString("\nRespond with exactly one line in one of these two forms:\n")
	sb.WriteString("TOOL: <name>   (to run one of the tools above)\n")
	sb.WriteString("ANSWER         (to answer directly without running a tool)\n")
	return sb.String()
}

// DecodePlan extracts the selected tool from the planner's response.
// The decode is strict: markers must match the line format exactly and
// name a registered tool. No marker, an unknown tool, or two markers
// naming different tools all fall back to the direct-answer path, the
// model's output is advisory and never trusted blindly.
func DecodePlan(response string, registry *tools.Registry) Plan {
	plan := Plan{Raw: response}

	matches := toolMarker.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return plan
	}

	selected := ""
	for _, m := range matches {
		name := strings.ToLower(m[1])
		if !registry.Has(name) {
			continue
		}
		if selected != "" && selected != name {
			// Ambiguous plan: two different tools named.
			return Plan{Raw: response}
		}
		selected = name
	}

	plan.ToolName = selected
	return plan
}

// buildPlanUserMessage folds retrieved context and the query into the
// planning request.
func buildPlanUserMessage(contextText, query string) string {
	if contextText == "" {
		return fmt.Sprintf("User request: %s", query)
	}
	return fmt.Sprintf("Relevant knowledge:\n%s\n\nUser request: %s", contextText, query)
}
