// Package tools maps named operational tools to external command
// invocations and parses their output into structured results.
package tools

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Canonical tool names the planner may select.
const (
	ToolStatus    = "status"
	ToolLogs      = "logs"
	ToolBuild     = "build"
	ToolDeploy    = "deploy"
	ToolStart     = "start"
	ToolMetrics   = "metrics"
	ToolBackup    = "backup"
	ToolRemediate = "remediate"
	ToolStop      = "stop"
)

// Registry holds the tool-name to command-arguments mapping. Argument
// templates may contain <user>, <db> and <target> placeholders that are
// substituted from Params at resolve time.
type Registry struct {
	// Binary is the CLI driven by every tool (argv[0]).
	Binary string `yaml:"binary"`

	// Params supplies values for argument placeholders.
	Params map[string]string `yaml:"params"`

	// Tools maps tool names to argument templates.
	Tools map[string][]string `yaml:"tools"`
}

// DefaultRegistry returns the built-in tool table.
func DefaultRegistry(binary string, params map[string]string) *Registry {
	if params == nil {
		params = map[string]string{}
	}
	return &Registry{
		Binary: binary,
		Params: params,
		Tools: map[string][]string{
			ToolStatus:    {"status"},
			ToolLogs:      {"logs", "db"},
			ToolBuild:     {"build"},
			ToolDeploy:    {"start", "core"},
			ToolStart:     {"start", "core"},
			ToolMetrics:   {"ps"},
			ToolBackup:    {"exec", "db", "pg_dump", "-U", "<user>", "<db>"},
			ToolRemediate: {"ai-fix", "<target>"},
			ToolStop:      {"stop", "core"},
		},
	}
}

// LoadRegistry reads a registry from a YAML file. Missing optional fields
// fall back to the built-in defaults.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool registry %s: %w", path, err)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse tool registry %s: %w", path, err)
	}

	defaults := DefaultRegistry(reg.Binary, reg.Params)
	if reg.Params == nil {
		reg.Params = map[string]string{}
	}
	if len(reg.Tools) == 0 {
		reg.Tools = defaults.Tools
	}

	return &reg, nil
}

// Has reports whether name is a registered tool.
func (r *Registry) Has(name string) bool {
	_, ok := r.Tools[name]
	return ok
}

// Names returns all registered tool names, sorted for stable prompts.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Tools))
	for name := range r.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the full argv for a tool, substituting placeholders.
// An unknown tool or an unresolvable placeholder is an error.
func (r *Registry) Resolve(name string) ([]string, error) {
	template, ok := r.Tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	argv := make([]string, 0, len(template)+1)
	if r.Binary != "" {
		argv = append(argv, r.Binary)
	}

	for _, arg := range template {
		if strings.HasPrefix(arg, "<") && strings.HasSuffix(arg, ">") {
			key := arg[1 : len(arg)-1]
			value, ok := r.Params[key]
			if !ok || value == "" {
				return nil, fmt.Errorf("tool %s requires parameter %q which is not configured", name, key)
			}
			argv = append(argv, value)
			continue
		}
		argv = append(argv, arg)
	}

	return argv, nil
}
