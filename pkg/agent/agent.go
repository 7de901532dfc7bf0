// Package agent implements the reasoning loop: embed the query, retrieve
// relevant knowledge, plan a tool action with the language model, execute
// it with retry, and synthesize the final answer.
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"opsagent/pkg/llm"
	"opsagent/pkg/logx"
	"opsagent/pkg/memory"
	"opsagent/pkg/metrics"
	"opsagent/pkg/retrieval"
	"opsagent/pkg/retry"
	"opsagent/pkg/tools"
	"opsagent/pkg/utils"
)

// Pipeline tuning knobs.
const (
	contextLimit = 3 // Retrieved items folded into prompts

	planTemperature = 0.1
	planMaxTokens   = 150

	toolSynthTemperature = 0.5
	toolSynthMaxTokens   = 500

	directTemperature = 0.7
	directMaxTokens   = 500

	// Tool output is truncated before synthesis to keep prompts bounded.
	maxFeedbackOutput = 2000
)

// Retriever is the retrieval-side contract the agent needs.
type Retriever interface {
	SearchExpanded(ctx context.Context, query string, vector []float32, limit int) ([]retrieval.HybridResult, error)
}

// ToolRunner executes one named tool attempt.
type ToolRunner interface {
	Run(ctx context.Context, toolName string) (tools.Result, error)
}

// FactSaver persists learned facts.
type FactSaver interface {
	Save(ctx context.Context, content string, embedding []float32, metadata map[string]string) (string, error)
}

// Config holds agent construction parameters.
type Config struct {
	// HistorySize bounds conversation history (default 20).
	HistorySize int

	// ToolRetry is the retry policy for tool execution.
	ToolRetry retry.Config
}

// DefaultConfig returns the standard agent configuration.
func DefaultConfig() Config {
	return Config{
		HistorySize: memory.DefaultConversationSize,
		ToolRetry:   retry.ToolConfig,
	}
}

// Agent is the orchestrator. One instance serves one logical conversation;
// Process calls are serialized so history mutations are linearized.
type Agent struct {
	mu sync.Mutex

	llm       llm.Client
	embedder  llm.Embedder
	retriever Retriever
	runner    ToolRunner
	saver     FactSaver
	registry  *tools.Registry

	conversation *memory.Conversation
	entities     *memory.Entities
	toolRetry    *retry.Policy
	planPrompt   string
	tokens       *utils.TokenCounter

	metrics *metrics.Metrics
	logger  *logx.Logger
}

// New constructs an agent from its collaborators. All dependencies are
// injected; the agent owns only its session state.
func New(cfg Config, client llm.Client, embedder llm.Embedder, retriever Retriever,
	runner ToolRunner, saver FactSaver, registry *tools.Registry, m *metrics.Metrics) *Agent {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = memory.DefaultConversationSize
	}
	if cfg.ToolRetry.MaxAttempts <= 0 {
		cfg.ToolRetry = retry.ToolConfig
	}

	// A nil counter falls back to character estimation.
	counter, _ := utils.NewTokenCounter()

	return &Agent{
		llm:          client,
		embedder:     embedder,
		retriever:    retriever,
		runner:       runner,
		saver:        saver,
		registry:     registry,
		conversation: memory.NewConversation(cfg.HistorySize),
		entities:     memory.NewEntities(),
		toolRetry:    retry.NewPolicy(cfg.ToolRetry, retry.RetryAll),
		planPrompt:   buildPlanPrompt(registry),
		tokens:       counter,
		metrics:      m,
		logger:       logx.NewLogger("agent"),
	}
}

// Process answers one query through the full pipeline. Embedding,
// retrieval and planning failures abort the call; the conversation is
// only committed after synthesis succeeds.
func (a *Agent) Process(ctx context.Context, query string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	answer, err := a.process(ctx, query)
	a.metrics.ObserveQuery(err == nil, time.Since(start))
	return answer, err
}

func (a *Agent) process(ctx context.Context, query string) (string, error) {
	// Embed.
	vector, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embedding failed: %w", err)
	}

	// Retrieve.
	results, err := a.retriever.SearchExpanded(ctx, query, vector, contextLimit)
	if err != nil {
		return "", fmt.Errorf("retrieval failed: %w", err)
	}
	contextText := joinContext(results)

	// Plan.
	plan, err := a.plan(ctx, contextText, query)
	if err != nil {
		return "", fmt.Errorf("planning failed: %w", err)
	}

	// Act.
	var toolResult *tools.Result
	if !plan.Direct() {
		result, err := a.act(ctx, plan.ToolName, query)
		if err != nil {
			return "", fmt.Errorf("tool %s failed: %w", plan.ToolName, err)
		}
		toolResult = &result
	}

	// Synthesize.
	answer, err := a.synthesize(ctx, query, contextText, toolResult)
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}

	// Commit history only for a fully successful turn.
	a.conversation.Append(memory.RoleUser, query)
	a.conversation.Append(memory.RoleAssistant, answer)

	return answer, nil
}

func (a *Agent) plan(ctx context.Context, contextText, query string) (Plan, error) {
	req := llm.CompletionRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(a.planPrompt),
			llm.NewUserMessage(buildPlanUserMessage(contextText, query)),
		},
		Temperature: planTemperature,
		MaxTokens:   planMaxTokens,
	}

	a.logger.Debug("plan prompt: %d tokens", a.promptTokens(req))

	resp, err := a.llm.Complete(ctx, req)
	a.metrics.ObserveLLMRequest("plan", err == nil)
	if err != nil {
		return Plan{}, err
	}

	plan := DecodePlan(resp.Content, a.registry)
	if plan.Direct() {
		a.logger.Debug("plan: direct answer")
	} else {
		a.logger.Info("plan: tool %s", plan.ToolName)
	}
	return plan, nil
}

func (a *Agent) act(ctx context.Context, toolName, query string) (tools.Result, error) {
	result, err := retry.DoValue(ctx, a.toolRetry, func(ctx context.Context) (tools.Result, error) {
		return a.runner.Run(ctx, toolName)
	})
	a.metrics.ObserveToolExecution(toolName, err == nil)
	if err != nil {
		return tools.Result{}, err
	}

	// Entity memory learns from both the tool output and the query.
	a.entities.ExtractFrom(result.Output)
	a.entities.ExtractFrom(query)

	return result, nil
}

func (a *Agent) synthesize(ctx context.Context, query, contextText string, toolResult *tools.Result) (string, error) {
	var req llm.CompletionRequest
	stage := "synthesize"

	if toolResult != nil {
		req = llm.CompletionRequest{
			Messages: []llm.Message{
				llm.NewSystemMessage("You are an operations assistant. Summarize the tool result for the user, plainly and accurately."),
				llm.NewUserMessage(fmt.Sprintf("User request: %s\n\n%s", query, buildToolFeedback(toolResult))),
			},
			Temperature: toolSynthTemperature,
			MaxTokens:   toolSynthMaxTokens,
		}
	} else {
		stage = "direct"
		req = llm.CompletionRequest{
			Messages: []llm.Message{
				llm.NewSystemMessage("You are an operations assistant. Answer the user directly using the provided knowledge."),
				llm.NewUserMessage(buildDirectPrompt(query, contextText, a.entities.All())),
			},
			Temperature: directTemperature,
			MaxTokens:   directMaxTokens,
		}
	}

	a.logger.Debug("%s prompt: %d tokens", stage, a.promptTokens(req))

	resp, err := a.llm.Complete(ctx, req)
	a.metrics.ObserveLLMRequest(stage, err == nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Learn embeds and stores a fact for future retrieval.
func (a *Agent) Learn(ctx context.Context, fact string, metadata map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	vector, err := a.embedder.Embed(ctx, fact)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	if _, err := a.saver.Save(ctx, fact, vector, metadata); err != nil {
		return fmt.Errorf("failed to store fact: %w", err)
	}

	a.metrics.ObserveFactLearned()
	a.logger.Info("learned fact (%d chars)", len(fact))
	return nil
}

// ClearHistory empties the conversation history. Entity memory and tool
// history survive, they describe the environment, not the dialogue.
func (a *Agent) ClearHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversation.Clear()
}

// History returns a copy of the conversation history.
func (a *Agent) History() []memory.Message {
	return a.conversation.Messages()
}

// Entities returns the tracked entity names.
func (a *Agent) Entities() []string {
	return a.entities.All()
}

func (a *Agent) promptTokens(req llm.CompletionRequest) int {
	total := 0
	for _, msg := range req.Messages {
		total += a.tokens.CountTokens(msg.Content)
	}
	return total
}

func joinContext(results []retrieval.HybridResult) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Content)
	}
	return strings.Join(parts, "\n")
}

// buildToolFeedback renders a tool result block for the synthesis prompt.
func buildToolFeedback(result *tools.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tool: %s\nSuccess: %t\n", result.ToolName, result.Success)

	if len(result.Metrics) > 0 {
		sb.WriteString("Metrics:\n")
		for _, key := range sortedKeys(result.Metrics) {
			fmt.Fprintf(&sb, "  %s: %s\n", key, result.Metrics[key])
		}
	}
	if len(result.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range result.Warnings {
			fmt.Fprintf(&sb, "  %s\n", w)
		}
	}

	output := result.Output
	if len(output) > maxFeedbackOutput {
		output = output[:maxFeedbackOutput] + "\n...[truncated]"
	}
	fmt.Fprintf(&sb, "Output:\n%s", output)
	return sb.String()
}

func buildDirectPrompt(query, contextText string, entities []string) string {
	var sb strings.Builder
	if contextText != "" {
		fmt.Fprintf(&sb, "Relevant knowledge:\n%s\n\n", contextText)
	}
	if len(entities) > 0 {
		fmt.Fprintf(&sb, "Known entities: %s\n\n", strings.Join(entities, ", "))
	}
	fmt.Fprintf(&sb, "User request: %s", query)
	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
