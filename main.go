// opsagent is a local tool-augmented reasoning agent. It answers
// operational questions by retrieving stored knowledge, asking a language
// model to pick a tool, running the tool, and synthesizing an answer.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"opsagent/pkg/agent"
	"opsagent/pkg/config"
	"opsagent/pkg/exec"
	"opsagent/pkg/llm"
	anthropicllm "opsagent/pkg/llm/anthropic"
	googlellm "opsagent/pkg/llm/google"
	"opsagent/pkg/llm/llmerrors"
	ollamallm "opsagent/pkg/llm/ollama"
	openaillm "opsagent/pkg/llm/openai"
	"opsagent/pkg/logx"
	"opsagent/pkg/metrics"
	"opsagent/pkg/retrieval"
	"opsagent/pkg/store"
	"opsagent/pkg/tools"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to JSON config file")
		secretsDir = flag.String("secrets-dir", ".opsagent", "Directory holding the encrypted secrets file")
		query      = flag.String("query", "", "Process a single query and exit")
	)
	flag.Parse()

	logger := logx.NewLogger("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("invalid configuration: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(cfg, *secretsDir)
	if err != nil {
		logger.Error("startup failed: %v", err)
		os.Exit(1)
	}
	defer app.close()

	if *query != "" {
		answer, err := app.agent.Process(ctx, *query)
		if err != nil {
			logger.Error("query failed: %v", err)
			if llmerrors.Is(err, llmerrors.ErrorTypeAuth) {
				logger.Error("authentication failed, check the stored API key")
			}
			os.Exit(1)
		}
		fmt.Println(answer)
		return
	}

	runREPL(ctx, app)
}

// app bundles the wired components for one agent instance.
type app struct {
	agent   *agent.Agent
	store   *store.Store
	metrics *metrics.Metrics
	logger  *logx.Logger
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close: %v", err)
	}
}

// buildApp constructs the dependency graph: store and pool, retrieval
// engine, LLM clients, tool runner, and the orchestrator on top.
func buildApp(cfg config.Config, secretsDir string) (*app, error) {
	logger := logx.NewLogger("main")

	secrets := config.NewSecrets()
	if config.FileExists(secretsDir) {
		password, err := promptPassword("Secrets password: ")
		if err != nil {
			return nil, err
		}
		if err := secrets.LoadFromFile(secretsDir, password); err != nil {
			return nil, err
		}
		logger.Info("loaded %d secrets", len(secrets.Names()))
	}

	st, err := store.Open(cfg.DBPath, cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("failed to open fact store: %w", err)
	}

	ollamaClient := ollamallm.New(cfg.OllamaHost, cfg.Model, cfg.EmbedModel)

	base, err := completionClient(cfg, secrets, ollamaClient)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	client := llm.NewResilientClient(base, cfg.Breaker, cfg.LLMRetry)

	registry, err := loadRegistry(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	runner := tools.NewRunner(registry,
		exec.NewGuardedExec(exec.NewLocalExec()),
		tools.NewHistory(tools.DefaultHistorySize))

	m := metrics.New()
	engine := retrieval.NewEngine(st)

	a := agent.New(agent.DefaultConfig(), client, ollamaClient, engine, runner, st, registry, m)

	return &app{agent: a, store: st, metrics: m, logger: logger}, nil
}

// completionClient selects the provider backend. Ollama needs no key;
// remote providers read theirs from secrets or the environment.
func completionClient(cfg config.Config, secrets *config.Secrets, ollamaClient *ollamallm.Client) (llm.Client, error) {
	if cfg.Provider == config.ProviderOllama {
		return ollamaClient, nil
	}

	apiKey, err := secrets.Get(cfg.APIKeyEnv())
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", cfg.Provider, err)
	}

	switch cfg.Provider {
	case config.ProviderAnthropic:
		return anthropicllm.New(apiKey, cfg.Model), nil
	case config.ProviderOpenAI:
		return openaillm.New(apiKey, cfg.Model), nil
	case config.ProviderGoogle:
		return googlellm.New(apiKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func loadRegistry(cfg config.Config) (*tools.Registry, error) {
	if cfg.ToolsFile != "" {
		reg, err := tools.LoadRegistry(cfg.ToolsFile)
		if err != nil {
			return nil, err
		}
		if reg.Binary == "" {
			reg.Binary = cfg.ToolBinary
		}
		return reg, nil
	}
	return tools.DefaultRegistry(cfg.ToolBinary, cfg.ToolParams), nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

// runREPL reads queries from stdin until EOF or interrupt. Lines starting
// with a slash are commands; everything else goes through the agent.
func runREPL(ctx context.Context, app *app) {
	fmt.Println("opsagent ready. Commands: /learn <fact>, /clear, /entities, /metrics, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return

		case line == "/clear":
			app.agent.ClearHistory()
			fmt.Println("conversation history cleared")

		case line == "/entities":
			entities := app.agent.Entities()
			if len(entities) == 0 {
				fmt.Println("no entities tracked yet")
				continue
			}
			fmt.Println(strings.Join(entities, ", "))

		case line == "/metrics":
			text, err := app.metrics.DumpText()
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Print(text)

		case strings.HasPrefix(line, "/learn "):
			fact := strings.TrimSpace(strings.TrimPrefix(line, "/learn "))
			if fact == "" {
				fmt.Println("usage: /learn <fact>")
				continue
			}
			if err := app.agent.Learn(ctx, fact, map[string]string{"source": "repl"}); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("fact stored")

		default:
			answer, err := app.agent.Process(ctx, line)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				if llmerrors.Is(err, llmerrors.ErrorTypeAuth) {
					fmt.Println("hint: authentication failed, check the stored API key")
				}
				continue
			}
			fmt.Println(answer)
		}
	}
}
