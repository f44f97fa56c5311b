// GovPulse answers natural-language questions about Scottish
// deprivation statistics and UK industrial-strategy policy.
//
// It exposes an HTTP API for queries and feedback, plus a CLI for
// one-shot questions and data setup. Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	govpulse serve                 Start the API server
//	govpulse init [dir]            Initialize a working directory with defaults
//	govpulse ask <question>        Ask a single question (for testing)
//	govpulse setup                 Seed the statistics DB and build the policy index
//	govpulse version               Print version and build information
//	govpulse -o json version       Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/soferos/govpulse/examples"
	"github.com/soferos/govpulse/internal/agent"
	"github.com/soferos/govpulse/internal/api"
	"github.com/soferos/govpulse/internal/buildinfo"
	"github.com/soferos/govpulse/internal/config"
	"github.com/soferos/govpulse/internal/embeddings"
	"github.com/soferos/govpulse/internal/feedback"
	"github.com/soferos/govpulse/internal/ingest"
	"github.com/soferos/govpulse/internal/llm"
	"github.com/soferos/govpulse/internal/policy"
	"github.com/soferos/govpulse/internal/simd"
	"github.com/soferos/govpulse/internal/tools"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level
// environment (context, stdio, argv) and delegates immediately to
// [run]. This keeps os.Exit, os.Stdout, and os.Args out of the
// application logic so the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the govpulse command. All OS-level
// dependencies are injected as parameters. Arguments are parsed by
// hand: the flag package relies on package-level globals, which makes
// it impossible to call run() concurrently from tests, and the
// argument surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: govpulse ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "setup":
		var statsCSV, policyMD string
		for i := 0; i < len(cmdArgs); i++ {
			switch {
			case cmdArgs[i] == "-stats" && i+1 < len(cmdArgs):
				statsCSV = cmdArgs[i+1]
				i++
			case cmdArgs[i] == "-policy" && i+1 < len(cmdArgs):
				policyMD = cmdArgs[i+1]
				i++
			default:
				return fmt.Errorf("usage: govpulse setup [-stats <file.csv>] [-policy <file.md>]")
			}
		}
		return runSetup(ctx, stdout, configPath, statsCSV, policyMD)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "GovPulse - Scottish Government Data Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: govpulse [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  setup        Seed the statistics DB and build the policy index")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Setup flags:")
	fmt.Fprintln(w, "  -stats <file.csv>   Deprivation records (default: built-in sample)")
	fmt.Fprintln(w, "  -policy <file.md>   Policy document (default: built-in sample)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/govpulse/config.yaml, /etc/govpulse/config.yaml")
	return nil
}

// runInit writes the example config into dir, refusing to overwrite
// an existing one.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	target := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", target)
	}

	if err := os.WriteFile(target, examples.ConfigYAML, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(stdout, "Wrote %s\n", target)
	fmt.Fprintln(stdout, "Next: run 'govpulse setup' to seed the data files, then 'govpulse serve'.")
	return nil
}

// newLogger builds a text slog logger writing to w.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig loads the config from an explicit path or the default
// search paths, falling back to built-in defaults when no file exists
// and no path was forced.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// buildOrchestrator opens the data stores and wires the tool registry
// and orchestrator. The returned cleanup closes the stores.
func buildOrchestrator(cfg *config.Config, logger *slog.Logger) (*agent.Orchestrator, func(), error) {
	store, err := simd.Open(cfg.Data.StatsDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open statistics store %s: %w", cfg.Data.StatsDB, err)
	}

	embedder := embeddings.New(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
	})

	index, err := policy.Open(cfg.Data.PolicyDB, embedder)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("open policy index %s: %w", cfg.Data.PolicyDB, err)
	}

	registry := tools.NewRegistry()
	registry.Register(&tools.Tool{
		Name:        simd.ToolRanking,
		Description: "Retrieves the top 5 neighborhoods by deprivation ranking for a council area or all of Scotland.",
		Parameters:  simd.RankingDefinition(),
		Handler:     simd.RankingHandler(store),
	})
	registry.Register(&tools.Tool{
		Name:        simd.ToolLookup,
		Description: "Finds the deprivation rank of a specific neighborhood using fuzzy matching.",
		Parameters:  simd.LookupDefinition(),
		Handler:     simd.LookupHandler(store),
	})
	registry.Register(&tools.Tool{
		Name:        policy.ToolQuery,
		Description: "Searches UK industrial-strategy policy documents. Useful for policy questions.",
		Parameters:  policy.QueryDefinition(),
		Handler:     policy.QueryHandler(index),
	})

	client := llm.NewOllamaClient(cfg.Ollama.BaseURL)
	orchestrator := agent.New(logger, client, registry, cfg.Ollama.Model, cfg.Agent.MaxIterations)

	cleanup := func() {
		index.Close()
		store.Close()
	}
	return orchestrator, cleanup, nil
}

// runAsk handles the "govpulse ask <question>" subcommand. It boots
// the orchestrator and processes a single question, printing the
// response to stdout. Useful for smoke tests without the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)
	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	orchestrator, cleanup, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	answer, err := orchestrator.Ask(ctx, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, answer.Response)
	return nil
}

// runSetup handles the "govpulse setup" subcommand. It seeds the
// statistics database and builds the policy vector index, using
// built-in sample data when no files are supplied. Building the index
// requires a running embeddings server.
func runSetup(ctx context.Context, stdout io.Writer, configPath, statsCSV, policyMD string) error {
	logger := newLogger(stdout, slog.LevelInfo)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "path", cfgPath)

	// Statistics table.
	records := ingest.SampleRecords()
	if statsCSV != "" {
		records, err = ingest.LoadStatsFile(statsCSV)
		if err != nil {
			return fmt.Errorf("load statistics: %w", err)
		}
	}

	store, err := simd.Open(cfg.Data.StatsDB)
	if err != nil {
		return fmt.Errorf("open statistics store: %w", err)
	}
	defer store.Close()

	if err := store.Seed(records); err != nil {
		return fmt.Errorf("seed statistics: %w", err)
	}
	logger.Info("statistics seeded", "path", cfg.Data.StatsDB, "records", len(records))
	fmt.Fprintf(stdout, "Seeded %d statistics records into %s\n", len(records), cfg.Data.StatsDB)

	// Policy index.
	embedder := embeddings.New(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
	})

	index, err := policy.Open(cfg.Data.PolicyDB, embedder)
	if err != nil {
		return fmt.Errorf("open policy index: %w", err)
	}
	defer index.Close()

	source := ingest.SamplePolicySource
	content := ingest.SamplePolicyDocument
	if policyMD != "" {
		data, err := os.ReadFile(policyMD)
		if err != nil {
			return fmt.Errorf("read policy document: %w", err)
		}
		source = "file:" + policyMD
		content = string(data)
	}

	ingester := ingest.NewPolicyIngester(index, source)
	count, err := ingester.IngestString(ctx, content)
	if err != nil {
		return fmt.Errorf("build policy index (is Ollama running?): %w", err)
	}

	logger.Info("policy index built", "path", cfg.Data.PolicyDB, "chunks", count, "source", source)
	fmt.Fprintf(stdout, "Indexed %d policy chunks into %s\n", count, cfg.Data.PolicyDB)
	return nil
}

// runServe handles the "govpulse serve" subcommand. It is the primary
// operating mode: loads config, opens the data stores, wires the
// orchestrator and tools, starts the API server, and blocks until a
// shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting GovPulse", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Ollama.Model,
		"ollama_url", cfg.Ollama.BaseURL,
	)

	orchestrator, cleanup, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	fb := feedback.NewLog(cfg.Data.FeedbackLog)

	// Probe the model server once at startup. A failure is worth a
	// warning, not an abort: Ollama may come up after we do.
	client := llm.NewOllamaClient(cfg.Ollama.BaseURL)
	if err := client.Ping(ctx); err != nil {
		logger.Warn("model server unreachable at startup", "url", cfg.Ollama.BaseURL, "error", err)
	}

	listen := net.JoinHostPort(cfg.Listen.Address, strconv.Itoa(cfg.Listen.Port))
	server := api.NewServer(listen, orchestrator, fb, cfg.Agent.RequestTimeout.Duration, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
