// Package main is the policyqa CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/cli"
	"github.com/hyperjump/policyqa/internal/config"
	"github.com/hyperjump/policyqa/internal/doctor"
	"github.com/hyperjump/policyqa/internal/provider"
	"github.com/hyperjump/policyqa/internal/server"
	"github.com/hyperjump/policyqa/internal/session"
	"github.com/hyperjump/policyqa/internal/tui"
	"github.com/hyperjump/policyqa/pkg/utils"
)

var version = "dev"

const defaultConfigPath = config.DefaultPath

// loadConfig loads config from path. A missing file at the default path yields
// the defaults; the returned path is then empty.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg, err := config.LoadOrDefault(path)
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve", "server":
		runServe()
	case "chat":
		runChat()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "doctor":
		runDoctor()
	case "version", "--version", "-v":
		fmt.Printf("policyqa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	defaultBackend, err := provider.ParseBackend(cfg.LLM.DefaultBackend)
	if err != nil {
		logger.Fatal("Invalid default backend", zap.String("backend", cfg.LLM.DefaultBackend))
	}
	if len(components.Registry.Available()) == 0 {
		logger.Warn("no backend has credentials; configure API keys in the secrets file or environment",
			zap.String("secrets_path", cfg.Storage.SecretsPath))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := components.Secrets.Watch(watchCtx); err != nil {
		logger.Warn("secrets file watch disabled", zap.String("path", cfg.Storage.SecretsPath), zap.Error(err))
	}
	if idle := cfg.Server.SessionIdleTimeout; idle > 0 {
		go components.Sessions.Run(watchCtx, idle/2, idle, logger)
	}

	srv := server.NewServer(
		components.Controller,
		components.Sessions,
		components.Registry,
		components.Store,
		defaultBackend,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runChat() {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	backendName := fs.String("backend", "", "model backend (openai, azure-openai, gemini); default from config")
	logPath := fs.String("log", "policyqa.log", "log file (the terminal is used by the chat)")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewFileLogger(*logPath, cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	backend, err := resolveBackend(*backendName, cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()
	if err := components.Secrets.Watch(ctx); err != nil {
		logger.Warn("secrets file watch disabled", zap.Error(err))
	}

	sess := components.Sessions.Create(backend)
	port := tui.SessionPort{Controller: components.Controller, Session: sess}
	if _, err := tea.NewProgram(tui.New(ctx, port), tea.WithAltScreen()).Run(); err != nil {
		fmt.Printf("Chat failed: %v\n", err)
		os.Exit(1)
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	backendName := fs.String("backend", "", "backend whose embeddings build the index; default from config")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		fmt.Println("Usage: policyqa ingest [flags] <file.pdf|file.docx>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	backend, err := resolveBackend(*backendName, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open document: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	sess := components.Sessions.Create(backend)
	doc, err := components.Controller.Process(ctx, sess, &session.Upload{Name: filepath.Base(path), Reader: f})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %s\n", apperr.UserMessage(err))
		logger.Warn("ingest failed", zap.Error(err))
		os.Exit(1)
	}
	out := &cli.DocumentOutput{Document: doc, IndexDir: components.Store.Dir(), Hybrid: cfg.Retrieval.Hybrid()}
	if err := cli.WriteDocument(os.Stdout, out, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	backendName := fs.String("backend", "", "model backend; default from config")
	outputFormat := fs.String("output", "text", "output format: text or json")
	showSources := fs.Bool("sources", false, "also print the retrieved clauses")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: policyqa ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))
	question := buildQuestion(fs.Args())
	if question == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	backend, err := resolveBackend(*backendName, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess := components.Sessions.Create(backend)
	reply, err := components.Controller.Ask(ctx, sess, question)
	if err != nil {
		fmt.Fprintln(os.Stderr, apperr.UserMessage(err))
		os.Exit(1)
	}
	out := &cli.AnswerOutput{Question: question, Backend: string(backend), Answer: reply.Answer, Failed: reply.Failed}
	if *showSources {
		out.Sources, err = components.sources(ctx, backend, question)
		if err != nil {
			logger.Warn("failed to load sources", zap.Error(err))
		}
	}
	if err := cli.WriteAnswer(os.Stdout, out, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if reply.Failed {
		os.Exit(1)
	}
}

func runDoctor() {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("❌ config: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, zap.NewNop())
	if err != nil {
		fmt.Printf("❌ initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	report := doctor.Run(resolvedConfigPath, cfg, components.Registry)
	report.Write(os.Stdout)
	if !report.Healthy() {
		components.Close()
		os.Exit(1)
	}
}

// resolveBackend parses name, falling back to the configured default.
func resolveBackend(name string, cfg *config.Config) (provider.Backend, error) {
	if strings.TrimSpace(name) == "" {
		name = cfg.LLM.DefaultBackend
	}
	b, err := provider.ParseBackend(name)
	if err != nil {
		return "", fmt.Errorf("unknown backend %q (use openai, azure-openai or gemini)", name)
	}
	return b, nil
}

// buildQuestion joins all positional args so questions work with or without quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that appear after positional arguments to the front
// so that flag.Parse sees them.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printUsage() {
	fmt.Println(`policyqa - Insurance policy question answering

Usage:
  policyqa serve [flags]              Start the web app and JSON API
  policyqa chat [flags]               Chat in the terminal
  policyqa ingest [flags] <file>      Build the index from a PDF or DOCX policy
  policyqa ask [flags] <question>     Ask one question against the index
  policyqa doctor [flags]             Check configuration and credentials
  policyqa version                    Show version
  policyqa help                       Show this help

Common Flags:
  --config string    Config file path (default: config.yaml; defaults are used when it is missing)

Serve Flags:
  --debug            Enable debug logging

Chat, Ingest and Ask Flags:
  --backend string   openai, azure-openai or gemini (default from config)

Chat Flags:
  --log string       Log file (default: policyqa.log)

Ingest and Ask Flags:
  --output string    Output format: text or json (default: text)

Ask Flags:
  --sources          Also print the retrieved clauses

Credentials are read from the secrets file (storage.secrets_path), then the
environment (a .env file is loaded at startup): OPENAI_API_KEY, API_KEY,
API_BASE, API_VERSION, EMBEDDING_DEPLOYMENT_NAME, DEPLOYMENT_NAME_GPT4o,
GOOGLE_API_KEY.

Examples:
  policyqa serve
  policyqa ingest --backend azure-openai policy.pdf
  policyqa ask "46M, knee surgery, Pune, 3-month policy"
  policyqa ask --output json --sources "Is cataract surgery covered?"
  policyqa doctor`)
}
