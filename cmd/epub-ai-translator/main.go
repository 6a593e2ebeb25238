package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/drakeshin/EPUB-AI-Translator/internal/archive"
	"github.com/drakeshin/EPUB-AI-Translator/internal/classify"
	"github.com/drakeshin/EPUB-AI-Translator/internal/config"
	"github.com/drakeshin/EPUB-AI-Translator/internal/flow"
	"github.com/drakeshin/EPUB-AI-Translator/internal/status"
	"github.com/drakeshin/EPUB-AI-Translator/internal/track"
	"github.com/drakeshin/EPUB-AI-Translator/internal/translate"
)

var (
	version = "1.0.0"
	logger  *logrus.Logger
)

func init() {
	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal(err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "epub-ai-translator",
	Short: "Translate the readable text of EPUB files while preserving their structure",
	Long: `EPUB AI Translator translates the human-readable text inside an EPUB's
content documents while leaving tags, attributes, metadata, and packaging
byte-identical. Runs are resumable: with tracking enabled, an interrupted
run picks up where it left off without re-translating completed entries.`,
	Run: runTranslate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("EPUB AI Translator v%s\n", version)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard tracked progress for an EPUB",
	Long: `Reset removes the stored progress record and staged entries for the given
EPUB, so the next tracked run starts from scratch.`,
	Run: runReset,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		showConfig(cmd)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		initConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("input", "i", "", "Input EPUB file, or a directory of EPUBs")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output EPUB path (single-file mode; defaults into the output directory)")
	rootCmd.PersistentFlags().StringP("source-lang", "s", "auto", "Source language code, or 'auto' to detect")
	rootCmd.PersistentFlags().StringP("target-lang", "t", "", "Target language code (e.g. pt)")
	rootCmd.PersistentFlags().StringP("api-key", "k", "", "Translation backend API key")
	rootCmd.PersistentFlags().BoolP("track", "r", false, "Persist per-entry progress so interrupted runs can resume")
	rootCmd.PersistentFlags().Bool("continue-on-error", false, "Pass entries through untranslated when the backend fails instead of aborting")
	rootCmd.PersistentFlags().String("backend", "openai", "Translation backend: openai or gemini-cli")
	rootCmd.PersistentFlags().String("status-addr", "", "Address for the optional run-monitoring server (e.g. :8080)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path (default: config.json beside executable)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// runHandle points the status server at whichever flow is currently running.
type runHandle struct {
	mu   sync.RWMutex
	flow *flow.Flow
}

func (h *runHandle) set(f *flow.Flow) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flow = f
}

func (h *runHandle) snapshot() flow.Progress {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.flow == nil {
		return flow.Progress{State: flow.StateInit}
	}
	return h.flow.Snapshot()
}

func runTranslate(cmd *cobra.Command, _ []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cmd)

	inputPath, _ := cmd.Flags().GetString("input")
	outputPath, _ := cmd.Flags().GetString("output")
	sourceLang, _ := cmd.Flags().GetString("source-lang")
	targetLang, _ := cmd.Flags().GetString("target-lang")
	apiKey, _ := cmd.Flags().GetString("api-key")
	tracking, _ := cmd.Flags().GetBool("track")
	continueOnError, _ := cmd.Flags().GetBool("continue-on-error")
	backend, _ := cmd.Flags().GetString("backend")
	statusAddr, _ := cmd.Flags().GetString("status-addr")

	if inputPath == "" {
		logger.Fatal("--input is required")
	}
	if targetLang == "" {
		logger.Fatal("--target-lang is required")
	}
	if sourceLang == "" {
		sourceLang = "auto"
	}

	if apiKey == "" {
		switch backend {
		case "gemini-cli":
			apiKey = cfg.Gemini.APIKey
		default:
			apiKey = cfg.OpenAI.APIKey
		}
	}
	if apiKey == "" {
		logger.Fatalf("API key for backend %s is required (use --api-key or configuration)", backend)
	}

	if err := os.MkdirAll(cfg.App.StateDir, 0755); err != nil {
		logger.Fatalf("Failed to create state directory: %v", err)
	}
	if err := os.MkdirAll(cfg.App.OutputDir, 0755); err != nil {
		logger.Fatalf("Failed to create output directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle := &runHandle{}
	var hub *status.Hub
	if statusAddr != "" {
		hub = status.NewHub(logger)
		go hub.Run()

		srv := status.New(logger, hub, handle.snapshot)
		httpServer := &http.Server{
			Addr:         statusAddr,
			Handler:      srv.Handler(),
			ReadTimeout:  cfg.Status.ReadTimeout.Duration,
			WriteTimeout: cfg.Status.WriteTimeout.Duration,
		}
		defer func() { _ = httpServer.Close() }()

		go func() {
			logger.Infof("Status server listening on %s", statusAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("Status server failed: %v", err)
			}
		}()
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		logger.Fatalf("Cannot access input path: %v", err)
	}

	opts := flow.Options{
		SourceLang:      sourceLang,
		TargetLang:      targetLang,
		TrackingEnabled: tracking,
		ContinueOnError: continueOnError,
	}

	if info.IsDir() {
		runDirectory(ctx, cfg, backend, apiKey, inputPath, targetLang, opts, handle, hub)
		return
	}

	if outputPath == "" {
		outputPath = filepath.Join(cfg.App.OutputDir, translatedName(filepath.Base(inputPath), targetLang))
	}

	opts.InputPath = inputPath
	opts.OutputPath = outputPath

	report, err := runOne(ctx, cfg, backend, apiKey, opts, handle, hub)
	if err != nil {
		logger.Fatalf("Translation failed: %v", err)
	}
	printReport(report)
}

func runReset(cmd *cobra.Command, _ []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cmd)

	inputPath, _ := cmd.Flags().GetString("input")
	if inputPath == "" {
		logger.Fatal("--input is required")
	}

	store := archive.NewStore(logger)
	input, err := store.Open(inputPath)
	if err != nil {
		logger.Fatalf("Cannot open input file: %v", err)
	}

	tracker := track.NewTracker(cfg.App.StateDir, logger)
	if err := tracker.Remove(input.Identity()); err != nil {
		logger.Fatalf("Failed to remove tracked progress: %v", err)
	}

	logger.Infof("Tracked progress removed for %s", inputPath)
}

// runDirectory translates every EPUB in the directory that does not already
// have a translated sibling, continuing past per-book failures.
func runDirectory(ctx context.Context, cfg *config.Config, backend, apiKey, dir, targetLang string, opts flow.Options, handle *runHandle, hub *status.Hub) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Fatalf("Cannot read input directory: %v", err)
	}

	existing := make(map[string]bool, len(entries))
	for _, entry := range entries {
		existing[entry.Name()] = true
	}

	var pending []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".epub") {
			continue
		}
		if strings.HasPrefix(name, "[TRANSLATED]") {
			continue
		}
		if existing[translatedName(name, targetLang)] {
			continue
		}
		pending = append(pending, name)
	}

	if len(pending) == 0 {
		logger.Info("No untranslated EPUB files found in directory")
		return
	}

	logger.Infof("Found %d EPUB file(s) to translate", len(pending))

	failures := 0
	for i, name := range pending {
		if ctx.Err() != nil {
			logger.Warn("Interrupted, stopping directory run")
			return
		}

		logger.Infof("Processing file %d/%d: %s", i+1, len(pending), name)

		bookOpts := opts
		bookOpts.InputPath = filepath.Join(dir, name)
		bookOpts.OutputPath = filepath.Join(dir, translatedName(name, targetLang))

		report, err := runOne(ctx, cfg, backend, apiKey, bookOpts, handle, hub)
		if err != nil {
			failures++
			logger.Errorf("Failed to translate %s: %v", name, err)
			continue
		}
		printReport(report)
	}

	logger.Infof("Directory run finished: %d succeeded, %d failed", len(pending)-failures, failures)
}

// runOne builds a fresh flow with its own scoped credential and executes it.
func runOne(ctx context.Context, cfg *config.Config, backend, apiKey string, opts flow.Options, handle *runHandle, hub *status.Hub) (*flow.Report, error) {
	credential := translate.NewCredential(apiKey)

	port, err := buildPort(cfg, backend, credential, hub)
	if err != nil {
		credential.Scrub()
		return nil, err
	}

	store := archive.NewStore(logger)
	classifier := classify.NewClassifier(logger)
	tracker := track.NewTracker(cfg.App.StateDir, logger)

	f := flow.New(store, classifier, tracker, port, credential, logger, opts)
	if hub != nil {
		f.SetBroadcaster(hub)
	}
	handle.set(f)

	return f.Run(ctx)
}

func buildPort(cfg *config.Config, backend string, credential *translate.Credential, hub *status.Hub) (translate.Port, error) {
	switch backend {
	case "openai":
		client := translate.NewOpenAIClient(
			credential,
			cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens,
			cfg.OpenAI.Temperature,
			cfg.Translation.MaxRetries,
			cfg.Translation.RetryDelay.Duration,
			cfg.Translation.RequestTimeout.Duration,
			logger,
		)
		if hub != nil {
			client.SetBroadcaster(hub)
		}
		return client, nil

	case "gemini-cli":
		client := translate.NewGeminiCLIClient(
			cfg.Gemini.Binary,
			cfg.Gemini.Model,
			credential,
			cfg.Translation.MaxRetries,
			cfg.Translation.RetryDelay.Duration,
			cfg.Translation.RequestTimeout.Duration,
			logger,
		)
		if hub != nil {
			client.SetBroadcaster(hub)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
}

func translatedName(base, targetLang string) string {
	return fmt.Sprintf("[TRANSLATED][%s]%s", strings.ToUpper(targetLang), base)
}

func printReport(report *flow.Report) {
	logger.Infof("Translated %s -> %s: %d entries translated, %d resumed, %d structural passed through",
		report.SourceLang, report.TargetLang, len(report.Translated), len(report.Reused), report.Structural)

	for name, reason := range report.Skipped {
		logger.Warnf("Skipped entry %s: %s", name, reason)
	}

	logger.Infof("Output written to %s", report.OutputPath)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetConfigPath()
	}

	logger.Debugf("Loading configuration from: %s", configPath)
	return config.Load(configPath)
}

func setupLogging(cmd *cobra.Command) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

func showConfig(cmd *cobra.Command) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetConfigPath()
	}

	fmt.Printf("EPUB AI Translator Configuration\n")
	fmt.Printf("Configuration file: %s\n\n", configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf("Configuration file does not exist\n")
		fmt.Printf("Run 'epub-ai-translator config init' to create one\n")
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		return
	}

	fmt.Printf("OpenAI Settings:\n")
	fmt.Printf("  API Key: %s\n", maskKey(cfg.OpenAI.APIKey))
	fmt.Printf("  Model: %s\n", cfg.OpenAI.Model)
	fmt.Printf("  Max Tokens: %d\n", cfg.OpenAI.MaxTokens)
	fmt.Printf("  Temperature: %.1f\n\n", cfg.OpenAI.Temperature)

	fmt.Printf("Gemini CLI Settings:\n")
	fmt.Printf("  Binary: %s\n", cfg.Gemini.Binary)
	fmt.Printf("  Model: %s\n", cfg.Gemini.Model)
	fmt.Printf("  API Key: %s\n\n", maskKey(cfg.Gemini.APIKey))

	fmt.Printf("Translation Settings:\n")
	fmt.Printf("  Max Retries: %d\n", cfg.Translation.MaxRetries)
	fmt.Printf("  Retry Delay: %s\n", cfg.Translation.RetryDelay)
	fmt.Printf("  Request Timeout: %s\n", cfg.Translation.RequestTimeout)
	fmt.Printf("  Supported Languages: %d languages\n\n", len(cfg.Translation.SupportedLangs))

	fmt.Printf("Application Settings:\n")
	fmt.Printf("  State Directory: %s\n", cfg.App.StateDir)
	fmt.Printf("  Output Directory: %s\n", cfg.App.OutputDir)
}

func maskKey(key string) string {
	if key == "" {
		return "not set"
	}
	if len(key) <= 10 {
		return "***"
	}
	return key[:6] + "..." + key[len(key)-4:]
}

func initConfig(cmd *cobra.Command) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Configuration file already exists: %s\n", configPath)
		return
	}

	if _, err := config.Load(configPath); err != nil {
		fmt.Printf("Failed to initialize configuration: %v\n", err)
		return
	}

	fmt.Printf("Configuration initialized: %s\n", configPath)
	fmt.Printf("Use 'epub-ai-translator config show' to view it\n")
}
