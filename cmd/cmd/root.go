package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"curator/internal/cluster"
	"curator/internal/config"
	"curator/internal/extract"
	"curator/internal/lifecycle"
	"curator/internal/llm"
	"curator/internal/logger"
	"curator/internal/pipeline"
	"curator/internal/resolve"
	"curator/internal/store"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "curator",
	Short: "Curator runs a content curation pipeline: resolve, extract, classify, generate.",
	Long: `Curator is the pipeline engine behind a personal content-curation
dashboard. It resolves obfuscated aggregator URLs, extracts article text
with layered fallbacks, classifies and transforms content through a chain
of AI providers with graceful degradation, and tracks every item through a
bounded lifecycle.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./curator.yaml or $HOME/.curator/curator.yaml)")
}

func initConfig() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded
	logger.Init(logger.Options{Level: cfg.App.LogLevel, Pretty: cfg.App.PrettyLogs})
}

// openStore opens the SQLite store under the configured data directory.
// The caller owns Close.
func openStore() (*store.Store, error) {
	return store.NewStore(cfg.App.DataDir)
}

// buildOrchestrator wires the pipeline from configuration. Providers
// without credentials are skipped so a bare install still runs with the
// local Ollama entry and the chain's fail-open defaults behind it.
func buildOrchestrator(s *store.Store) *pipeline.Orchestrator {
	resolver := resolve.NewResolver(resolve.WithAggregatorHost(cfg.Resolve.AggregatorHost))

	extractTimeout := config.Duration(cfg.Extract.Timeout, 30*time.Second)
	extractor := extract.NewExtractor(cfg.Extract.ReaderBaseURL,
		extract.WithHTTPClient(&http.Client{Timeout: extractTimeout}))

	var providers []llm.Provider
	for _, name := range cfg.AI.Order {
		switch name {
		case "openai":
			if cfg.AI.OpenAI.APIKey != "" {
				providers = append(providers, llm.NewOpenAIProvider(
					"openai", cfg.AI.OpenAI.BaseURL, cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.Model, nil))
			}
		case "gemini":
			if cfg.AI.Gemini.APIKey != "" {
				providers = append(providers, llm.NewGeminiProvider(
					cfg.AI.Gemini.BaseURL, cfg.AI.Gemini.APIKey, cfg.AI.Gemini.Model, nil))
			}
		case "ollama":
			providers = append(providers, llm.NewOllamaProvider(cfg.AI.Ollama.BaseURL, cfg.AI.Ollama.Model, nil))
		}
	}
	chain := llm.NewChain(config.Duration(cfg.AI.CallTimeout, 45*time.Second), providers...)

	return pipeline.NewOrchestrator(
		s,
		resolver,
		extractor,
		chain,
		lifecycle.NewManager(cfg.Extract.QualityFloor),
		pipeline.Options{
			RetryAttempts:     cfg.Retry.MaxAttempts,
			RetryInitialDelay: config.Duration(cfg.Retry.InitialDelay, time.Second),
			ClusterOptions: cluster.Options{
				TitleThreshold:     cfg.Cluster.TitleThreshold,
				URLThreshold:       cfg.Cluster.URLThreshold,
				RequireBothSimilar: cfg.Cluster.RequireBothSimilar,
			},
		},
	)
}
