package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/textio/internal/grammar"
	"github.com/ppiankov/textio/internal/server"
	"github.com/ppiankov/textio/internal/worker"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve starts the note review API:
- POST /api/evaluate and /api/rewrite (also /llm)
- POST /llm-realign and /api/realign/inline
- POST /api/score (API key required)
- POST /check (LanguageTool grammar check)
- GET /api/history, /api/input-state, /health, /metrics

Example:
  textio serve
  textio serve --addr :9000
  TEXTIO_LLM_PROVIDER=ollama textio serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	var checker grammar.Checker
	if cfg.Grammar.BaseURL != "" {
		checker = grammar.NewLanguageTool(cfg.Grammar.BaseURL, cfg.Grammar.Language, cfg.Grammar.Timeout, logger.Named("grammar"))
	}
	if len(cfg.Auth.APIKeys) == 0 {
		logger.Warn("no auth.api_keys configured, /api/score rejects every request")
	}

	router := server.NewRouter(&server.Container{
		Service:     rt.pipeline,
		Grammar:     checker,
		Metrics:     rt.metrics,
		Gatherer:    rt.registry,
		Logger:      logger.Named("http"),
		APIKeys:     cfg.Auth.APIKeys,
		KeyLimiter:  worker.NewLimiter(cfg.RateLimiting.ScoringRequestsPerSecond, cfg.RateLimiting.ScoringBurst),
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	logger.Info("starting textio",
		zap.String("version", Version),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model),
		zap.Bool("store", rt.repo != nil),
		zap.Bool("redis", rt.redis != nil))

	start := time.Now()
	if err := server.New(cfg.Server, router, logger.Named("http")).Run(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("stopped", zap.Duration("uptime", time.Since(start)))
	return nil
}
