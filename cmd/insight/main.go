package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/heimdex/heimdex-insight/internal/analysis"
	"github.com/heimdex/heimdex-insight/internal/api"
	"github.com/heimdex/heimdex-insight/internal/catalog"
	"github.com/heimdex/heimdex-insight/internal/config"
	"github.com/heimdex/heimdex-insight/internal/db"
	"github.com/heimdex/heimdex-insight/internal/doctor"
	"github.com/heimdex/heimdex-insight/internal/embedding"
	"github.com/heimdex/heimdex-insight/internal/highlight"
	"github.com/heimdex/heimdex-insight/internal/llm"
	"github.com/heimdex/heimdex-insight/internal/logging"
	"github.com/heimdex/heimdex-insight/internal/media"
	"github.com/heimdex/heimdex-insight/internal/metrics"
	"github.com/heimdex/heimdex-insight/internal/pipeline"
	"github.com/heimdex/heimdex-insight/internal/playback"
	"github.com/heimdex/heimdex-insight/internal/queue"
	"github.com/heimdex/heimdex-insight/internal/search"
	"github.com/heimdex/heimdex-insight/internal/transcribe"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.ScratchDir(), cfg.HighlightsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting heimdex insight", "version", config.Version, "commit", config.GitCommit, "built", config.BuildTime, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                  HEIMDEX INSIGHT v%-24s║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-28d║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s║\n", authToken)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	catalogSvc := catalog.NewService(repo, logger)
	m := metrics.New()

	toolchain := media.NewFFmpeg(media.Config{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		Timeout:     cfg.MediaTimeout(),
		Logger:      logger,
	})
	if err := toolchain.Check(); err != nil {
		logger.Warn("ffmpeg toolchain unavailable, processing will fail until installed", "error", err)
	}

	transcriber := transcribe.NewClient(cfg.TranscriptionURL(), cfg.TranscriptionTimeout(), cfg.TranscriptionLanguage(), logger)
	embedder := embedding.NewClient(cfg.EmbeddingURL(), embedding.Options{
		BatchSize:         cfg.EmbeddingBatchSize(),
		Concurrency:       cfg.EmbeddingConcurrency(),
		RequestsPerSecond: cfg.EmbeddingRPS(),
		Dimension:         cfg.EmbeddingDimension(),
		Timeout:           cfg.EmbeddingTimeout(),
	}, logger)
	analyzer := analysis.NewAnalyzer(newCompleter(cfg, logger), cfg.PromptCharBudget(), logger)

	assembler := highlight.NewAssembler(toolchain, cfg.ScratchDir(), cfg.HighlightsDir(), cfg.FadeDuration(), logger)
	renderer := highlight.NewRenderer(repo, assembler, m, logger)

	orchestrator := pipeline.New(pipeline.Deps{
		Store:       repo,
		Media:       toolchain,
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Embedder:    embedder,
		Renderer:    renderer,
		ScratchRoot: cfg.ScratchDir(),
		Metrics:     m,
		Logger:      logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := queue.New(orchestrator, m, logger)
	jobs.Start(ctx)

	checks := doctor.NewCheckSet(5*time.Second,
		doctor.MediaCheck(toolchain),
		doctor.TranscriptionCheck(transcriber),
		doctor.HealthCheck("embedding", embedder),
	)
	doc := doctor.NewCachedDoctor(checks, doctor.DefaultCacheTTL, logger)
	go refreshDoctor(ctx, doc, logger)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		CatalogService: catalogSvc,
		Repository:     repo,
		Queue:          jobs,
		Renderer:       renderer,
		Search:         search.NewRanker(embedder, repo),
		Playback:       playback.NewServer(logger),
		Doctor:         doc,
		Metrics:        m,
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	// A running job is cancelled and its video marked failed.
	cancel()
	jobs.Wait()
	renderer.Wait()

	logger.Info("shutdown complete")
	return nil
}

// newCompleter returns nil when no LLM endpoint is configured, which puts the
// analyzer on the heuristic fallback.
func newCompleter(cfg *config.EnvConfig, logger *slog.Logger) analysis.Completer {
	if strings.TrimSpace(cfg.LLMBaseURL()) == "" {
		logger.Info("no LLM endpoint configured, using heuristic analysis")
		return nil
	}
	return llm.NewClient(llm.Config{
		BaseURL:     cfg.LLMBaseURL(),
		APIKey:      cfg.LLMAPIKey(),
		Model:       cfg.LLMModel(),
		Temperature: float32(cfg.LLMTemperature()),
		Timeout:     cfg.LLMTimeout(),
	}, logger)
}

// refreshDoctor probes dependencies once at startup and then on every TTL so
// /status always has a recent snapshot to show.
func refreshDoctor(ctx context.Context, doc *doctor.CachedDoctor, logger *slog.Logger) {
	ticker := time.NewTicker(doctor.DefaultCacheTTL)
	defer ticker.Stop()
	for {
		if caps, err := doc.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("dependency probe failed", "error", err)
		} else {
			logger.Debug("dependency probe finished", "all_ok", caps.AllOK)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func ensureAuthToken(repo catalog.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
