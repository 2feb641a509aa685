package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/vbonduro/insightstudio/internal/analysis"
	"github.com/vbonduro/insightstudio/internal/config"
	"github.com/vbonduro/insightstudio/internal/logging"
	"github.com/vbonduro/insightstudio/internal/vision"
	claudevision "github.com/vbonduro/insightstudio/internal/vision/claude"
	geminivision "github.com/vbonduro/insightstudio/internal/vision/gemini"
	ollamavision "github.com/vbonduro/insightstudio/internal/vision/ollama"
	openaivision "github.com/vbonduro/insightstudio/internal/vision/openai"
	"github.com/vbonduro/insightstudio/internal/web"
	"github.com/vbonduro/insightstudio/internal/web/templates"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	err = run(cfg, logger)
	if err != nil {
		logger.Error("server exited", "error", err)
	}
	cleanup()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	generator, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	gw := analysis.NewGateway(generator, logger,
		analysis.WithMaxInFlight(cfg.MaxInFlight),
		analysis.WithTimeout(cfg.AnalysisTimeout),
	)
	server := web.NewServer(gw, templates.FS, logger, web.Options{
		MaxUploadBytes:     cfg.MaxUploadBytes,
		MaxImagePixels:     cfg.MaxImagePixels,
		PreviewMaxDim:      cfg.PreviewMaxDim,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	httpServer := server.NewHTTPServer(cfg.ListenAddr)

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.ListenAddr, "model", gw.Model())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// newGenerator builds the backend named by VISION_BACKEND. A missing API key
// is not fatal: the first analysis reports the service's own error.
func newGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (vision.Generator, error) {
	switch cfg.VisionBackend {
	case "gemini", "":
		if cfg.GoogleAPIKey == "" {
			logger.Warn("GOOGLE_API_KEY is not set; analyses will fail until it is")
		}
		var opts []option.ClientOption
		if cfg.GeminiEndpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.GeminiEndpoint))
		}
		logger.Info("using Gemini vision backend", "model", cfg.GeminiModel)
		gen, err := geminivision.NewGeminiGenerator(ctx, cfg.GoogleAPIKey, cfg.GeminiModel, opts...)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("OPENAI_API_KEY is not set; analyses will fail until it is")
		}
		logger.Info("using OpenAI vision backend", "model", cfg.OpenAIModel)
		return openaivision.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	case "claude":
		if cfg.ClaudeAPIKey == "" {
			logger.Warn("CLAUDE_API_KEY is not set; analyses will fail until it is")
		}
		logger.Info("using Claude vision backend", "model", cfg.ClaudeModel)
		return claudevision.NewClaudeGenerator(cfg.ClaudeAPIKey, cfg.ClaudeModel), nil
	case "ollama":
		logger.Info("using Ollama vision backend", "host", cfg.OllamaHost, "model", cfg.OllamaModel)
		return ollamavision.NewOllamaGenerator(cfg.OllamaHost, cfg.OllamaModel), nil
	default:
		return nil, fmt.Errorf("unknown VISION_BACKEND %q", cfg.VisionBackend)
	}
}
