package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/maxai/client/internal/config"
	"github.com/zhouzirui/maxai/client/internal/handler"
	"github.com/zhouzirui/maxai/client/internal/logging"
	"github.com/zhouzirui/maxai/client/internal/middleware"
	"github.com/zhouzirui/maxai/client/internal/service/ai"
	"github.com/zhouzirui/maxai/client/internal/service/backend"
	chatService "github.com/zhouzirui/maxai/client/internal/service/chat"
	sessionService "github.com/zhouzirui/maxai/client/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v; continuing with system environment variables only\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	provider := sessionService.NewProvider(sessionService.ProviderConfig{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURL:  cfg.OAuth.RedirectURL,
		Scopes:       cfg.OAuth.Scopes,
	})
	sessions := sessionService.NewManager(sessionService.NewStore(), provider, cfg.Session.PendingTTL, logger)

	backendClient, err := backend.NewClient(backend.Config{
		BaseURL:        cfg.Backend.BaseURL,
		CredentialMode: cfg.Backend.CredentialMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}
	if cfg.Backend.CredentialMode == config.CredentialBody {
		logger.Warn("access token is sent in the chat request body; prefer CHAT_CREDENTIAL_MODE=header")
	}

	aiService, err := ai.NewService(ctx, backendClient, logger)
	if err != nil {
		return fmt.Errorf("create chat chain: %w", err)
	}
	chatSvc := chatService.NewService(aiService, cfg.Backend.Timeout, logger)

	cookies, err := middleware.NewSessions(cfg.Session.Secret, cfg.Session.CookieSecure, logger)
	if err != nil {
		return err
	}
	if cfg.Session.Secret == "" {
		logger.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}

	router := handler.NewRouter(sessions, chatSvc, cookies, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("MaxAI web client listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Duration("chat_timeout", cfg.Backend.Timeout),
	)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
