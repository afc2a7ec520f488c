package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"podnotes/api/internal/app"
	"podnotes/api/internal/archive"
	"podnotes/api/internal/auth"
	"podnotes/api/internal/collab"
	"podnotes/api/internal/export"
	"podnotes/api/internal/logging"
	"podnotes/api/internal/outline"
	"podnotes/api/internal/search"
	"podnotes/api/internal/session"
)

func NewServeCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), e)
		},
	}
}

func runServe(ctx context.Context, e *env) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg, log := e.cfg, e.log

	db, nodes, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := outline.NewEngine(nodes,
		outline.WithRetries(cfg.ConflictRetries),
		outline.WithLogger(logging.Component(log, "outline")),
	)

	var relay collab.Relay
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisRelay, err := collab.NewRedisRelay(cfg.RedisURL, logging.Component(log, "relay"))
		if err != nil {
			return err
		}
		defer redisRelay.Close()
		if err := redisRelay.Ping(ctx); err != nil {
			return err
		}
		relay = redisRelay
		log.Info().Msg("fanning events out through redis")
	}
	hub := collab.NewHub(relay, cfg.SessionBuffer, logging.Component(log, "hub"))
	stopRelay, err := hub.StartRelay(ctx)
	if err != nil {
		return err
	}
	defer stopRelay()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
	}
	searchService := search.NewService(meiliClient, search.NewSQLSearch(db, nodes.Dialect()), log)
	defer searchService.Close()
	engine.OnCommit(searchService.Observe)

	var signer *auth.Signer
	if cfg.AuthSecret != "" {
		signer = auth.NewSigner(cfg.AuthSecret, cfg.TokenTTL)
	} else {
		log.Warn().Msg("OUTLINE_AUTH_SECRET unset, trusting X-User-ID headers")
	}

	var archiveService *archive.Service
	if dir := strings.TrimSpace(cfg.ArchiveDir); dir != "" && !strings.EqualFold(dir, "off") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create archive dir: %w", err)
		}
		archiveService = archive.New(dir)
	}

	service := app.NewService(app.Deps{
		Store:   nodes,
		Engine:  engine,
		Hub:     hub,
		Search:  searchService,
		Export:  export.NewService(engine, log),
		Archive: archiveService,
		Signer:  signer,
		Logger:  logging.Component(log, "app"),
	})
	sockets := session.NewHandler(engine, hub, cfg.CORSOrigin, logging.Component(log, "session"))
	httpServer := app.NewHTTPServer(service, sockets, cfg.CORSOrigin, logging.Component(log, "http"))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("store", cfg.StoreDriver).Msg("outline API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	return nil
}
