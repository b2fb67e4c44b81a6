package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/manthysbr/partgraph/internal/config"
	"github.com/manthysbr/partgraph/pkg/kernel"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP agent server",
	Long: `Serve the agent over HTTP.

Routes:
  GET    /agent/?message=...&session=...
  GET    /v1/sessions, /v1/sessions/{id}/history
  DELETE /v1/sessions/{id}
  GET    /v1/traces, /v1/traces/{id}
  GET    /healthz, /metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	logger.Info("starting partgraph server")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	logger.Info("config loaded",
		"llm_mode", cfg.LLM.Mode,
		"model", cfg.LLM.Model,
		"api_key", config.MaskSecret(cfg.LLM.APIKey),
		"graph_uri", cfg.Graph.URI,
		"db_path", cfg.Memory.DBPath,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, logger, cfg, true)
	if err != nil {
		logger.Error("server startup failed", "error", err)
		return err
	}
	defer a.close(ctx, logger)

	apiServer := kernel.NewServer(logger, a.agent, a.sessions, a.tracer, kernel.Options{
		Memory: a.memory,
		Traces: a.traceRepository(),
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           c.Handler(apiServer.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting api server", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
