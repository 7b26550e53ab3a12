package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"nanorelay/internal/api"
	"nanorelay/internal/audit"
	"nanorelay/internal/auth"
	"nanorelay/internal/config"
	"nanorelay/internal/envelope"
	"nanorelay/internal/router"
	"nanorelay/internal/websocket"
	"nanorelay/pkg/interfaces"
)

// Application coordinates all relay components.
// FUNCTIONAL DISCOVERY: Initialization follows dependency order:
// Audit → Registry → Verifier → Router → Handler → HTTP.
type Application struct {
	config     *config.Config
	auditLog   *audit.Log
	registry   *websocket.Registry
	httpServer *http.Server
}

// NewApplication wires the relay from configuration. listenAddr overrides the
// configured address when non-empty.
func NewApplication(cfg *config.Config, listenAddr string) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if listenAddr == "" {
		listenAddr = cfg.ListenAddr()
	}

	var auditLog *audit.Log
	var recorder interfaces.EventRecorder
	if cfg.Audit.Path != "" {
		var err error
		auditLog, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		recorder = auditLog
	}

	registry := websocket.NewRegistry(recorder)
	verifier := auth.NewVerifier(cfg.Auth.TokenSecret)
	frameRouter := router.New(registry, verifier, envelope.Codec{})
	handler := websocket.NewHandler(registry, frameRouter, cfg.WebSocket)
	healthServer := api.NewServer(registry)

	mux := http.NewServeMux()
	mux.Handle("/healthz", healthServer)
	mux.HandleFunc("/", handler.HandleRelay)

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	return &Application{
		config:     cfg,
		auditLog:   auditLog,
		registry:   registry,
		httpServer: httpServer,
	}, nil
}

// Start binds the listen address and begins serving. A bind failure is
// returned synchronously so the process can exit non-zero.
func (app *Application) Start() error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", app.httpServer.Addr, err)
	}

	log.Info().Str("addr", app.httpServer.Addr).Msg("relay listening")

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	return nil
}

// Stop shuts the relay down: HTTP first, then the audit log.
func (app *Application) Stop(ctx context.Context) error {
	log.Info().Msg("shutting down relay")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown error")
	}

	if app.auditLog != nil {
		if err := app.auditLog.Close(); err != nil {
			log.Warn().Err(err).Msg("audit log shutdown error")
		}
	}

	log.Info().Msg("relay shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("relay failed")
		os.Exit(1)
	}
}

// run parses the listen address from the sole positional argument (default
// 127.0.0.1:8080), starts the relay and blocks until SIGINT/SIGTERM.
func run() error {
	listenAddr := ""
	if len(os.Args) > 1 {
		listenAddr = os.Args[1]
	}

	cfg := config.LoadConfigWithPrecedence(os.Getenv("NANORELAY_CONFIG_FILE"))

	if cfg.Auth.TokenSecret == "" {
		log.Warn().Msg("ACCESS_TOKEN_SECRET not set; tokens verify against an empty secret")
	}

	app, err := NewApplication(cfg, listenAddr)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if err := app.Start(); err != nil {
		return err
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalCh
	log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return app.Stop(shutdownCtx)
}
