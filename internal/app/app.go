// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires every collaborator into the running server: config,
// event bus, session manager, scheduler, preferences, auth gate, the
// multiplex hub, the auxiliary HTTP surface, the preview proxy, and the
// optional tunnel subprocess.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rigshell/agentbridge/internal/authgate"
	"github.com/rigshell/agentbridge/internal/banner"
	"github.com/rigshell/agentbridge/internal/binresolve"
	"github.com/rigshell/agentbridge/internal/config"
	"github.com/rigshell/agentbridge/internal/events"
	"github.com/rigshell/agentbridge/internal/httpapi"
	"github.com/rigshell/agentbridge/internal/multiplex"
	"github.com/rigshell/agentbridge/internal/prefs"
	"github.com/rigshell/agentbridge/internal/previewproxy"
	"github.com/rigshell/agentbridge/internal/scheduler"
	"github.com/rigshell/agentbridge/internal/sessionmgr"
	"github.com/rigshell/agentbridge/internal/tunnel"
)

// Options holds the command-line-supplied overrides for App.New.
type Options struct {
	ConfigPath string
	Host       string
	Port       int
	Version    string
}

// App is the main application container.
type App struct {
	mu sync.Mutex

	version string
	config  *config.Config

	bus       events.Bus
	gate      *authgate.Gate
	sessions  *sessionmgr.Manager
	schedules *scheduler.Scheduler
	prefs     *prefs.Store
	hub       *multiplex.Hub
	tunnel    *tunnel.Tunnel

	httpServer *http.Server

	done     chan struct{}
	stopOnce sync.Once
}

// New loads configuration and constructs an App. It does not start any
// goroutines or listeners; call Run or Start for that.
func New(opts Options) (*App, error) {
	loader := config.NewLoader()
	path := opts.ConfigPath
	if path == "" {
		found, err := loader.FindConfig()
		if err != nil {
			return nil, fmt.Errorf("app: finding config: %w", err)
		}
		path = found
	}
	cfg, err := loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("app: loading config: %w", err)
	}
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}

	return &App{
		version: opts.Version,
		config:  cfg,
		done:    make(chan struct{}),
	}, nil
}

// Initialize resolves the managed binary, opens the state directory,
// builds every collaborator and, when configured, starts the tunnel
// subprocess. It does not start the HTTP listener; call Start for that.
func (app *App) Initialize(ctx context.Context) error {
	cfg := app.config

	binaryPath, err := binresolve.Resolve(cfg.Agent.Binary, cfg.Agent.PathOverride)
	if err != nil {
		return fmt.Errorf("app: resolving agent binary: %w", err)
	}
	log.Printf("Resolved agent binary %q -> %s", cfg.Agent.Binary, binaryPath)

	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return fmt.Errorf("app: creating state dir %s: %w", cfg.StateDir, err)
	}

	app.bus = events.NewMemoryBus()
	app.gate = authgate.New(cfg.Auth.TokenOverride)

	app.sessions = sessionmgr.New(sessionmgr.Config{
		Binary:         cfg.Agent.Binary,
		BinaryOverride: cfg.Agent.PathOverride,
		Bus:            app.bus,
	})

	app.schedules = scheduler.New(scheduler.Config{
		Binary:         cfg.Agent.Binary,
		BinaryOverride: cfg.Agent.PathOverride,
		DotDir:         filepath.Join(cfg.StateDir, "schedules"),
		Retention:      cfg.Scheduler.RetentionDuration(),
		Bus:            app.bus,
	})
	if err := app.schedules.Load(); err != nil {
		return fmt.Errorf("app: loading schedules: %w", err)
	}

	prefsStore, err := prefs.Open(filepath.Join(cfg.StateDir, "prefs"), app.bus)
	if err != nil {
		return fmt.Errorf("app: opening preferences: %w", err)
	}
	app.prefs = prefsStore

	uploadDir := filepath.Join(cfg.StateDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return fmt.Errorf("app: creating upload dir %s: %w", uploadDir, err)
	}

	app.hub = multiplex.New(multiplex.Config{
		Gate:      app.gate,
		Sessions:  app.sessions,
		Schedules: app.schedules,
		Prefs:     app.prefs,
		Bus:       app.bus,
		UploadDir: uploadDir,
	})

	router := httpapi.NewRouter(httpapi.Dependencies{
		Gate:     app.gate,
		Sessions: app.sessions,
		Hub:      app.hub,
		Preview:  previewproxy.New(app.gate),
	})

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	if len(cfg.Tunnel.Command) > 0 {
		tun, err := tunnel.Start(ctx, cfg.Tunnel.Command[0], cfg.Tunnel.Command[1:]...)
		if err != nil {
			log.Printf("Warning: failed to start tunnel: %v", err)
		} else {
			app.tunnel = tun
		}
	}

	return nil
}

// Start begins serving HTTP and prints the startup banner.
func (app *App) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting agentbridge %s on %s", app.version, app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	localURL := fmt.Sprintf("http://%s/?token=%s", displayHost(app.config), app.gate.Token())
	tunnelURL := ""
	if app.tunnel != nil {
		tunnelURL = app.tunnel.URL()
	}
	banner.Print(os.Stdout, localURL, tunnelURL)

	return nil
}

// displayHost returns host:port suitable for a browser URL, substituting
// "localhost" for a wildcard bind address.
func displayHost(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("%s:%d", host, cfg.Server.Port)
}

// Run initializes, starts, and blocks until a shutdown signal or explicit
// Stop call, then shuts down gracefully.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case <-ctx.Done():
		log.Printf("Context cancelled, shutting down...")
	case <-app.done:
		log.Printf("Shutdown requested...")
	}

	return app.Shutdown(context.Background())
}

// Shutdown gracefully tears down every component.
func (app *App) Shutdown(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if app.httpServer != nil {
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down HTTP server: %v", err)
		}
	}

	if app.tunnel != nil {
		if err := app.tunnel.Close(); err != nil {
			log.Printf("Error closing tunnel: %v", err)
		}
	}

	if app.hub != nil {
		app.hub.Shutdown()
	}

	if app.schedules != nil {
		app.schedules.Stop()
	}

	if app.prefs != nil {
		app.prefs.Close()
	}

	if app.sessions != nil {
		app.sessions.DestroyAll()
	}

	if app.bus != nil {
		app.bus.Close()
	}

	log.Println("Shutdown complete")
	return nil
}

// Stop signals the app to shut down. Safe to call multiple times.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)
	})
}
