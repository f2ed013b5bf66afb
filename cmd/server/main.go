// Package main is the entry point for the SyncWatch server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/syncwatch/backend/internal/api"
	"github.com/syncwatch/backend/internal/config"
	"github.com/syncwatch/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// Options are the command-line flags.
type Options struct {
	Config      string `long:"config" short:"c" env:"SYNCWATCH_CONFIG" default:"./config.yaml" description:"Path to the YAML configuration file"`
	Listen      string `long:"listen" description:"HTTP listen address, overrides the config file"`
	Once        bool   `long:"once" description:"Run a single sweep and exit"`
	HealthCheck bool   `long:"health-check" description:"Probe a running server and exit"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if opts.HealthCheck {
		if err := runHealthCheck(healthCheckAddr(opts)); err != nil {
			log.WithError(err).Error("health check failed")
			os.Exit(1)
		}
		return
	}

	if err := run(opts, log); err != nil {
		log.WithError(err).Fatal("syncwatch stopped")
	}
}

func run(opts Options, log *logrus.Logger) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if err := configureLogger(log, cfg.Log); err != nil {
		return err
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}
	log.WithFields(logrus.Fields{
		"version":    version,
		"properties": len(cfg.Properties),
		"snapshot":   cfg.Snapshot.Driver,
		"mirror":     cfg.Mirror.Enabled,
	}).Info("starting SyncWatch")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %q: %w", cfg.OutputDir, err)
	}

	hub := websocket.NewHub(log)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	app, err := build(ctx, cfg, hub, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if opts.Once {
		results := app.scheduler.RunOnce(ctx)
		for _, r := range results {
			if r.Error != nil {
				return fmt.Errorf("sweep finished with failures: %s: %w", r.PropertyName, r.Error)
			}
		}
		return nil
	}

	router := api.NewRouter(api.Deps{
		Store:     app.store,
		Alerts:    app.alertLog,
		Sweeps:    app.scheduler,
		Hub:       hub,
		OutputDir: cfg.OutputDir,
		Log:       log,
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Listen).Info("status server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		app.scheduler.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serverErr:
		stop()
		<-schedulerDone
		return fmt.Errorf("status server: %w", err)
	}

	// The in-flight cycle sees the cancelled context and returns without persisting.
	<-schedulerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}

	log.Info("SyncWatch stopped")
	return nil
}

func configureLogger(log *logrus.Logger, cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

// healthCheckAddr resolves the address to check: --listen, then the config
// file, then the default port.
func healthCheckAddr(opts Options) string {
	if opts.Listen != "" {
		return opts.Listen
	}
	if cfg, err := config.Load(opts.Config); err == nil {
		return cfg.Listen
	}
	return ":8080"
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("parsing listen address %q: %w", addr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + net.JoinHostPort(host, port) + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
