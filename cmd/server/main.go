package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flags := pflag.NewFlagSet("shell", pflag.ExitOnError)
	flags.StringVarP(&cfg.Server.Port, "port", "p", cfg.Server.Port, "HTTP control API port")
	flags.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "HTTP control API host")
	flags.StringVarP(&cfg.Gateway.ManifestPath, "channels", "c", cfg.Gateway.ManifestPath, "channel manifest (YAML)")
	flags.BoolVar(&cfg.Gateway.Strict, "strict", cfg.Gateway.Strict, "reject payloads that violate channel schemas")
	flags.StringVarP(&cfg.Workers.Manifest, "workers", "w", cfg.Workers.Manifest, "worker manifest (YAML)")
	flags.StringVar(&cfg.Workers.BaseDir, "base-dir", cfg.Workers.BaseDir, "directory for relative worker sources")
	flags.StringVar(&cfg.WindowState.Path, "window-state", cfg.WindowState.Path, "window state file (TOML)")
	flags.DurationVar(&cfg.Bus.RequestTimeout, "request-timeout", cfg.Bus.RequestTimeout, "default bus request timeout")
	flags.DurationVar(&cfg.Workers.LoadTimeout, "load-timeout", cfg.Workers.LoadTimeout, "time a worker has to signal ready")
	flags.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "debug, info, warn or error")
	flags.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "development logging")
	_ = flags.Parse(os.Args[1:])

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config) error {
	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	if err := srv.StartWorkers(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return fmt.Errorf("failed to start workers: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Println("Shutting down gracefully...")
	case runErr = <-errChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	return runErr
}
