package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/config"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Admin API port")
	flag.StringVar(&cfg.Plugins.Manifest, "manifest", cfg.Plugins.Manifest, "Plugin manifest (.json, .yaml or .toml)")
	flag.StringVar(&cfg.Plugins.BaseURL, "base-url", cfg.Plugins.BaseURL, "Base URL or directory of plugin modules")
	flag.Parse()

	srv, err := server.New(cfg, server.Options{})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A failing plugin never keeps the host from serving the others
	if err := srv.StartPlugins(ctx); err != nil {
		srv.Logger().Warn("Some plugins failed to start", zap.Error(err))
	}

	errChan := make(chan error, 1)
	if cfg.Server.APIEnabled {
		go func() {
			errChan <- srv.Run()
		}()
	}

	select {
	case <-ctx.Done():
		log.Println("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
}
