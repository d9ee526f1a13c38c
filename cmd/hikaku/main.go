// Package main is the Hikaku CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hyperjump/hikaku/internal/config"
	"github.com/hyperjump/hikaku/internal/embedding"
	"github.com/hyperjump/hikaku/internal/model"
	"github.com/hyperjump/hikaku/internal/server"
	"github.com/hyperjump/hikaku/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/hikaku/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if neither file
// exists the built-in defaults are used, so the service runs with no config
// surface at all. An explicit -config path must exist.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); statErr != nil {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve":
		runServe()
	case "download":
		runDownload()
	case "version", "--version", "-v":
		fmt.Printf("hikaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("model", cfg.Model.Name),
		zap.Bool("debug", debugMode))

	// Model resolution: local cache first, remote fetch as fallback, fail
	// loud. The server must not come up without a loaded model.
	prov := model.NewProvisioner(&cfg.Model, logger)
	modelDir, err := prov.EnsureAvailable(context.Background())
	if err != nil {
		logger.Fatal("Failed to provision model", zap.Error(err))
	}

	tokenizer, err := embedding.NewWordPieceTokenizer(filepath.Join(modelDir, model.VocabFile))
	if err != nil {
		logger.Fatal("Failed to load tokenizer", zap.Error(err))
	}
	embedder, err := embedding.NewONNXEmbedder(
		filepath.Join(modelDir, model.ModelFile),
		tokenizer,
		cfg.Model.Dimensions,
		cfg.Model.MaxTokens,
		cfg.Model.CacheSize,
	)
	if err != nil {
		logger.Fatal("Failed to load model", zap.Error(err))
	}
	defer embedder.Close()
	logger.Info("model loaded",
		zap.String("path", modelDir),
		zap.Int("dimensions", embedder.Dimensions()))

	srv := server.NewServer(embedder, cfg.Model.Name, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runDownload() {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	yes := fs.Bool("yes", false, "re-download without prompting")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	prov := model.NewProvisioner(&cfg.Model, logger)
	fmt.Printf("Downloading model: %s\n", cfg.Model.RegistryID())
	fmt.Printf("Target directory: %s\n", prov.LocalPath())

	if prov.IsComplete() && !*yes {
		if !model.ConfirmRedownload(os.Stdin, os.Stdout, prov.LocalPath()) {
			fmt.Println("Skipping download.")
			return
		}
	}

	if err := prov.Download(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Download failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Model downloaded and saved successfully!")
	fmt.Printf("Model location: %s\n", prov.LocalPath())
}

func printUsage() {
	fmt.Println(`hikaku - semantic distance service

Usage:
  hikaku serve [flags]      Start the HTTP server
  hikaku download [flags]   Download the embedding model into the local cache
  hikaku version            Show version
  hikaku help               Show this help

Serve Flags:
  --config string    Config file path (default: /usr/local/etc/hikaku/config.yaml)
  --debug            Enable debug logging

Download Flags:
  --config string    Config file path
  --yes              Re-download without prompting when a local copy exists

Endpoints:
  POST /calculate-distances   {"spec": "...", "candidates": ["...", ...]}
                              -> {"distances": [d0, d1, ...]}
  GET  /health                -> {"status": "healthy", "model": "..."}

Examples:
  hikaku download
  hikaku serve
  curl -s -X POST localhost:6868/calculate-distances \
    -H 'Content-Type: application/json' \
    -d '{"spec": "hello world", "candidates": ["hello world", "goodbye"]}'`)
}
