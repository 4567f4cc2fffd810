// Command yieldengine is the backend entry point for the yield distribution
// engine. It loads configuration, validates it, wires dependencies, sets up
// signal handling, and starts the application in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/yieldengine/internal/app"
	"github.com/alanyoungcy/yieldengine/internal/config"
	"github.com/alanyoungcy/yieldengine/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (full, server, scheduler, run, preview)")
	encryptOut := flag.String("encrypt-key", "", "encrypt treasury.private_key with treasury.key_password into this file and exit")
	flag.Parse()

	// Logs go to stderr so preview and run output on stdout stays clean JSON.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	if *encryptOut != "" {
		if err := writeEncryptedKey(*encryptOut, cfg.Treasury.PrivateKey, cfg.Treasury.KeyPassword); err != nil {
			logger.Error("failed to encrypt treasury key", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("encrypted treasury key written", slog.String("path", *encryptOut))
		return
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("yield engine starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)
	logger.Debug("effective configuration", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = application.Run(ctx)
	stop()
	application.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	logger.Info("yield engine stopped")
}

// writeEncryptedKey stores the raw key in the file format LoadTxSigner reads
// from treasury.encrypted_key_path.
func writeEncryptedKey(path, privateKey, password string) error {
	if privateKey == "" {
		return errors.New("treasury.private_key is empty")
	}
	blob, err := crypto.EncryptKey(privateKey, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
