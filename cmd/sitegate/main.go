// Package main is the entry point for the sitegate service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags.logLevel, flags.logFormat, "")
	cfg := loadAndValidateConfig(flags.configPath, logger)

	// Logging settings in the file win over the flags.
	if cfg.Logging.Level != "" || cfg.Logging.Format != "" || cfg.Logging.Output != "" {
		_ = logger.Sync()
		logger = initLogger(
			firstNonEmpty(cfg.Logging.Level, flags.logLevel),
			firstNonEmpty(cfg.Logging.Format, flags.logFormat),
			cfg.Logging.Output,
		)
	}
	defer func() { _ = logger.Sync() }()

	app, err := initApplication(cfg, logger)
	if err != nil {
		fatalWithSync(logger, "failed to initialize application", observability.Error(err))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.run(ctx); err != nil {
		fatalWithSync(logger, "server stopped with error", observability.Error(err))
	}
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("SITEGATE_CONFIG_PATH", "configs/sitegate.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("SITEGATE_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("SITEGATE_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("sitegate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the global logger.
func initLogger(level, format, output string) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:   level,
		Format:  format,
		Output:  output,
		Service: "sitegate",
		Version: version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting sitegate",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatalWithSync(logger, "failed to load configuration", observability.Error(err))
		return nil
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fatalWithSync(logger, "invalid configuration", observability.Error(err))
		return nil
	}

	logger.Info("configuration loaded",
		observability.String("environment", cfg.Environment),
		observability.Int("tenants", len(cfg.Tenants)),
		observability.Int("api_keys", len(cfg.APIKeys)),
		observability.Bool("redis", cfg.Redis.Enabled()),
	)

	return cfg
}

// fatalWithSync flushes the logger before exiting.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	_ = logger.Sync()
	logger.Fatal(msg, fields...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
