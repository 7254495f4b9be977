package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/app"
	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Covera version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Startup order: config (defaults -> files -> env), CLI overrides, logger, banner
	if len(configFiles) == 0 {
		if _, err := os.Stat("covera.toml"); err == nil {
			configFiles = append(configFiles, "covera.toml")
		} else if _, err := os.Stat("deployments/local/covera.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/covera.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, finalPort, *serverHost)

	logger := common.InitLogger(config)
	common.InstallCrashHandler(common.LogDirectory())
	common.PrintBanner(config)

	logger.Debug().
		Str("storage_type", config.Storage.Type).
		Str("classifier", config.Classifier.Provider).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Bool("scheduler_enabled", config.Scheduler.Enabled).
		Msg("Resolved configuration (sanitized)")

	logger.Info().
		Strs("config_files", configFiles).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Msg("Application configuration loaded")

	application, err := app.New(context.Background(), config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	srv := server.New(application)
	if err := srv.Listen(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to bind HTTP server")
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	common.SafeGo(logger, "http-server", func() {
		serverErr <- srv.Serve()
	}, nil)

	logger.Info().
		Str("url", srv.URL()).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("Server failed")
			exitCode = 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	// Stops the scheduler, then cancels and waits for running jobs
	if err := application.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("Application shutdown incomplete")
		exitCode = 1
	}

	logger.Info().Msg("Server stopped")
	os.Exit(exitCode)
}
