// Package main provides the entry point for the hospigeo service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/hospigeo/internal/app"
	"github.com/jobrunner/hospigeo/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hospigeo",
	Short: "hospigeo - search index lifecycle and boundary service",
	Long: `hospigeo maintains the search indices and administrative boundaries
behind the hospital and pharmacy locator.

Features:
  - Zero-downtime blue-green reindexing behind stable aliases
  - Boundary geometry repair for spherical spatial indexes
  - Point-in-polygon and viewport boundary lookups
  - Boundary dataset import from local, AWS S3, Azure or HTTP storage
  - Elasticsearch or embedded bleve search backends
  - TLS with automatic certificate management
  - Prometheus metrics`,
	RunE: runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("hospigeo %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")
	flags.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	flags.String("mongo-database", "hospital", "MongoDB database")
	flags.String("search-engine", config.EngineElasticsearch, "search engine (elasticsearch, bleve)")
	flags.StringSlice("es-addresses", nil, "Elasticsearch addresses")
	flags.String("bleve-path", "", "bleve index directory (empty keeps indices in memory)")

	// Server flags
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().String("host", "0.0.0.0", "server host")
		cmd.Flags().Int("port", 8080, "server port")
		cmd.Flags().Bool("tls", false, "enable TLS")
		cmd.Flags().StringSlice("tls-domains", nil, "TLS domains")
		cmd.Flags().String("tls-email", "", "TLS email for Let's Encrypt")
		cmd.Flags().String("storage-type", "none", "dataset storage type (none, local, s3, azure, http)")
		cmd.Flags().String("storage-path", "./datasets", "local dataset storage path")
		cmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")
	}

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("mongo.uri", flags.Lookup("mongo-uri"))
	_ = viper.BindPFlag("mongo.database", flags.Lookup("mongo-database"))
	_ = viper.BindPFlag("search.engine", flags.Lookup("search-engine"))
	_ = viper.BindPFlag("search.elasticsearch.addresses", flags.Lookup("es-addresses"))
	_ = viper.BindPFlag("search.bleve.path", flags.Lookup("bleve-path"))

	rootCmd.AddCommand(serveCmd, versionCmd, reindexCmd, repairCmd, geoIndexCmd)
}

// bindServerFlags binds the flags of the command actually running, since
// root and serve declare the same set.
func bindServerFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("tls.enabled", cmd.Flags().Lookup("tls"))
	_ = viper.BindPFlag("tls.domains", cmd.Flags().Lookup("tls-domains"))
	_ = viper.BindPFlag("tls.email", cmd.Flags().Lookup("tls-email"))
	_ = viper.BindPFlag("storage.type", cmd.Flags().Lookup("storage-type"))
	_ = viper.BindPFlag("storage.local_path", cmd.Flags().Lookup("storage-path"))
	_ = viper.BindPFlag("server.cors.allowed_origins", cmd.Flags().Lookup("cors"))
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runServer(cmd *cobra.Command, _ []string) error {
	bindServerFlags(cmd)

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("starting hospigeo",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"search_engine", cfg.Search.Engine,
		"storage_type", cfg.Storage.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize application
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	// Start server in background
	serverErr := make(chan error, 1)
	go func() {
		if err := application.Start(ctx); err != nil {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}

	// Background loops exit on cancel before components are stopped
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
