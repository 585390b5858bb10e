package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/streed/snapnotes/internal/config"
	"github.com/streed/snapnotes/internal/logger"
	"github.com/streed/snapnotes/internal/services"
)

var (
	appConfig *config.Config
	debugFlag bool
	envFile   string
	Version   = "dev" // Version is set from main.go
)

var rootCmd = &cobra.Command{
	Use:     "snapnotes",
	Short:   "Notes with semantic text and image search",
	Version: Version,
	Long: `snapnotes stores notes with attached images and finds them by meaning:
text queries match note text, image queries match attached images, and with a
CLIP model configured text queries can match images directly.

First time users should run 'snapnotes init' to set up the configuration.`,
	SilenceUsage: true,
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.Version = Version
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initAppConfig)
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file with SNAPNOTES_* overrides")
}

func initAppConfig() {
	loadEnvFile()

	// Skip initialization for init and config commands
	if len(os.Args) > 1 && (os.Args[1] == "init" || os.Args[1] == "config") {
		return
	}

	var err error
	appConfig, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		fmt.Fprintf(os.Stderr, "Please run 'snapnotes init' to set up the configuration.\n")
		os.Exit(1)
	}

	// Enable debug mode from flag or config
	if debugFlag || appConfig.Debug {
		logger.SetDebugMode(true)
		logger.Debug("Configuration loaded from: %s", func() string {
			path, _ := config.GetConfigPath()
			return path
		}())
		logger.Debug("Data directory: %s", appConfig.DataDirectory)
		logger.Debug("Text embeddings: %s %s (%d dims)", appConfig.TextEmbeddingProvider,
			appConfig.TextEmbeddingModel, appConfig.TextVectorDimensions)
		logger.Debug("Image embeddings: %s %s", appConfig.ImageEmbeddingProvider, appConfig.ImageEmbeddingModel)
	}

	checkReindex()
}

func loadEnvFile() {
	if envFile == "" {
		return
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to load %s: %v", envFile, err)
	}
}

func checkReindex() {
	if appConfig.VectorConfigVersion != "" && appConfig.NeedsReindex(appConfig.VectorConfigVersion) {
		logger.Info("Embedding configuration has changed. Reindexing is recommended.")
		logger.Info("Run 'snapnotes reindex' to update all embeddings.")
	}
}

// openServices opens the database and loads every index and provider.
func openServices(cmd *cobra.Command) (*services.Services, error) {
	svc, err := services.Open(cmd.Context(), appConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return svc, nil
}
