package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/streed/snapnotes/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize snapnotes configuration",
	Long: `Initialize snapnotes configuration interactively or with flags.
This command sets up the configuration file and creates necessary directories.`,
	RunE: runInit,
}

var (
	initDataDir       string
	initTextEndpoint  string
	initImageProvider string
	initInteractive   bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "", "Data directory for the notes database and stored images")
	initCmd.Flags().StringVar(&initTextEndpoint, "text-endpoint", "", "OpenAI-compatible embeddings endpoint (e.g., http://localhost:11434/v1)")
	initCmd.Flags().StringVar(&initImageProvider, "image-provider", "", "Image embedding provider: thumbnail or clip")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Run interactive setup")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Configuration already exists at: %s\n", configPath)
		if !confirm(reader, "Do you want to overwrite it? (y/N): ") {
			fmt.Println("Configuration initialization cancelled.")
			return nil
		}
	}

	if initInteractive || (initDataDir == "" && initTextEndpoint == "" && initImageProvider == "") {
		fmt.Println("=== snapnotes Configuration Setup ===")
		fmt.Println()

		initDataDir = prompt(reader, "Data directory", config.GetDefaultDataDirectory())
		initDataDir = expandPath(initDataDir)
		initTextEndpoint = prompt(reader, "Text embeddings endpoint", "http://localhost:11434/v1")

		fmt.Println("\n--- Image Embeddings ---")
		fmt.Println("  thumbnail  built-in, image-to-image search only")
		fmt.Println("  clip       CLIP server, also enables text-to-image search")
		initImageProvider = prompt(reader, "Image provider", config.ImageProviderThumbnail)
	}

	if initImageProvider != "" && initImageProvider != config.ImageProviderThumbnail && initImageProvider != config.ImageProviderClip {
		return fmt.Errorf("unknown image provider %q (expected %s or %s)",
			initImageProvider, config.ImageProviderThumbnail, config.ImageProviderClip)
	}

	cfg, err := config.InitializeConfig(initDataDir, initTextEndpoint, initImageProvider)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	fmt.Println("\n=== Configuration Summary ===")
	fmt.Printf("Config file:        %s\n", configPath)
	fmt.Printf("Data directory:     %s\n", cfg.DataDirectory)
	fmt.Printf("Database path:      %s\n", cfg.GetDatabasePath())
	fmt.Printf("Text embeddings:    %s %s at %s (%d dims)\n", cfg.TextEmbeddingProvider,
		cfg.TextEmbeddingModel, cfg.TextEmbeddingEndpoint, cfg.TextVectorDimensions)
	fmt.Printf("Image embeddings:   %s\n", cfg.ImageEmbeddingProvider)
	fmt.Printf("Text-to-image:      %v\n", cfg.SupportsCrossModal())
	fmt.Println("SQLite-vec:         Built-in (via Go bindings)")

	fmt.Println("\nConfiguration initialized successfully!")
	fmt.Println("You can now use 'snapnotes' commands to manage your notes.")

	if cfg.ImageEmbeddingProvider == config.ImageProviderClip {
		fmt.Printf("\nMake sure a CLIP embedding server for %s is listening on %s.\n",
			cfg.ImageEmbeddingModel, cfg.ImageEmbeddingEndpoint)
	}

	return nil
}

func prompt(reader *bufio.Reader, label, def string) string {
	fmt.Printf("%s [%s]: ", label, def)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}

func confirm(reader *bufio.Reader, question string) bool {
	fmt.Print(question)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
