package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/streed/snapnotes/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage snapnotes configuration",
	Long:  `View and manage snapnotes configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value.

Available keys:
  ` + strings.Join(config.Keys, "\n  ") + `

Changing a provider, model or dimension key requires 'snapnotes reindex'.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	fmt.Println("=== snapnotes Configuration ===")
	fmt.Printf("%-18s %s\n", "config-file:", configPath)
	fmt.Printf("%-18s %s\n", "database:", cfg.GetDatabasePath())
	for _, key := range config.Keys {
		value, err := cfg.Get(key)
		if err != nil {
			return err
		}
		fmt.Printf("%-18s %s\n", key+":", value)
	}
	fmt.Printf("%-18s %v\n", "text-to-image:", cfg.SupportsCrossModal())

	if cfg.VectorConfigVersion != "" && cfg.NeedsReindex(cfg.VectorConfigVersion) {
		fmt.Println("\nEmbedding configuration changed since the last index build. Run 'snapnotes reindex'.")
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	fmt.Println(configPath)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if key == "data-dir" {
		value = expandPath(value)
	}
	needsReindex, err := cfg.Set(key, value)
	if err != nil {
		return err
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	shown, _ := cfg.Get(key)
	fmt.Printf("Configuration updated: %s = %s\n", key, shown)
	if needsReindex {
		fmt.Println("\nEmbedding configuration changed. Run 'snapnotes reindex' to rebuild the vectors.")
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	value, err := cfg.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}
