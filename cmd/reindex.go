package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/streed/snapnotes/internal/config"
	"github.com/streed/snapnotes/internal/logger"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vectors of every note",
	Long: `Rebuild the text and image vectors of every note with the current embedding
configuration, and drop vectors left behind by deleted notes.
This is necessary after changing an embedding provider, model or dimensions.`,
	RunE: runReindex,
}

var forceReindex bool

func init() {
	rootCmd.AddCommand(reindexCmd)
	reindexCmd.Flags().BoolVarP(&forceReindex, "force", "f", false, "Force reindex even if configuration hasn't changed")
}

func runReindex(cmd *cobra.Command, args []string) error {
	currentHash := appConfig.GetVectorConfigHash()
	if !forceReindex && appConfig.VectorConfigVersion == currentHash {
		fmt.Println("Embedding configuration hasn't changed. Use --force to reindex anyway.")
		return nil
	}

	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Printf("Reindexing notes with:\n")
	fmt.Printf("  Text:  %s (%d dims)\n", svc.TextEmbedder.Name(), svc.TextEmbedder.Dimensions())
	fmt.Printf("  Image: %s (%d dims)\n", svc.ImageEmbedder.Name(), svc.ImageEmbedder.Dimensions())
	fmt.Println()

	total, err := svc.Notes.Count(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to count notes: %w", err)
	}
	rebuilt, err := svc.Sync.Reindex(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Some notes failed to reindex and were queued for 'snapnotes reconcile':\n%v\n", err)
	}
	fmt.Printf("\nReindexing complete: %d/%d notes successfully reindexed.\n", rebuilt, total)
	if err != nil {
		return nil
	}

	appConfig.VectorConfigVersion = currentHash
	if err := config.Save(appConfig); err != nil {
		logger.Error("Failed to update configuration: %v", err)
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	return nil
}
