package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get a note by ID",
	Long:  `Display the full content and attached images of a note by its ID.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	note, err := svc.Notes.GetByID(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get note: %w", err)
	}

	fmt.Printf("================================================================================\n")
	fmt.Printf("ID: %s\n", note.ID)
	fmt.Printf("Title: %s\n", note.Title)
	fmt.Printf("Created: %s\n", note.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated: %s\n", note.UpdatedAt.Format("2006-01-02 15:04:05"))
	for i, uri := range note.ImageURIs {
		fmt.Printf("Image %d: %s\n", i+1, uri)
	}
	fmt.Printf("================================================================================\n\n")

	fmt.Println(note.Content)
	fmt.Println()

	return nil
}
