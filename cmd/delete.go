package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	interrors "github.com/streed/snapnotes/internal/errors"
	"github.com/streed/snapnotes/internal/logger"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [note IDs...]",
	Short: "Delete one or more notes",
	Long: `Delete notes by their IDs, together with their vectors and stored images.

By default, you will be prompted for confirmation before deletion.
Use --force to skip the confirmation prompt.`,
	Args:    cobra.MinimumNArgs(1),
	Aliases: []string{"rm", "remove"},
	RunE:    runDelete,
}

var forceDelete bool

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&forceDelete, "force", "f", false, "Skip confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()
	ctx := cmd.Context()

	// Get notes to display what will be deleted
	var ids []string
	titles := make(map[string]string)
	for _, id := range args {
		note, err := svc.Notes.GetByID(ctx, id)
		if err != nil {
			logger.Error("Note with ID %s not found: %v", id, err)
			fmt.Printf("Warning: Note with ID %s not found\n", id)
			continue
		}
		ids = append(ids, id)
		titles[id] = note.Title
	}

	if len(ids) == 0 {
		fmt.Println("No valid notes to delete.")
		return nil
	}

	fmt.Println("The following notes will be deleted:")
	fmt.Println(strings.Repeat("-", 60))
	for _, id := range ids {
		fmt.Printf("  [%s] %s\n", id, titles[id])
	}
	fmt.Println(strings.Repeat("-", 60))

	if !forceDelete && !confirmDeletion(len(ids)) {
		fmt.Println("Deletion cancelled.")
		return nil
	}

	successCount := 0
	failCount := 0
	for _, id := range ids {
		err := svc.Sync.DeleteNote(ctx, id)
		if err == nil {
			fmt.Printf("✓ Deleted note %s: %s\n", id, titles[id])
			successCount++
			continue
		}
		if exists, xerr := svc.Notes.Exists(ctx, id); xerr == nil && !exists && !errors.Is(err, interrors.ErrNoteNotFound) {
			fmt.Printf("✓ Deleted note %s: %s (cleanup queued for 'snapnotes reconcile': %v)\n", id, titles[id], err)
			successCount++
			continue
		}
		logger.Error("Failed to delete note %s: %v", id, err)
		fmt.Printf("✗ Failed to delete note %s: %v\n", id, err)
		failCount++
	}

	fmt.Println(strings.Repeat("=", 60))
	if failCount == 0 {
		fmt.Printf("Successfully deleted %d note(s).\n", successCount)
	} else {
		fmt.Printf("Deleted %d note(s), failed to delete %d note(s).\n", successCount, failCount)
	}

	return nil
}

func confirmDeletion(count int) bool {
	var prompt string
	if count == 1 {
		prompt = "Are you sure you want to delete this note? (y/N): "
	} else {
		prompt = fmt.Sprintf("Are you sure you want to delete %d notes? (y/N): ", count)
	}

	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))

	return response == "y" || response == "yes"
}
