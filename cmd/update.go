package cmd

import (
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/streed/snapnotes/internal/models"
)

var updateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update a note",
	Long: `Change a note's title, content or images and rebuild its vectors.

Examples:
  snapnotes update <id> --title "New title"
  snapnotes update <id> --content "New content"
  snapnotes update <id> --add-image photo.jpg
  snapnotes update <id> --remove-image 2          # by position, see 'snapnotes get'
  snapnotes update <id> --remove-image /path/to/image.jpg

Removed images that were stored by snapnotes are deleted from disk.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

var (
	updateTitle        string
	updateContent      string
	updateAddImages    []string
	updateRemoveImages []string
	updateMove         bool
)

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringVarP(&updateTitle, "title", "t", "", "New title")
	updateCmd.Flags().StringVarP(&updateContent, "content", "c", "", "New content (use - to read stdin)")
	updateCmd.Flags().StringSliceVar(&updateAddImages, "add-image", nil, "Image file to attach (repeatable)")
	updateCmd.Flags().StringSliceVar(&updateRemoveImages, "remove-image", nil, "Image position or path to detach (repeatable)")
	updateCmd.Flags().BoolVar(&updateMove, "move", false, "Move added image files instead of copying them")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !flags.Changed("title") && !flags.Changed("content") && len(updateAddImages) == 0 && len(updateRemoveImages) == 0 {
		return fmt.Errorf("nothing to update: use --title, --content, --add-image or --remove-image")
	}

	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()
	ctx := cmd.Context()

	note, err := svc.Notes.GetByID(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get note: %w", err)
	}

	data := note.Data()
	if flags.Changed("title") {
		data.Title = updateTitle
	}
	if flags.Changed("content") {
		data.Content = updateContent
		if updateContent == "-" {
			data.Content = readStdin()
		}
	}
	data.ImageURIs, err = removeImages(data.ImageURIs, updateRemoveImages)
	if err != nil {
		return err
	}

	var updated *models.Note
	if len(updateAddImages) > 0 {
		updated, err = attachImages(ctx, svc, note.ID, data, updateAddImages, updateMove)
		if err != nil {
			return err
		}
	} else {
		updated, err = svc.Sync.UpdateNote(ctx, note.ID, data)
		if err != nil {
			if updated == nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Warning: note saved but not fully indexed (queued for 'snapnotes reconcile'): %v\n", err)
		}
	}

	fmt.Printf("Note updated successfully!\n")
	printNoteHeader(updated)
	return nil
}

// removeImages drops the images selected by 1-based position or exact URI.
func removeImages(uris []string, selectors []string) ([]string, error) {
	if len(selectors) == 0 {
		return uris, nil
	}
	drop := make(map[int]bool, len(selectors))
	for _, sel := range selectors {
		if pos, err := strconv.Atoi(sel); err == nil {
			if pos < 1 || pos > len(uris) {
				return nil, fmt.Errorf("image position %d out of range (note has %d images)", pos, len(uris))
			}
			drop[pos-1] = true
			continue
		}
		i := slices.Index(uris, sel)
		if i < 0 {
			return nil, fmt.Errorf("note has no image %s", sel)
		}
		drop[i] = true
	}

	kept := make([]string, 0, len(uris))
	for i, uri := range uris {
		if !drop[i] {
			kept = append(kept, uri)
		}
	}
	return kept, nil
}
