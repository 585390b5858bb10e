package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/streed/snapnotes/internal/embeddings"
	"github.com/streed/snapnotes/internal/logger"
	"github.com/streed/snapnotes/internal/models"
	"github.com/streed/snapnotes/internal/services"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new note",
	Long: `Add a new note with a title, content and optional images.

Content can be provided in two ways:
1. Via --content flag: snapnotes add -t "Title" -c "Content"
2. Via stdin: echo "Content" | snapnotes add -t "Title"

Images given with --image are copied into the note's directory (or moved with
--move) and indexed for image search.`,
	RunE: runAdd,
}

var (
	title     string
	content   string
	images    []string
	moveFiles bool
)

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVarP(&title, "title", "t", "", "Note title (required)")
	addCmd.Flags().StringVarP(&content, "content", "c", "", "Note content")
	addCmd.Flags().StringSliceVarP(&images, "image", "i", nil, "Image file to attach (repeatable)")
	addCmd.Flags().BoolVar(&moveFiles, "move", false, "Move image files instead of copying them")
	_ = addCmd.MarkFlagRequired("title")
}

func runAdd(cmd *cobra.Command, args []string) error {
	if content == "" && isPiped() {
		content = readStdin()
	}

	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()
	ctx := cmd.Context()

	note, err := svc.Sync.CreateNote(ctx, models.NoteData{Title: title, Content: content})
	if err != nil {
		if note == nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Warning: note saved but not fully indexed (queued for 'snapnotes reconcile'): %v\n", err)
	}

	if len(images) > 0 {
		note, err = attachImages(ctx, svc, note.ID, note.Data(), images, moveFiles)
		if err != nil {
			return err
		}
	}

	fmt.Printf("Note created successfully!\n")
	printNoteHeader(note)
	return nil
}

// attachImages stores files under the note's directory and saves data with
// them appended to its image list, reindexing the note once.
func attachImages(ctx context.Context, svc *services.Services, noteID string, data models.NoteData, files []string, move bool) (*models.Note, error) {
	data.ImageURIs = slices.Clone(data.ImageURIs)
	for _, f := range files {
		path := expandPath(embeddings.ImagePath(f))
		managed, err := svc.Files.AddImage(ctx, noteID, path, move)
		if err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", f, err)
		}
		logger.Debug("Attached %s as %s", f, managed)
		data.ImageURIs = append(data.ImageURIs, managed)
	}

	updated, err := svc.Sync.UpdateNote(ctx, noteID, data)
	if err != nil {
		if updated == nil {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Warning: images attached but not fully indexed (queued for 'snapnotes reconcile'): %v\n", err)
	}
	return updated, nil
}

func isPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func readStdin() string {
	scanner := bufio.NewScanner(os.Stdin)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return strings.Join(lines, "\n")
}

func printNoteHeader(note *models.Note) {
	fmt.Printf("ID: %s\n", note.ID)
	fmt.Printf("Title: %s\n", note.Title)
	if len(note.ImageURIs) > 0 {
		fmt.Printf("Images: %d\n", len(note.ImageURIs))
	}
	fmt.Printf("Created: %s\n", note.CreatedAt.Format("2006-01-02 15:04:05"))
}
