package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/streed/snapnotes/internal/constants"
	"github.com/streed/snapnotes/internal/embeddings"
	"github.com/streed/snapnotes/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search notes by meaning",
	Long: `Search notes by semantic similarity.

  snapnotes search "weekend groceries"           # text query against note text
  snapnotes search --image photo.jpg             # image query against attached images
  snapnotes search --cross-modal "red sunset"    # text query against attached images

Cross-modal search needs the clip image provider. Results are ranked by the
best-matching text or image of each note; the top 3 are shown by default.`,
	RunE: runSearch,
}

var (
	searchLimit      int
	searchImage      string
	searchCrossModal bool
	searchShort      bool
	searchJSON       bool
)

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 0, "Maximum number of results (0 uses the configured result limit)")
	searchCmd.Flags().StringVar(&searchImage, "image", "", "Search with an image instead of text")
	searchCmd.Flags().BoolVarP(&searchCrossModal, "cross-modal", "x", false, "Match the text query against images")
	searchCmd.Flags().BoolVarP(&searchShort, "short", "s", false, "Show only ID and title")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	limit := searchLimit
	if limit <= 0 {
		limit = appConfig.SearchResultLimit
	}

	req := search.Request{Text: query, CrossModal: searchCrossModal, Limit: limit}
	if searchImage != "" {
		req.ImageURI = expandPath(embeddings.ImagePath(searchImage))
	}

	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	notes, err := svc.Search.Search(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(notes)
	}

	if len(notes) == 0 {
		fmt.Println("No matching notes found.")
		return nil
	}
	fmt.Printf("Found %d matching notes:\n\n", len(notes))

	for i, note := range notes {
		if searchShort {
			fmt.Printf("[%s] %s\n", note.ID, note.Title)
			continue
		}
		fmt.Printf("Match %d (similarity %.3f):\n", i+1, *note.Similarity)
		fmt.Printf("ID: %s\n", note.ID)
		fmt.Printf("Title: %s\n", note.Title)
		fmt.Printf("Created: %s\n", formatTime(note.CreatedAt))
		for _, uri := range note.ImageURIs {
			fmt.Printf("Image: %s\n", uri)
		}
		fmt.Printf("Preview: %s\n", note.Preview(constants.PreviewLength))
		fmt.Println(strings.Repeat("-", 60))
	}

	return nil
}
