package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show note, index and queue statistics",
	RunE:  runStats,
}

var statsMetrics bool

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsMetrics, "metrics", false, "Also print the metrics collected while loading")
}

func runStats(cmd *cobra.Command, args []string) error {
	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()
	ctx := cmd.Context()

	count, err := svc.Notes.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count notes: %w", err)
	}
	pending, err := svc.Sync.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to read reconcile queue: %w", err)
	}

	fmt.Printf("Database:          %s\n", svc.DB.Path())
	if v := svc.DB.VecVersion(); v != "" {
		fmt.Printf("sqlite-vec:        %s\n", v)
	}
	fmt.Printf("Notes:             %d\n", count)
	fmt.Printf("Pending reconcile: %d\n", len(pending))
	fmt.Printf("Text-to-image:     %v\n\n", svc.Search.SupportsCrossModal())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "INDEX\tRECORDS\tNOTES\tDIMENSIONS\tSTALE\n")
	for _, st := range svc.IndexStats() {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", st.Name, st.Records, st.Notes, st.Dimensions, st.Stale)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !statsMetrics {
		return nil
	}
	samples, err := svc.Metrics.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	fmt.Println()
	for _, s := range samples {
		if s.Labels != "" {
			fmt.Printf("%s{%s} %g\n", s.Name, s.Labels, s.Value)
			continue
		}
		fmt.Printf("%s %g\n", s.Name, s.Value)
	}
	return nil
}
