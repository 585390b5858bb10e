package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair notes whose vectors or files are out of sync",
	Long: `Failed note operations queue the note for reconciliation. This command
rebuilds the vectors of queued notes that still exist and removes the vectors
and files of queued notes that were deleted.

Use --list to show the queue without repairing anything.`,
	RunE: runReconcile,
}

var reconcileList bool

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().BoolVar(&reconcileList, "list", false, "Only list queued notes")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	svc, err := openServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if reconcileList {
		tasks, err := svc.Sync.Pending(cmd.Context())
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("Nothing to reconcile.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintf(w, "NOTE ID\tOPERATION\tATTEMPTS\tLAST ERROR\n")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.NoteID, t.Operation, t.Attempts, t.LastError)
		}
		return w.Flush()
	}

	report, err := svc.Sync.Reconcile(cmd.Context())
	fmt.Printf("Processed: %d\n", report.Processed)
	fmt.Printf("Rebuilt:   %d\n", report.Rebuilt)
	fmt.Printf("Purged:    %d\n", report.Purged)
	fmt.Printf("Failed:    %d\n", report.Failed)
	if err != nil {
		return fmt.Errorf("reconciliation incomplete: %w", err)
	}
	return nil
}
