package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the face index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the face index from the embedding store",
	Long: `Reload every stored embedding, build a fresh index snapshot and persist
it to INDEX_DIR. Rows with a wrong dimension or a zero vector are skipped.`,
	RunE: runIndexRebuild,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted face index",
	RunE:  runIndexStatus,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexStatusCmd)

	indexRebuildCmd.Flags().Bool("json", false, "Output as JSON")
	indexStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

type rebuildOutput struct {
	Rows       int    `json:"rows"`
	Skipped    int    `json:"skipped"`
	DurationMs int64  `json:"duration_ms"`
	Persisted  bool   `json:"persisted"`
	Generation string `json:"generation,omitempty"`
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.index.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	if err := a.index.Persist(); err != nil {
		return fmt.Errorf("persisting index: %w", err)
	}

	out := rebuildOutput{
		Rows:       stats.Rows,
		Skipped:    stats.Skipped,
		DurationMs: stats.Duration.Milliseconds(),
		Persisted:  a.cfg.Index.Dir != "",
		Generation: a.index.Status().Generation,
	}
	if jsonOutput {
		return outputJSON(out)
	}

	fmt.Printf("Indexed %d faces in %s", out.Rows, stats.Duration.Round(time.Millisecond))
	if out.Skipped > 0 {
		fmt.Printf(" (%d skipped)", out.Skipped)
	}
	fmt.Println()
	if out.Persisted {
		fmt.Printf("Saved to %s\n", a.cfg.Index.Dir)
	}
	return nil
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	st := a.index.Status()
	if jsonOutput {
		return outputJSON(st)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Kind:\t%s\n", st.Kind)
	fmt.Fprintf(w, "Dimension:\t%d\n", st.Dim)
	fmt.Fprintf(w, "Rows:\t%d\n", st.Rows)
	if st.Kind == "hnsw" {
		fmt.Fprintf(w, "Graph rows:\t%d\n", st.GraphRows)
	}
	fmt.Fprintf(w, "Generation:\t%s\n", st.Generation)
	if !st.BuiltAt.IsZero() {
		fmt.Fprintf(w, "Built at:\t%s\n", st.BuiltAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Loaded from disk:\t%t\n", st.FromDisk)
	if st.LastRebuildSkipped > 0 {
		fmt.Fprintf(w, "Skipped rows:\t%d\n", st.LastRebuildSkipped)
	}
	return w.Flush()
}
