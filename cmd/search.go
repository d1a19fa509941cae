package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the stored faces most similar to the face in an image",
	Example: `  facesearch search --image query.jpg
  facesearch search --image query.jpg --top-k 20 --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("image", "", "Path to the query image (required)")
	searchCmd.Flags().Int("top-k", 0, "Number of results (0 uses SEARCH_DEFAULT_TOP_K)")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
	_ = searchCmd.MarkFlagRequired("image")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	imagePath := mustGetString(cmd, "image")
	topK := mustGetInt(cmd, "top-k")
	jsonOutput := mustGetBool(cmd, "json")

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	hits, err := a.search.SearchImage(ctx, data, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOutput {
		return outputJSON(hits)
	}
	if len(hits) == 0 {
		fmt.Println("No similar faces found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSCORE\tFACE\tLABEL\tIMAGE")
	for i, h := range hits {
		fmt.Fprintf(w, "%d\t%.2f\t%s\t%s\t%s\n", i+1, h.Score, h.FaceID, h.Label, h.ImageID)
	}
	return w.Flush()
}
