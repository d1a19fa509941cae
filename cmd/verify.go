package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <query> <candidate>",
	Short: "Decide whether two images show the same person",
	Long: `Extract the most confident face of each image and compare the two.
Without --threshold the user's stored threshold applies, or the default.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Float64("threshold", 0, "Similarity threshold in [0, 100]")
	verifyCmd.Flags().String("user", "", "User whose stored threshold applies")
	verifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	userID := mustGetString(cmd, "user")
	jsonOutput := mustGetBool(cmd, "json")

	var threshold *float64
	if cmd.Flags().Changed("threshold") {
		v := mustGetFloat64(cmd, "threshold")
		threshold = &v
	}

	query, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading query image: %w", err)
	}
	candidate, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading candidate image: %w", err)
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.verifier.VerifyImages(ctx, userID, query, candidate, threshold)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	if jsonOutput {
		return outputJSON(res)
	}
	fmt.Printf("%s (similarity %.2f, threshold %.2f)\n", res.MatchStatus, res.SimilarityScore, res.ThresholdUsed)
	return nil
}
