package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var thresholdCmd = &cobra.Command{
	Use:   "threshold",
	Short: "Show or change a user's verification threshold",
}

var thresholdGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the threshold that applies to a user",
	Args:  cobra.NoArgs,
	RunE:  runThresholdGet,
}

var thresholdSetCmd = &cobra.Command{
	Use:   "set <value>",
	Short: "Store a user's threshold",
	Args:  cobra.ExactArgs(1),
	RunE:  runThresholdSet,
}

func init() {
	rootCmd.AddCommand(thresholdCmd)
	thresholdCmd.AddCommand(thresholdGetCmd)
	thresholdCmd.AddCommand(thresholdSetCmd)

	thresholdCmd.PersistentFlags().String("user", "", "User id")
	_ = thresholdSetCmd.MarkPersistentFlagRequired("user")
}

func runThresholdGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	userID := mustGetString(cmd, "user")

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := a.thresholds.Get(ctx, userID)
	if err != nil {
		return err
	}
	b := a.thresholds.Bounds()
	fmt.Printf("%.2f (default %.2f, allowed %.0f-%.0f)\n", v, a.thresholds.Default(), b.Min, b.Max)
	return nil
}

func runThresholdSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	userID := mustGetString(cmd, "user")

	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid threshold %q: %w", args[0], err)
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.thresholds.Set(ctx, userID, v); err != nil {
		return err
	}
	fmt.Printf("Threshold for %s set to %.2f\n", userID, v)
	return nil
}
