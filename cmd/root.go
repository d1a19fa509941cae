package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/facesearch/internal/config"
	"github.com/kozaktomas/facesearch/internal/logging"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "facesearch",
	Short: "Face embedding index with similarity search and verification",
	Long: `facesearch keeps an index of face embeddings computed by an external
extractor service. It answers "who looks like this face" queries over the
index and decides whether two faces belong to the same person.

Run "facesearch serve" for the HTTP API or use the commands below directly.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error), overrides LOG_LEVEL")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	cfg := config.Load()
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := logging.Setup(level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}
