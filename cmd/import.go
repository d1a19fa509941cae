package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/facesearch/internal/facematch"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Ingest every image in a directory",
	Long: `Walk a directory, send each image to the extractor and store the image
document and its face embeddings under the given user. The index is rebuilt
and persisted once all images are processed.`,
	Example: `  facesearch import ./photos --user alice
  facesearch import ./photos --user alice --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("user", "", "Owner of the imported images (required)")
	importCmd.Flags().Int("concurrency", 4, "Number of images processed in parallel")
	importCmd.Flags().Bool("no-rebuild", false, "Skip the index rebuild after import")
	_ = importCmd.MarkFlagRequired("user")
}

var importExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff"}

// collectImages lists the image files under dir in lexical order.
func collectImages(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if slices.Contains(importExtensions, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return files, nil
}

// imageIngester stores one image and its faces.
type imageIngester interface {
	Ingest(ctx context.Context, userID, fileName string, image []byte) (*facematch.IngestResult, error)
}

// importFile ingests one file and returns the number of stored faces. Failures are
// logged with their cause.
func importFile(ctx context.Context, ing imageIngester, userID, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Import: cannot read file")
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	res, err := ing.Ingest(ctx, userID, filepath.Base(path), data)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Import: ingest failed")
		return 0, err
	}
	return res.Stored, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	userID := strings.TrimSpace(mustGetString(cmd, "user"))
	concurrency := mustGetInt(cmd, "concurrency")
	noRebuild := mustGetBool(cmd, "no-rebuild")

	if userID == "" {
		return fmt.Errorf("--user must not be empty")
	}
	if concurrency < 1 {
		concurrency = 1
	}

	files, err := collectImages(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Images to import: %d\n\n", len(files))

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Extracting faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var successCount, errorCount, totalFaces int
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, path := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			stored, err := importFile(ctx, a.enroller, userID, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errorCount++
				return
			}
			successCount++
			totalFaces += stored
		}(path)
	}

	wg.Wait()
	fmt.Println()

	fmt.Printf("\nCompleted: %d images imported, %d errors\n", successCount, errorCount)
	fmt.Printf("Faces stored: %d\n", totalFaces)

	if noRebuild {
		return nil
	}
	stats, err := a.index.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	if err := a.index.Persist(); err != nil {
		return fmt.Errorf("persisting index: %w", err)
	}
	fmt.Printf("Index rebuilt: %d faces (%d skipped)\n", stats.Rows, stats.Skipped)
	return nil
}
