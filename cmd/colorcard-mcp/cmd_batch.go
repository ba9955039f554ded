package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ironsheep/colorcard-mcp/internal/calibrate"
	"github.com/ironsheep/colorcard-mcp/internal/imaging"
	"github.com/ironsheep/colorcard-mcp/internal/logging"
)

var batchFlags struct {
	parallel int
	strict   bool
}

var batchCmd = &cobra.Command{
	Use:   "batch <image>...",
	Short: "Correct several images in parallel",
	Long: `Batch runs "correct" on every image and prints one JSON array with an entry
per image, in argument order. A failing image gets an error entry and does not
stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.IntVar(&batchFlags.parallel, "parallel", 4, "Number of images processed at once")
	f.BoolVar(&batchFlags.strict, "strict", false, "Exit non-zero if any image fails")
}

func runBatch(cmd *cobra.Command, args []string) error {
	p, err := loadPipeline()
	if err != nil {
		return err
	}
	items, err := calibrate.RunBatch(cmd.Context(), p, imaging.NewImageCache().Transient(), args, batchFlags.parallel)
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), items); err != nil {
		return err
	}

	failed := 0
	for _, item := range items {
		if item.Failed() {
			failed++
		}
	}
	logging.New("batch").Info("batch finished", "images", len(items), "failed", failed)
	if batchFlags.strict && failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(items))
	}
	return nil
}
