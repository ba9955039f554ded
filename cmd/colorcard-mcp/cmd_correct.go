package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironsheep/colorcard-mcp/internal/calibrate"
	"github.com/ironsheep/colorcard-mcp/internal/imaging"
)

var correctFlags struct {
	output string
}

var correctCmd = &cobra.Command{
	Use:   "correct <image>",
	Short: "Fit a correction to the card in an image and print the report",
	Long: `Correct detects the card, fits tone, white balance and a color correction
matrix, and prints the JSON report to stdout. With -o the corrected image is
also written; its format follows the extension.`,
	Args: cobra.ExactArgs(1),
	RunE: runCorrect,
}

var applyFlags struct {
	correction string
	output     string
}

var applyCmd = &cobra.Command{
	Use:   "apply <image>",
	Short: "Apply a saved correction to an image",
	Long: `Apply reads a report printed by "correct" (or just its correction object)
and writes the corrected image.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	f := correctCmd.Flags()
	f.StringVarP(&correctFlags.output, "output", "o", "", "Write the corrected image to this path")

	f = applyCmd.Flags()
	f.StringVarP(&applyFlags.correction, "correction", "c", "", "Report or correction JSON file (required)")
	f.StringVarP(&applyFlags.output, "output", "o", "", "Path for the corrected image (required)")
	_ = applyCmd.MarkFlagRequired("correction")
	_ = applyCmd.MarkFlagRequired("output")
}

func runCorrect(cmd *cobra.Command, args []string) error {
	p, err := loadPipeline()
	if err != nil {
		return err
	}
	img, err := imaging.NewImageCache().Load(args[0])
	if err != nil {
		return err
	}
	report, err := p.Run(img)
	if err != nil {
		return err
	}
	if correctFlags.output != "" {
		if err := writeCorrected(p, img, report.Correction, correctFlags.output); err != nil {
			return err
		}
	}
	return writeJSON(cmd.OutOrStdout(), report)
}

func runApply(cmd *cobra.Command, args []string) error {
	p, err := loadPipeline()
	if err != nil {
		return err
	}
	res, err := readCorrection(applyFlags.correction)
	if err != nil {
		return err
	}
	img, err := imaging.NewImageCache().Load(args[0])
	if err != nil {
		return err
	}
	if err := writeCorrected(p, img, res, applyFlags.output); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), applyFlags.output)
	return nil
}

// readCorrection accepts either a full report or a bare correction object.
func readCorrection(path string) (*calibrate.CorrectionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read correction: %w", err)
	}
	var report calibrate.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse correction %s: %w", path, err)
	}
	if report.Correction != nil {
		return report.Correction, nil
	}
	var res calibrate.CorrectionResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse correction %s: %w", path, err)
	}
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("correction %s: %w", path, err)
	}
	return &res, nil
}
