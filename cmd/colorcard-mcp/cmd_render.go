package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ironsheep/colorcard-mcp/internal/imaging"
	"github.com/ironsheep/colorcard-mcp/internal/synth"
)

var renderTargetFlags struct {
	scale float64
}

var renderTargetCmd = &cobra.Command{
	Use:   "render-target <output>",
	Short: "Render a printable color card",
	Long: `Render-target draws the card with the configured marker dictionary and
reference colors, sRGB encoded. The format follows the output extension.`,
	Args: cobra.ExactArgs(1),
	RunE: runRenderTarget,
}

func init() {
	renderTargetCmd.Flags().Float64Var(&renderTargetFlags.scale, "scale", 4, "Pixels per card unit")
}

func runRenderTarget(cmd *cobra.Command, args []string) error {
	p, err := loadPipeline()
	if err != nil {
		return err
	}
	canvas, err := synth.Card(synth.Options{
		Scale:      renderTargetFlags.scale,
		Dictionary: p.DetectionConfig().MarkerDictionary,
		Table:      p.Table(),
	})
	if err != nil {
		return err
	}
	if err := imaging.Save(canvas.ToNRGBA(imaging.SRGB), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %dx%d\n", args[0], canvas.Width, canvas.Height)
	return nil
}
