package main

import (
	"encoding/json"
	"image"
	"io"

	"github.com/ironsheep/colorcard-mcp/internal/calibrate"
	"github.com/ironsheep/colorcard-mcp/internal/imaging"
)

// loadPipeline builds the pipeline from --config, or from the defaults when
// no config is given.
func loadPipeline() (*calibrate.Pipeline, error) {
	cfg := calibrate.DefaultConfig()
	if rootFlags.config != "" {
		var err error
		cfg, err = calibrate.LoadConfig(rootFlags.config)
		if err != nil {
			return nil, err
		}
	}
	table, err := cfg.Table()
	if err != nil {
		return nil, err
	}
	return calibrate.NewPipeline(cfg.Detection, cfg.Correction, table)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCorrected(p *calibrate.Pipeline, img image.Image, res *calibrate.CorrectionResult, path string) error {
	corrected, err := p.Apply(img, res)
	if err != nil {
		return err
	}
	return imaging.Save(corrected, path)
}
