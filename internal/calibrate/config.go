package calibrate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/colorcard-mcp/internal/card"
	"github.com/ironsheep/colorcard-mcp/internal/detection"
	"github.com/ironsheep/colorcard-mcp/internal/imaging"
)

// WhiteBalanceMethod selects how per-channel gains are estimated.
type WhiteBalanceMethod string

const (
	GrayWorld  WhiteBalanceMethod = "gray_world"
	WhitePatch WhiteBalanceMethod = "white_patch"

	// Bradford adapts the estimated illuminant to D65 in cone space instead
	// of scaling RGB channels; the gains stay at 1.
	Bradford WhiteBalanceMethod = "bradford"
)

// ToneMethod selects the tone linearization applied before white balance.
type ToneMethod string

const (
	ToneNeutralRamp ToneMethod = "neutral_ramp"
	ToneNone        ToneMethod = "none"
)

// DetectionConfig controls marker detection and the expected card grid.
type DetectionConfig struct {
	MarkerDictionary    detection.DictionaryName `yaml:"marker_dictionary" json:"marker_dictionary"`
	MinMarkerConfidence float64                  `yaml:"min_marker_confidence" json:"min_marker_confidence"`
	GridRows            int                      `yaml:"grid_rows" json:"grid_rows"`
	GridCols            int                      `yaml:"grid_cols" json:"grid_cols"`
	MinMarkerFraction   float64                  `yaml:"min_marker_fraction" json:"min_marker_fraction"`
	BlurRadius          float64                  `yaml:"blur_radius" json:"blur_radius"`
}

// QualityThresholds are the upper bounds of average ΔE for each rating.
type QualityThresholds struct {
	Excellent float64 `yaml:"excellent" json:"excellent"`
	VeryGood  float64 `yaml:"very_good" json:"very_good"`
	Good      float64 `yaml:"good" json:"good"`
}

// CorrectionConfig controls patch sampling and the fitted correction.
type CorrectionConfig struct {
	WhiteBalanceMethod          WhiteBalanceMethod `yaml:"white_balance_method" json:"white_balance_method"`
	SpecularLuminanceThreshold  float64            `yaml:"specular_luminance_threshold" json:"specular_luminance_threshold"`
	SpecularSaturationThreshold float64            `yaml:"specular_saturation_threshold" json:"specular_saturation_threshold"`
	MaxSpecularFractionPerPatch float64            `yaml:"max_specular_fraction_per_patch" json:"max_specular_fraction_per_patch"`
	MaxWhiteBalanceGain         float64            `yaml:"max_white_balance_gain" json:"max_white_balance_gain"`
	QualityThresholds           QualityThresholds  `yaml:"quality_thresholds" json:"quality_thresholds"`
	ToneLinearization           ToneMethod         `yaml:"tone_linearization" json:"tone_linearization"`
	InputColorSpace             imaging.ColorSpace `yaml:"input_color_space" json:"input_color_space"`
	PatchSampleInset            float64            `yaml:"patch_sample_inset" json:"patch_sample_inset"`
	TrimFraction                float64            `yaml:"trim_fraction" json:"trim_fraction"`
	ClipLevel                   float64            `yaml:"clip_level" json:"clip_level"`
	MinUsablePatches            int                `yaml:"min_usable_patches" json:"min_usable_patches"`
	DeltaEThreshold             float64            `yaml:"delta_e_threshold" json:"delta_e_threshold"`
}

// Config is the on-disk pipeline configuration.
type Config struct {
	Detection  DetectionConfig  `yaml:"detection"`
	Correction CorrectionConfig `yaml:"correction"`

	// ReferenceTable is a path to a reference table YAML file. Empty means
	// the embedded default table.
	ReferenceTable string `yaml:"reference_table"`
}

// DefaultDetectionConfig returns the detection defaults.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		MarkerDictionary:    detection.DefaultDictionary,
		MinMarkerConfidence: 0.8,
		GridRows:            card.DefaultRows,
		GridCols:            card.DefaultCols,
		MinMarkerFraction:   0.02,
	}
}

// DefaultCorrectionConfig returns the correction defaults.
func DefaultCorrectionConfig() CorrectionConfig {
	return CorrectionConfig{
		WhiteBalanceMethod:          GrayWorld,
		SpecularLuminanceThreshold:  0.95,
		SpecularSaturationThreshold: 0.10,
		MaxSpecularFractionPerPatch: 0.5,
		MaxWhiteBalanceGain:         8.0,
		QualityThresholds:           QualityThresholds{Excellent: 1.0, VeryGood: 2.0, Good: 3.0},
		ToneLinearization:           ToneNeutralRamp,
		InputColorSpace:             imaging.LinearSRGB,
		PatchSampleInset:            0.2,
		TrimFraction:                0.1,
		ClipLevel:                   0.98,
		MinUsablePatches:            6,
		DeltaEThreshold:             3.0,
	}
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	return Config{
		Detection:  DefaultDetectionConfig(),
		Correction: DefaultCorrectionConfig(),
	}
}

// LoadConfig reads a YAML configuration file. Keys missing from the file keep
// their defaults; unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration over the defaults and validates it.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: parse config: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks both sections.
func (c Config) Validate() error {
	if err := c.Detection.Validate(); err != nil {
		return err
	}
	return c.Correction.Validate()
}

// Table returns the configured reference table.
func (c Config) Table() (*card.ReferenceTable, error) {
	if c.ReferenceTable == "" {
		return card.Default()
	}
	return card.LoadReferenceTable(c.ReferenceTable)
}

// Validate reports the first out-of-range field, wrapped in ErrInvalidConfig.
func (c DetectionConfig) Validate() error {
	switch {
	case c.MinMarkerConfidence < 0 || c.MinMarkerConfidence > 1:
		return invalid("min_marker_confidence %.3g outside [0, 1]", c.MinMarkerConfidence)
	case c.GridRows < 1 || c.GridCols < 1:
		return invalid("grid %dx%d must have at least one row and column", c.GridRows, c.GridCols)
	case c.MinMarkerFraction <= 0 || c.MinMarkerFraction >= 0.5:
		return invalid("min_marker_fraction %.3g outside (0, 0.5)", c.MinMarkerFraction)
	case c.BlurRadius < 0:
		return invalid("blur_radius %.3g is negative", c.BlurRadius)
	}
	for _, name := range detection.Dictionaries() {
		if name == c.MarkerDictionary {
			return nil
		}
	}
	return invalid("unknown marker_dictionary %q", c.MarkerDictionary)
}

// Validate reports the first out-of-range field, wrapped in ErrInvalidConfig.
func (c CorrectionConfig) Validate() error {
	q := c.QualityThresholds
	switch {
	case c.WhiteBalanceMethod != GrayWorld && c.WhiteBalanceMethod != WhitePatch && c.WhiteBalanceMethod != Bradford:
		return invalid("unknown white_balance_method %q", c.WhiteBalanceMethod)
	case c.ToneLinearization != ToneNeutralRamp && c.ToneLinearization != ToneNone:
		return invalid("unknown tone_linearization %q", c.ToneLinearization)
	case !c.InputColorSpace.Valid():
		return invalid("unknown input_color_space %q", c.InputColorSpace)
	case c.SpecularLuminanceThreshold <= 0 || c.SpecularLuminanceThreshold > 1:
		return invalid("specular_luminance_threshold %.3g outside (0, 1]", c.SpecularLuminanceThreshold)
	case c.SpecularSaturationThreshold < 0 || c.SpecularSaturationThreshold > 1:
		return invalid("specular_saturation_threshold %.3g outside [0, 1]", c.SpecularSaturationThreshold)
	case c.MaxSpecularFractionPerPatch < 0 || c.MaxSpecularFractionPerPatch > 1:
		return invalid("max_specular_fraction_per_patch %.3g outside [0, 1]", c.MaxSpecularFractionPerPatch)
	case c.MaxWhiteBalanceGain < 1:
		return invalid("max_white_balance_gain %.3g below 1", c.MaxWhiteBalanceGain)
	case q.Excellent <= 0 || q.VeryGood <= q.Excellent || q.Good <= q.VeryGood:
		return invalid("quality_thresholds %.3g/%.3g/%.3g must be positive and increasing", q.Excellent, q.VeryGood, q.Good)
	case c.PatchSampleInset < 0 || c.PatchSampleInset >= 0.5:
		return invalid("patch_sample_inset %.3g outside [0, 0.5)", c.PatchSampleInset)
	case c.TrimFraction < 0 || c.TrimFraction >= 0.5:
		return invalid("trim_fraction %.3g outside [0, 0.5)", c.TrimFraction)
	case c.ClipLevel <= 0 || c.ClipLevel > 1:
		return invalid("clip_level %.3g outside (0, 1]", c.ClipLevel)
	case c.MinUsablePatches < 3:
		return invalid("min_usable_patches %d below 3", c.MinUsablePatches)
	case c.DeltaEThreshold <= 0:
		return invalid("delta_e_threshold %.3g must be positive", c.DeltaEThreshold)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}
