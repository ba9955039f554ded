package card

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/colorcard-mcp/internal/colorsci"
)

// ErrInvalidReferenceTable reports malformed or incomplete reference data.
var ErrInvalidReferenceTable = errors.New("invalid reference table")

// PatchCount is the number of patches on the supported card.
const PatchCount = 24

const (
	// maxSRGBDeltaE bounds the disagreement between an entry's Lab value and
	// the Lab of its sRGB equivalent.
	maxSRGBDeltaE = 0.5

	// maxNeutralChroma bounds a* b* chroma for entries flagged neutral.
	maxNeutralChroma = 3.0
)

//go:embed colorchecker24.yaml
var defaultTableYAML []byte

// Reference is one certified patch color.
type Reference struct {
	Index   int        `yaml:"index" json:"index"`
	Name    string     `yaml:"name" json:"name"`
	SRGB    [3]uint8   `yaml:"srgb" json:"srgb"`
	Lab     [3]float64 `yaml:"lab" json:"lab"`
	Neutral bool       `yaml:"neutral" json:"neutral"`
}

type tableFile struct {
	Name       string      `yaml:"name"`
	Version    int         `yaml:"version"`
	Illuminant string      `yaml:"illuminant"`
	Patches    []Reference `yaml:"patches"`
}

// ReferenceTable is an immutable, validated set of reference colors indexed
// by canonical patch index. Accessors return copies.
type ReferenceTable struct {
	name    string
	version int
	patches []Reference
	linear  []colorsci.RGB
}

// Default returns the embedded reference table. It is parsed and validated
// once per process.
var Default = sync.OnceValues(func() (*ReferenceTable, error) {
	return ParseReferenceTable(defaultTableYAML)
})

// LoadReferenceTable reads and validates a table from a YAML file.
func LoadReferenceTable(path string) (*ReferenceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference table: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference table: %w", err)
	}
	return ParseReferenceTable(data)
}

// ParseReferenceTable decodes and validates YAML reference data.
//
// Validation requires:
//   - a positive version and the D65 illuminant
//   - exactly PatchCount entries whose indices cover 0..PatchCount-1 once
//   - L* within [0, 100] for every entry
//   - every Lab value within ΔE2000 0.5 of the Lab of its sRGB value
//   - neutral entries with chroma below 3 and at least one neutral entry
//
// Every failure wraps ErrInvalidReferenceTable.
func ParseReferenceTable(data []byte) (*ReferenceTable, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReferenceTable, err)
	}
	if f.Version < 1 {
		return nil, fmt.Errorf("%w: missing or invalid version %d", ErrInvalidReferenceTable, f.Version)
	}
	if f.Illuminant != "D65" {
		return nil, fmt.Errorf("%w: illuminant %q, want D65", ErrInvalidReferenceTable, f.Illuminant)
	}
	if len(f.Patches) != PatchCount {
		return nil, fmt.Errorf("%w: %d patches, want %d", ErrInvalidReferenceTable, len(f.Patches), PatchCount)
	}

	patches := make([]Reference, PatchCount)
	seen := make([]bool, PatchCount)
	neutrals := 0
	for _, p := range f.Patches {
		if p.Index < 0 || p.Index >= PatchCount {
			return nil, fmt.Errorf("%w: patch index %d out of range", ErrInvalidReferenceTable, p.Index)
		}
		if seen[p.Index] {
			return nil, fmt.Errorf("%w: duplicate patch index %d", ErrInvalidReferenceTable, p.Index)
		}
		seen[p.Index] = true

		if p.Lab[0] < 0 || p.Lab[0] > 100 {
			return nil, fmt.Errorf("%w: patch %d L* %.2f out of range", ErrInvalidReferenceTable, p.Index, p.Lab[0])
		}
		lab := colorsci.Lab{L: p.Lab[0], A: p.Lab[1], B: p.Lab[2]}
		if de := colorsci.DeltaE2000(lab, colorsci.FromSRGB8(p.SRGB).Lab()); de > maxSRGBDeltaE {
			return nil, fmt.Errorf("%w: patch %d Lab and sRGB disagree by ΔE %.2f", ErrInvalidReferenceTable, p.Index, de)
		}
		if p.Neutral {
			if c := lab.Chroma(); c > maxNeutralChroma {
				return nil, fmt.Errorf("%w: neutral patch %d has chroma %.2f", ErrInvalidReferenceTable, p.Index, c)
			}
			neutrals++
		}
		patches[p.Index] = p
	}
	if neutrals == 0 {
		return nil, fmt.Errorf("%w: no neutral patches", ErrInvalidReferenceTable)
	}

	linear := make([]colorsci.RGB, PatchCount)
	for i, p := range patches {
		linear[i] = colorsci.Lab{L: p.Lab[0], A: p.Lab[1], B: p.Lab[2]}.RGB()
	}

	return &ReferenceTable{
		name:    f.Name,
		version: f.Version,
		patches: patches,
		linear:  linear,
	}, nil
}

// Name returns the table's name.
func (t *ReferenceTable) Name() string { return t.name }

// Version returns the table's data version.
func (t *ReferenceTable) Version() int { return t.version }

// Len returns the number of patches.
func (t *ReferenceTable) Len() int { return len(t.patches) }

// Patch returns the entry for canonical index i.
func (t *ReferenceTable) Patch(i int) Reference { return t.patches[i] }

// Patches returns a copy of all entries in index order.
func (t *ReferenceTable) Patches() []Reference {
	out := make([]Reference, len(t.patches))
	copy(out, t.patches)
	return out
}

// Lab returns the reference Lab color of patch i.
func (t *ReferenceTable) Lab(i int) colorsci.Lab {
	l := t.patches[i].Lab
	return colorsci.Lab{L: l[0], A: l[1], B: l[2]}
}

// Linear returns the reference color of patch i as linear RGB, derived from
// its Lab value.
func (t *ReferenceTable) Linear(i int) colorsci.RGB { return t.linear[i] }

// Neutrals returns the indices of the neutral patches in index order.
func (t *ReferenceTable) Neutrals() []int {
	var out []int
	for _, p := range t.patches {
		if p.Neutral {
			out = append(out, p.Index)
		}
	}
	return out
}
