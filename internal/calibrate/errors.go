package calibrate

import (
	"context"
	"errors"

	"github.com/ironsheep/colorcard-mcp/internal/card"
	"github.com/ironsheep/colorcard-mcp/internal/detection"
	"github.com/ironsheep/colorcard-mcp/internal/geometry"
)

// Pipeline failures. Each is wrapped with context; test with errors.Is.
var (
	ErrAmbiguousOrientation      = errors.New("ambiguous orientation")
	ErrPatchSamplingFailure      = errors.New("patch sampling failure")
	ErrInsufficientUsablePatches = errors.New("insufficient usable patches")
	ErrSingularCCMSystem         = errors.New("singular ccm system")
	ErrInvalidConfig             = errors.New("invalid config")
	ErrInvalidCorrection         = errors.New("invalid correction")
)

// Errors raised by the lower layers, re-exported so callers only need this
// package.
var (
	ErrInsufficientMarkers   = detection.ErrInsufficientMarkers
	ErrDuplicateMarkerID     = detection.ErrDuplicateMarkerID
	ErrDegenerateHomography  = geometry.ErrDegenerateHomography
	ErrInvalidReferenceTable = card.ErrInvalidReferenceTable
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInsufficientMarkers, "InsufficientMarkers"},
	{ErrDuplicateMarkerID, "DuplicateMarkerID"},
	{ErrDegenerateHomography, "DegenerateHomography"},
	{ErrAmbiguousOrientation, "AmbiguousOrientation"},
	{ErrPatchSamplingFailure, "PatchSamplingFailure"},
	{ErrInsufficientUsablePatches, "InsufficientUsablePatches"},
	{ErrSingularCCMSystem, "SingularCCMSystem"},
	{ErrInvalidReferenceTable, "InvalidReferenceTable"},
	{ErrInvalidConfig, "InvalidConfig"},
	{ErrInvalidCorrection, "InvalidCorrection"},
	{context.Canceled, "Canceled"},
	{context.DeadlineExceeded, "DeadlineExceeded"},
}

// ErrorKind returns the flat name of the pipeline failure behind err, such as
// "InsufficientMarkers", or "Internal" for anything else. It returns "" for a
// nil error.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
