package calibrate

import "github.com/ironsheep/colorcard-mcp/internal/colorsci"

// SetCCMSolver replaces the matrix solver of p.
func SetCCMSolver(p *Pipeline, solve func(measured, reference []colorsci.RGB) ([3][3]float64, error)) {
	p.solve = solve
}
