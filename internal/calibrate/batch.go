package calibrate

import (
	"context"
	"errors"
	"fmt"
	"image"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/colorcard-mcp/internal/logging"
)

// Loader opens an image by path.
type Loader interface {
	Load(path string) (image.Image, error)
}

// BatchItem is the outcome for one image of a batch. Exactly one of Report
// and Error is set.
type BatchItem struct {
	Path   string  `json:"path"`
	Report *Report `json:"report,omitempty"`
	Error  string  `json:"error,omitempty"`
	Kind   string  `json:"kind,omitempty"`
}

// Failed reports whether the item carries an error.
func (b BatchItem) Failed() bool { return b.Error != "" }

// RunBatch runs the pipeline over paths with at most parallel images in
// flight. Items come back in the order of paths.
//
// A failing image is recorded in its item and never stops the others.
// Cancelling ctx stops images that have not started yet; they are recorded
// with the context error. The returned error is non-nil only for invalid
// arguments.
func RunBatch(ctx context.Context, p *Pipeline, loader Loader, paths []string, parallel int) ([]BatchItem, error) {
	if p == nil || loader == nil {
		return nil, errors.New("pipeline and loader are required")
	}
	if parallel < 1 {
		return nil, fmt.Errorf("%w: parallel %d must be at least 1", ErrInvalidConfig, parallel)
	}

	log := logging.New("batch")
	items := make([]BatchItem, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, path := range paths {
		g.Go(func() error {
			items[i] = runOne(gctx, p, loader, path)
			if items[i].Failed() {
				log.Warn("image failed", "path", path, "kind", items[i].Kind, "error", items[i].Error)
			}
			return nil
		})
	}
	_ = g.Wait() // errors captured in BatchItem

	return items, nil
}

func runOne(ctx context.Context, p *Pipeline, loader Loader, path string) BatchItem {
	item := BatchItem{Path: path}
	fail := func(err error) BatchItem {
		item.Error = err.Error()
		item.Kind = ErrorKind(err)
		return item
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	img, err := loader.Load(path)
	if err != nil {
		return fail(err)
	}
	report, err := p.Run(img)
	if err != nil {
		return fail(err)
	}
	item.Report = report
	return item
}
