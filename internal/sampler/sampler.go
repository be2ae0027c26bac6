package sampler

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"visionchat-backend/internal/models"
)

// FrameExtractor is the slice of the media decoder the sampler needs.
// *media.Decoder satisfies it.
type FrameExtractor interface {
	ExtractFrameAt(ctx context.Context, path string, seconds float64) ([]byte, error)
}

// SamplePoints computes up to maxFrames evenly spaced timestamps across the
// duration: t_i = i * max(1, D/N), discarding anything past the end. The
// interval clamps to one second, so very short videos yield fewer points.
func SamplePoints(duration float64, maxFrames int) []float64 {
	if duration <= 0 || maxFrames <= 0 {
		return nil
	}

	interval := duration / float64(maxFrames)
	if interval < 1 {
		interval = 1
	}

	var points []float64
	for i := 0; i < maxFrames; i++ {
		t := float64(i) * interval
		if t > duration {
			break
		}
		points = append(points, t)
	}

	return points
}

// Extract rasterizes one frame per sample point. Seeks for distinct
// timestamps run concurrently up to the worker limit, but the returned slice
// is always in sample-point order. Any single failure aborts the whole
// operation; partial frame sets are never returned.
//
// onFrame fires once per completed extraction and feeds the cosmetic
// progress counter; it must not be relied on for correctness.
func Extract(ctx context.Context, ext FrameExtractor, path string, points []float64, workers int, onFrame func()) ([]models.Frame, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no sample points to extract")
	}

	frames := make([]models.Frame, len(points))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, t := range points {
		i, t := i, t
		g.Go(func() error {
			jpeg, err := ext.ExtractFrameAt(ctx, path, t)
			if err != nil {
				return fmt.Errorf("frame %d/%d: %w", i+1, len(points), err)
			}

			// Each goroutine owns exactly one slot, so indexed writes
			// need no lock and completion order cannot reorder output.
			frames[i] = models.Frame{Index: i, Timestamp: t, JPEG: jpeg}

			if onFrame != nil {
				onFrame()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return frames, nil
}
