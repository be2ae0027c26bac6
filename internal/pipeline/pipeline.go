package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"visionchat-backend/internal/models"
	"visionchat-backend/internal/sampler"
)

// Stage names, used both for progress labels and failure events.
const (
	StageSampling    = "sampling"
	StageCaptioning  = "captioning"
	StageSummarizing = "summarizing"
)

// Progress weighting per stage: sampling 0-40, captioning 40-80,
// summarization 80-100. Cosmetic only.
const (
	samplingBudget   = 40.0
	captioningBudget = 40.0
)

// ModelGateway is the slice of the model provider the pipeline needs.
type ModelGateway interface {
	Caption(ctx context.Context, jpeg []byte) (string, error)
	Summarize(ctx context.Context, captions []string) (string, error)
}

// ProgressFunc receives best-effort status updates as the run advances.
type ProgressFunc func(status, stageName string, progress float64)

// StageError reports which stage a failed run died in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s failed: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Result is everything a completed run produced. The pipeline never touches
// session state itself; the caller applies the result under the stale-run
// guard.
type Result struct {
	Frames  []models.Frame
	Summary string
}

type Pipeline struct {
	extractor sampler.FrameExtractor
	gateway   ModelGateway
	maxFrames int
	workers   int
}

func New(extractor sampler.FrameExtractor, gateway ModelGateway, maxFrames, workers int) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		gateway:   gateway,
		maxFrames: maxFrames,
		workers:   workers,
	}
}

// Run executes sampling, then captioning, then summarization for one video.
// Captioning fans out one gateway call per frame and joins on a barrier;
// summarization never starts before every caption has resolved. Any failure
// in any stage fails the whole run.
func (p *Pipeline) Run(ctx context.Context, video *models.VideoSource, onProgress ProgressFunc) (*Result, error) {
	prog := newProgressMeter(onProgress)

	// Stage 1: sampling
	points := sampler.SamplePoints(video.DurationSeconds, p.maxFrames)
	if len(points) == 0 {
		return nil, &StageError{Stage: StageSampling, Err: fmt.Errorf("no sample points for %.2fs video", video.DurationSeconds)}
	}

	prog.set(models.RunStatusSampling, "Extracting key frames", 0)
	perFrame := samplingBudget / float64(len(points))

	frames, err := sampler.Extract(ctx, p.extractor, video.Path, points, p.workers, func() {
		prog.add(models.RunStatusSampling, "Extracting key frames", perFrame)
	})
	if err != nil {
		return nil, &StageError{Stage: StageSampling, Err: err}
	}

	// Stage 2: captioning
	prog.set(models.RunStatusCaptioning, "Generating captions", samplingBudget)
	perCaption := captioningBudget / float64(len(frames))

	g, gctx := errgroup.WithContext(ctx)
	for i := range frames {
		i := i
		g.Go(func() error {
			caption, err := p.gateway.Caption(gctx, frames[i].JPEG)
			if err != nil {
				return fmt.Errorf("frame %d at %.2fs: %w", i+1, frames[i].Timestamp, err)
			}
			frames[i].Caption = caption
			prog.add(models.RunStatusCaptioning, "Generating captions", perCaption)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Partial captions die with the run; nothing is exposed downstream.
		return nil, &StageError{Stage: StageCaptioning, Err: err}
	}

	// Stage 3: summarization, strictly after the caption barrier
	prog.set(models.RunStatusSummarizing, "Creating summary", samplingBudget+captioningBudget)

	captions := make([]string, len(frames))
	for i, f := range frames {
		captions[i] = f.Caption
	}

	summary, err := p.gateway.Summarize(ctx, captions)
	if err != nil {
		return nil, &StageError{Stage: StageSummarizing, Err: err}
	}

	prog.set(models.RunStatusSummarizing, "Creating summary", 100)

	return &Result{Frames: frames, Summary: summary}, nil
}

// progressMeter keeps the reported percentage monotonic even though frame and
// caption completions land in arbitrary order.
type progressMeter struct {
	mu      sync.Mutex
	current float64
	report  ProgressFunc
}

func newProgressMeter(report ProgressFunc) *progressMeter {
	return &progressMeter{report: report}
}

func (m *progressMeter) set(status, stageName string, floor float64) {
	m.mu.Lock()
	if floor > m.current {
		m.current = floor
	}
	value := m.current
	m.mu.Unlock()

	if m.report != nil {
		m.report(status, stageName, value)
	}
}

func (m *progressMeter) add(status, stageName string, delta float64) {
	m.mu.Lock()
	m.current += delta
	if m.current > 100 {
		m.current = 100
	}
	value := m.current
	m.mu.Unlock()

	if m.report != nil {
		m.report(status, stageName, value)
	}
}
