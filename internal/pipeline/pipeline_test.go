package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"visionchat-backend/internal/models"
)

type fakeExtractor struct{}

func (fakeExtractor) ExtractFrameAt(ctx context.Context, path string, seconds float64) ([]byte, error) {
	return []byte(fmt.Sprintf("jpeg@%.2f", seconds)), nil
}

type fakeGateway struct {
	captionDelay    func() time.Duration
	captionFailText string // fail captions containing this substring

	captionsInFlight atomic.Int64
	captionsDone     atomic.Int64
	summarizeInput   []string

	mu              sync.Mutex
	summarizeCalled bool
}

func (g *fakeGateway) Caption(ctx context.Context, jpeg []byte) (string, error) {
	g.captionsInFlight.Add(1)
	defer g.captionsInFlight.Add(-1)

	if g.captionDelay != nil {
		select {
		case <-time.After(g.captionDelay()):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	caption := "caption of " + string(jpeg)
	if g.captionFailText != "" && strings.Contains(caption, g.captionFailText) {
		return "", errors.New("model refused")
	}

	g.captionsDone.Add(1)
	return caption, nil
}

func (g *fakeGateway) Summarize(ctx context.Context, captions []string) (string, error) {
	g.mu.Lock()
	g.summarizeCalled = true
	g.summarizeInput = append([]string(nil), captions...)
	g.mu.Unlock()

	if n := g.captionsInFlight.Load(); n != 0 {
		return "", fmt.Errorf("barrier violated: %d captions still in flight", n)
	}
	return fmt.Sprintf("summary of %d captions", len(captions)), nil
}

func video(duration float64) *models.VideoSource {
	return &models.VideoSource{Path: "test.mp4", DurationSeconds: duration}
}

func TestRun_HappyPath(t *testing.T) {
	gw := &fakeGateway{}
	p := New(fakeExtractor{}, gw, 10, 4)

	result, err := p.Run(context.Background(), video(30), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Frames) != 10 {
		t.Fatalf("Expected 10 frames, got %d", len(result.Frames))
	}
	for i, f := range result.Frames {
		if f.Caption == "" {
			t.Errorf("Frame %d has no caption", i)
		}
	}
	if result.Summary != "summary of 10 captions" {
		t.Errorf("Unexpected summary: %q", result.Summary)
	}
}

func TestRun_SummarizeWaitsForCaptionBarrier(t *testing.T) {
	// Random caption latencies; Summarize errors if any caption call is
	// still in flight when it starts.
	rng := rand.New(rand.NewSource(7))
	var mu sync.Mutex
	gw := &fakeGateway{
		captionDelay: func() time.Duration {
			mu.Lock()
			defer mu.Unlock()
			return time.Duration(rng.Intn(25)) * time.Millisecond
		},
	}
	p := New(fakeExtractor{}, gw, 10, 4)

	if _, err := p.Run(context.Background(), video(30), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := gw.captionsDone.Load(); got != 10 {
		t.Errorf("Expected 10 captions before summarize, got %d", got)
	}
}

func TestRun_CaptionOrderMatchesSamplePointOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var mu sync.Mutex
	gw := &fakeGateway{
		captionDelay: func() time.Duration {
			mu.Lock()
			defer mu.Unlock()
			return time.Duration(rng.Intn(20)) * time.Millisecond
		},
	}
	p := New(fakeExtractor{}, gw, 10, 4)

	if _, err := p.Run(context.Background(), video(30), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	expected := []float64{0, 3, 6, 9, 12, 15, 18, 21, 24, 27}
	if len(gw.summarizeInput) != len(expected) {
		t.Fatalf("Expected %d captions, got %d", len(expected), len(gw.summarizeInput))
	}
	for i, ts := range expected {
		want := fmt.Sprintf("caption of jpeg@%.2f", ts)
		if gw.summarizeInput[i] != want {
			t.Errorf("Caption %d: expected %q, got %q", i, want, gw.summarizeInput[i])
		}
	}
}

func TestRun_SingleCaptionFailureFailsRun(t *testing.T) {
	// 9 of 10 captions succeed, the one for the last frame fails: the run
	// must fail and neither captions nor summary may escape.
	gw := &fakeGateway{captionFailText: "jpeg@27.00"}
	p := New(fakeExtractor{}, gw, 10, 4)

	result, err := p.Run(context.Background(), video(30), nil)
	if err == nil {
		t.Fatal("Expected run to fail")
	}
	if result != nil {
		t.Errorf("Expected no result on failure, got %+v", result)
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Expected StageError, got %T: %v", err, err)
	}
	if stageErr.Stage != StageCaptioning {
		t.Errorf("Expected stage %q, got %q", StageCaptioning, stageErr.Stage)
	}
	if gw.summarizeCalled {
		t.Error("Summarize must not be called after a caption failure")
	}
}

func TestRun_ProgressIsMonotonicAndReaches100(t *testing.T) {
	gw := &fakeGateway{}
	p := New(fakeExtractor{}, gw, 10, 4)

	var mu sync.Mutex
	var values []float64
	onProgress := func(status, stageName string, progress float64) {
		mu.Lock()
		values = append(values, progress)
		mu.Unlock()
	}

	if _, err := p.Run(context.Background(), video(30), onProgress); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if len(values) == 0 {
		t.Fatal("Expected progress updates")
	}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Errorf("Progress went backwards at %d: %.2f -> %.2f", i, values[i-1], values[i])
		}
	}
	if final := values[len(values)-1]; final != 100 {
		t.Errorf("Expected final progress 100, got %.2f", final)
	}
}

func TestRun_NoSamplePoints(t *testing.T) {
	p := New(fakeExtractor{}, &fakeGateway{}, 10, 4)

	_, err := p.Run(context.Background(), video(0), nil)
	if err == nil {
		t.Fatal("Expected error for zero-duration video")
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageSampling {
		t.Errorf("Expected sampling stage error, got %v", err)
	}
}

func TestRun_DeterministicFrameCount(t *testing.T) {
	// Re-running the same video yields the same frame count.
	gw := &fakeGateway{}
	p := New(fakeExtractor{}, gw, 10, 4)

	first, err := p.Run(context.Background(), video(45), nil)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	second, err := p.Run(context.Background(), video(45), nil)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if len(first.Frames) != len(second.Frames) {
		t.Errorf("Frame counts differ: %d vs %d", len(first.Frames), len(second.Frames))
	}
}
