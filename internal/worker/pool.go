package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"visionchat-backend/internal/models"
	"visionchat-backend/internal/pipeline"
	"visionchat-backend/internal/session"
)

// Broadcaster pushes progress events out to connected clients.
type Broadcaster interface {
	Broadcast(msg models.WSMessage)
}

// Job is one queued processing run. Ctx is the run-scoped context handed out
// by the session manager; cancelling it (new upload, new run) aborts the
// pipeline mid-flight.
type Job struct {
	Run   models.ProcessingRun
	Video models.VideoSource
	Ctx   context.Context
	Gen   uint64
}

// Pool executes processing runs off the request path. The queue is a
// buffered channel; with a single active session the pool mostly serializes
// runs, but the structure keeps enqueue non-blocking.
type Pool struct {
	pipeline    *pipeline.Pipeline
	session     *session.Manager
	hub         Broadcaster
	jobs        chan Job
	workerCount int
	stopChan    chan struct{}
}

func NewPool(pipe *pipeline.Pipeline, sess *session.Manager, hub Broadcaster, workerCount int) *Pool {
	return &Pool{
		pipeline:    pipe,
		session:     sess,
		hub:         hub,
		jobs:        make(chan Job, 8),
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

// Enqueue hands a run to the pool without blocking the request handler.
func (p *Pool) Enqueue(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return fmt.Errorf("job queue is full")
	}
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		case job := <-p.jobs:
			log.Printf("Worker %d: processing run %s", id, job.Run.ID)
			p.process(job)
		}
	}
}

func (p *Pool) process(job Job) {
	result, err := p.pipeline.Run(job.Ctx, &job.Video, func(status, stageName string, progress float64) {
		run, ok := p.session.UpdateRunProgress(job.Gen, status, stageName, progress)
		if !ok {
			return
		}
		p.hub.Broadcast(models.WSMessage{
			Type: "status_update",
			Payload: models.StatusUpdate{
				RunID:     run.ID,
				Status:    run.Status,
				StageName: run.StageName,
				Progress:  run.Progress,
			},
		})
	})

	if err != nil {
		stage := "processing"
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}

		run, ok := p.session.FailRun(job.Gen, stage, err.Error())
		if !ok {
			log.Printf("Worker: discarding stale failure for run %s: %v", job.Run.ID, err)
			return
		}

		log.Printf("Worker: run %s failed in %s: %v", run.ID, stage, err)
		p.hub.Broadcast(models.WSMessage{
			Type: "error",
			Payload: models.ErrorEvent{
				RunID:        run.ID,
				Stage:        stage,
				ErrorMessage: err.Error(),
			},
		})
		return
	}

	run, ok := p.session.CompleteRun(job.Gen, result.Frames, result.Summary)
	if !ok {
		log.Printf("Worker: discarding stale result for run %s", job.Run.ID)
		return
	}

	log.Printf("Worker: run %s completed with %d frames", run.ID, len(result.Frames))
	p.hub.Broadcast(models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			RunID:      run.ID,
			FrameCount: len(result.Frames),
		},
	})
}
