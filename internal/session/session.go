package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"visionchat-backend/internal/models"
)

var (
	ErrNoVideo   = errors.New("no video loaded")
	ErrRunActive = errors.New("a processing run is already active")
	ErrNoSummary = errors.New("no summary available yet")
	ErrChatBusy  = errors.New("a chat request is already in flight")
)

// Manager owns all session-scoped state: the loaded video, the current
// processing run, its frames and summary, and the conversation transcript.
// Background work never mutates this state directly; it hands results back
// through the Complete*/Fail* methods, which drop anything from a retired
// generation (the stale-run guard).
type Manager struct {
	mu sync.Mutex

	video      *models.VideoSource
	run        *models.ProcessingRun
	frames     []models.Frame
	summary    string
	transcript []models.ChatMessage

	awaitingReply bool

	generation uint64
	cancelRun  context.CancelFunc
}

func NewManager() *Manager {
	return &Manager{}
}

// SetVideo loads a new video source. Any in-flight run is cancelled and its
// eventual results discarded; frames, summary, and transcript from the
// previous video are cleared, and its temp file is removed.
func (m *Manager) SetVideo(v *models.VideoSource) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.retireLocked()

	if m.video != nil && m.video.Path != v.Path {
		os.Remove(m.video.Path)
	}

	m.video = v
	m.run = nil
	m.frames = nil
	m.summary = ""
	m.transcript = nil
	m.awaitingReply = false
}

// retireLocked bumps the generation and cancels outstanding work so that
// anything started before this point can no longer mutate session state.
func (m *Manager) retireLocked() {
	m.generation++
	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
	m.awaitingReply = false
}

func (m *Manager) Video() (models.VideoSource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.video == nil {
		return models.VideoSource{}, false
	}
	return *m.video, true
}

// BeginRun starts a new processing run for the current video. The video
// snapshot is taken under the same lock so the run cannot race a concurrent
// upload. The returned generation token must accompany every later
// progress/complete/fail call; a stale token is silently ignored.
//
// Results committed by an earlier run stay readable until CompleteRun
// replaces them; a re-run that fails leaves them untouched.
func (m *Manager) BeginRun(parent context.Context) (models.ProcessingRun, models.VideoSource, context.Context, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.video == nil {
		return models.ProcessingRun{}, models.VideoSource{}, nil, 0, ErrNoVideo
	}
	if m.run != nil && m.run.Status != models.RunStatusCompleted && m.run.Status != models.RunStatusFailed {
		return models.ProcessingRun{}, models.VideoSource{}, nil, 0, ErrRunActive
	}

	m.retireLocked()

	ctx, cancel := context.WithCancel(parent)
	m.cancelRun = cancel

	run := &models.ProcessingRun{
		ID:        uuid.New(),
		Status:    models.RunStatusQueued,
		StageName: "Queued",
		StartedAt: time.Now(),
	}
	m.run = run

	return *run, *m.video, ctx, m.generation, nil
}

// UpdateRunProgress records a cosmetic progress update for the given
// generation. Returns the updated run snapshot and whether it was applied.
func (m *Manager) UpdateRunProgress(gen uint64, status, stageName string, progress float64) (models.ProcessingRun, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.run == nil {
		return models.ProcessingRun{}, false
	}

	m.run.Status = status
	m.run.StageName = stageName
	if progress > m.run.Progress {
		m.run.Progress = progress
	}
	return *m.run, true
}

// CompleteRun commits a finished run's frames and summary, unless the run
// has been retired by a newer upload or run.
func (m *Manager) CompleteRun(gen uint64, frames []models.Frame, summary string) (models.ProcessingRun, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.run == nil {
		return models.ProcessingRun{}, false
	}

	now := time.Now()
	m.run.Status = models.RunStatusCompleted
	m.run.StageName = "Analysis complete"
	m.run.Progress = 100
	m.run.CompletedAt = &now
	m.frames = frames
	m.summary = summary
	m.releaseRunLocked()

	return *m.run, true
}

// FailRun marks the run failed. Partial frames and captions are discarded;
// committed results of earlier runs are untouched because a failed run never
// reaches CompleteRun.
func (m *Manager) FailRun(gen uint64, stage, message string) (models.ProcessingRun, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.run == nil {
		return models.ProcessingRun{}, false
	}

	now := time.Now()
	m.run.Status = models.RunStatusFailed
	m.run.StageName = stage
	m.run.ErrorMessage = &message
	m.run.CompletedAt = &now
	m.releaseRunLocked()

	return *m.run, true
}

// releaseRunLocked cancels and drops the run context once the run has reached
// a terminal state, so resources are freed even under a cancellable parent.
func (m *Manager) releaseRunLocked() {
	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
}

func (m *Manager) Run() (models.ProcessingRun, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run == nil {
		return models.ProcessingRun{}, false
	}
	return *m.run, true
}

func (m *Manager) Frames() []models.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Frame, len(m.frames))
	copy(out, m.frames)
	return out
}

func (m *Manager) Summary() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.summary, m.summary != ""
}

// ChatContext is the snapshot a grounded answer call needs.
type ChatContext struct {
	VideoPath string
	MimeType  string
	Summary   string
	History   string // serialized transcript including the new user turn
}

// BeginChat validates that a summary exists and no other request is in
// flight, appends the user turn optimistically, and enters awaiting-reply.
// The returned generation token guards CompleteChat/FailChat the same way
// run tokens guard run results.
func (m *Manager) BeginChat(question string) (ChatContext, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.video == nil {
		return ChatContext{}, 0, ErrNoVideo
	}
	if m.summary == "" {
		return ChatContext{}, 0, ErrNoSummary
	}
	if m.awaitingReply {
		return ChatContext{}, 0, ErrChatBusy
	}

	m.transcript = append(m.transcript, models.ChatMessage{Role: models.RoleUser, Content: question})
	m.awaitingReply = true

	return ChatContext{
		VideoPath: m.video.Path,
		MimeType:  m.video.MimeType,
		Summary:   m.summary,
		History:   FormatHistory(m.transcript),
	}, m.generation, nil
}

// CompleteChat appends the assistant turn and returns to idle. A stale
// generation means the session was reset mid-flight; the answer is dropped.
func (m *Manager) CompleteChat(gen uint64, answer string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		return false
	}

	m.transcript = append(m.transcript, models.ChatMessage{Role: models.RoleAssistant, Content: answer})
	m.awaitingReply = false
	return true
}

// FailChat returns to idle without appending an assistant turn. The user's
// question stays in the transcript so a retry reads naturally.
func (m *Manager) FailChat(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		return
	}
	m.awaitingReply = false
}

func (m *Manager) Transcript() []models.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.ChatMessage, len(m.transcript))
	copy(out, m.transcript)
	return out
}

// FormatHistory serializes turns as alternating labeled lines, the format
// the answer prompt expects.
func FormatHistory(transcript []models.ChatMessage) string {
	var lines []string
	for _, msg := range transcript {
		label := "User"
		if msg.Role == models.RoleAssistant {
			label = "Assistant"
		}
		lines = append(lines, label+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}
