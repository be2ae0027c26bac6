package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"visionchat-backend/internal/config"
	"visionchat-backend/internal/media"
	"visionchat-backend/internal/models"
	"visionchat-backend/internal/session"
	"visionchat-backend/internal/worker"
)

// mediaProber is the slice of the media decoder the upload path needs.
type mediaProber interface {
	Probe(ctx context.Context, path string) (*media.Metadata, error)
}

// runEnqueuer is satisfied by *worker.Pool.
type runEnqueuer interface {
	Enqueue(job worker.Job) error
}

type VideoHandler struct {
	session *session.Manager
	prober  mediaProber
	pool    runEnqueuer
	cfg     *config.Config
}

func NewVideoHandler(sess *session.Manager, prober mediaProber, pool runEnqueuer, cfg *config.Config) *VideoHandler {
	return &VideoHandler{
		session: sess,
		prober:  prober,
		pool:    pool,
		cfg:     cfg,
	}
}

// Upload accepts a multipart video file. Every hard limit is enforced here,
// before a single model call can happen: size, recognizable video type,
// decodability, and duration.
func (h *VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.cfg.MaxVideoBytes()

	if r.ContentLength > maxBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge,
			errorResp("FILE_TOO_LARGE", fmt.Sprintf("File size exceeds %dMB limit", h.cfg.MaxVideoMB), r))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		// Chunked uploads carry no Content-Length; the size cap then trips
		// mid-parse and must still surface as the size-specific error.
		if isBodyTooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				errorResp("FILE_TOO_LARGE", fmt.Sprintf("File size exceeds %dMB limit", h.cfg.MaxVideoMB), r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No file provided", r))
		return
	}
	defer file.Close()

	// Read first 512 bytes for magic byte check
	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	buf = buf[:n]

	mimeType := detectVideoType(buf, header.Filename)
	if mimeType == "" {
		writeJSON(w, http.StatusUnsupportedMediaType,
			errorResp("UNSUPPORTED_MEDIA", "Only MP4, MOV, and WebM videos are supported", r))
		return
	}

	if err := os.MkdirAll(h.cfg.StoragePath, 0755); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to prepare storage", r))
		return
	}

	tmp, err := os.CreateTemp(h.cfg.StoragePath, "video-*"+filepath.Ext(header.Filename))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store upload", r))
		return
	}

	size := int64(0)
	_, err = tmp.Write(buf)
	if err == nil {
		var written int64
		written, err = io.Copy(tmp, file)
		size = int64(n) + written
	}
	tmp.Close()

	if err != nil {
		os.Remove(tmp.Name())
		if isBodyTooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				errorResp("FILE_TOO_LARGE", fmt.Sprintf("File size exceeds %dMB limit", h.cfg.MaxVideoMB), r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Failed to read upload", r))
		return
	}

	// Decodability + duration checks, before any processing begins
	meta, err := h.prober.Probe(r.Context(), tmp.Name())
	if err != nil {
		os.Remove(tmp.Name())
		log.Printf("Upload probe failed for %s: %v", header.Filename, err)
		writeJSON(w, http.StatusBadRequest, errorResp("UNSUPPORTED_MEDIA", "Could not decode the video file", r))
		return
	}

	if meta.DurationSeconds > h.cfg.MaxVideoSeconds {
		os.Remove(tmp.Name())
		writeJSON(w, http.StatusBadRequest,
			errorResp("VIDEO_TOO_LONG", fmt.Sprintf("Video duration exceeds %.0f seconds", h.cfg.MaxVideoSeconds), r))
		return
	}

	video := &models.VideoSource{
		Path:            tmp.Name(),
		MimeType:        mimeType,
		Filename:        header.Filename,
		SizeBytes:       size,
		DurationSeconds: meta.DurationSeconds,
		Width:           meta.Width,
		Height:          meta.Height,
		UploadedAt:      time.Now(),
	}

	// Replaces the previous video and discards any in-flight run's results.
	h.session.SetVideo(video)

	log.Printf("Video loaded: %s (%.1fs, %dx%d, %d bytes)",
		header.Filename, meta.DurationSeconds, meta.Width, meta.Height, size)

	writeJSON(w, http.StatusOK, models.UploadResponse{Video: *video})
}

// Process starts the sampling → captioning → summarization run for the
// currently loaded video.
func (h *VideoHandler) Process(w http.ResponseWriter, r *http.Request) {
	run, video, ctx, gen, err := h.session.BeginRun(context.Background())
	if err != nil {
		switch err {
		case session.ErrNoVideo:
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Upload a video first", r))
		case session.ErrRunActive:
			writeJSON(w, http.StatusConflict, errorResp("RUN_ACTIVE", "A processing run is already in progress", r))
		default:
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to start processing", r))
		}
		return
	}

	if err := h.pool.Enqueue(worker.Job{Run: run, Video: video, Ctx: ctx, Gen: gen}); err != nil {
		h.session.FailRun(gen, "queue", err.Error())
		writeJSON(w, http.StatusServiceUnavailable, errorResp("INTERNAL_ERROR", "Processing queue is full", r))
		return
	}

	writeJSON(w, http.StatusAccepted, run)
}

func (h *VideoHandler) Status(w http.ResponseWriter, r *http.Request) {
	run, ok := h.session.Run()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_READY", "No processing run has been started", r))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *VideoHandler) Frames(w http.ResponseWriter, r *http.Request) {
	frames := h.session.Frames()
	if len(frames) == 0 {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_READY", "No frames available; process a video first", r))
		return
	}

	records := make([]models.FrameRecord, len(frames))
	for i, f := range frames {
		records[i] = models.FrameRecord{
			Index:     f.Index,
			Timestamp: f.Timestamp,
			DataURI:   "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(f.JPEG),
			Caption:   f.Caption,
		}
	}

	writeJSON(w, http.StatusOK, models.FramesResponse{Frames: records})
}

func (h *VideoHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.session.Summary()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_READY", "No summary available; process a video first", r))
		return
	}
	writeJSON(w, http.StatusOK, models.SummaryResponse{Summary: summary})
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// detectVideoType sniffs the content type and falls back to the file
// extension for containers the sniffer reports as octet-stream.
func detectVideoType(head []byte, filename string) string {
	mimeType := http.DetectContentType(head)

	switch {
	case strings.HasPrefix(mimeType, "video/mp4"):
		return "video/mp4"
	case strings.HasPrefix(mimeType, "video/quicktime"):
		return "video/quicktime"
	case strings.HasPrefix(mimeType, "video/webm"):
		return "video/webm"
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	}

	return ""
}
