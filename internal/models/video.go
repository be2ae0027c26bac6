package models

import "time"

// VideoSource is the currently loaded video. Immutable once set; replaced
// wholesale when the user uploads a new file.
type VideoSource struct {
	Path            string    `json:"-"`
	MimeType        string    `json:"mime_type"`
	Filename        string    `json:"filename"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds float64   `json:"duration_seconds"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	UploadedAt      time.Time `json:"uploaded_at"`
}

// Frame is one rasterized still plus the timestamp it was extracted at.
// Caption is filled in by the analysis pipeline; JPEG never changes after
// extraction.
type Frame struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	JPEG      []byte  `json:"-"`
	Caption   string  `json:"caption"`
}

// FrameRecord is the wire shape for a frame: the image travels as a data URI,
// matching what the carousel on the frontend consumes.
type FrameRecord struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	DataURI   string  `json:"data_uri"`
	Caption   string  `json:"caption"`
}

type UploadResponse struct {
	Video VideoSource `json:"video"`
}

type FramesResponse struct {
	Frames []FrameRecord `json:"frames"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
}
