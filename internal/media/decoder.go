package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// Metadata holds the probed properties of an uploaded video.
type Metadata struct {
	DurationSeconds float64
	Width           int
	Height          int
}

// Decoder rasterizes single frames out of a video file by shelling out to
// ffmpeg/ffprobe. It is the only component that touches the media container.
type Decoder struct {
	ffmpegPath  string
	ffprobePath string
}

func NewDecoder(ffmpegPath, ffprobePath string) *Decoder {
	return &Decoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// Probe reads container metadata. A probe failure means the media is
// undecodable and the upload must be rejected before any processing starts.
func (d *Decoder) Probe(ctx context.Context, path string) (*Metadata, error) {
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %v: %s", err, stderr.String())
	}

	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(out []byte) (*Metadata, error) {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return nil, fmt.Errorf("could not determine video duration")
	}

	meta := &Metadata{DurationSeconds: duration}
	for _, s := range probe.Streams {
		if s.CodecType == "video" {
			meta.Width = s.Width
			meta.Height = s.Height
			break
		}
	}
	if meta.Width == 0 || meta.Height == 0 {
		return nil, fmt.Errorf("no video stream found")
	}

	return meta, nil
}

// ExtractFrameAt seeks to the given timestamp and rasterizes the decoded
// frame as JPEG bytes. One call, one frame, one success/failure outcome.
func (d *Decoder) ExtractFrameAt(ctx context.Context, path string, seconds float64) ([]byte, error) {
	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg seek to %.3fs failed: %v: %s", seconds, err, stderr.String())
	}

	frame := stdout.Bytes()
	if len(frame) == 0 {
		return nil, fmt.Errorf("no frame decoded at %.3fs", seconds)
	}

	return frame, nil
}
