package media

import "testing"

func TestParseProbeOutput(t *testing.T) {
	out := []byte(`{
		"streams": [
			{"codec_type": "audio"},
			{"codec_type": "video", "width": 1280, "height": 720}
		],
		"format": {"duration": "29.970000"}
	}`)

	meta, err := parseProbeOutput(out)
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}

	if meta.DurationSeconds != 29.97 {
		t.Errorf("Expected duration 29.97, got %v", meta.DurationSeconds)
	}
	if meta.Width != 1280 || meta.Height != 720 {
		t.Errorf("Expected 1280x720, got %dx%d", meta.Width, meta.Height)
	}
}

func TestParseProbeOutput_Invalid(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"not json", "ffprobe exploded"},
		{"missing duration", `{"streams":[{"codec_type":"video","width":640,"height":480}],"format":{}}`},
		{"zero duration", `{"streams":[{"codec_type":"video","width":640,"height":480}],"format":{"duration":"0"}}`},
		{"no video stream", `{"streams":[{"codec_type":"audio"}],"format":{"duration":"10.0"}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseProbeOutput([]byte(tc.out)); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
