package gateway

import (
	"strings"
	"testing"
)

func TestBuildSummaryPrompt_PreservesCaptionOrder(t *testing.T) {
	captions := []string{"a street at dawn", "a cyclist passes", "the sun rises"}

	prompt := BuildSummaryPrompt(captions)

	for i, c := range captions {
		if !strings.Contains(prompt, c) {
			t.Errorf("Prompt missing caption %q", c)
		}
		if i > 0 {
			prev := strings.Index(prompt, captions[i-1])
			cur := strings.Index(prompt, c)
			if prev >= cur {
				t.Errorf("Caption order lost: %q appears before %q", c, captions[i-1])
			}
		}
	}

	if !strings.Contains(prompt, "1. a street at dawn") {
		t.Error("Captions should be numbered in chronological order")
	}
}

func TestBuildAnswerPrompt(t *testing.T) {
	prompt := BuildAnswerPrompt("what happens?", "a short summary", "User: hi\nAssistant: hello")

	for _, want := range []string{
		"Video Summary: a short summary",
		"Chat History:\nUser: hi\nAssistant: hello",
		"Question: what happens?",
		"Answer:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q:\n%s", want, prompt)
		}
	}

	// The video travels as file data; the prompt must tell the model it wins
	// over the summary on conflict.
	if !strings.Contains(prompt, "Prioritize information from the video") {
		t.Error("Prompt missing video-over-summary instruction")
	}
}

func TestBuildAnswerPrompt_OmitsEmptyHistory(t *testing.T) {
	prompt := BuildAnswerPrompt("first question", "summary", "")

	if strings.Contains(prompt, "Chat History:") {
		t.Error("Empty history should be omitted from the prompt")
	}
}
