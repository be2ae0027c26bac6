package gateway

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the three model capabilities the pipeline and the
// conversation depend on: caption an image, summarize captions, and answer a
// question grounded in the full video.
type Gemini struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
}

func NewGemini(ctx context.Context, apiKey, modelName string, concurrentReqs int) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.3)
	model.SetTopP(0.95)

	// Token bucket for limiting concurrent requests
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &Gemini{
		client:   client,
		model:    model,
		rateChan: rateChan,
	}, nil
}

func (g *Gemini) Close() {
	g.client.Close()
}

// acquireRate blocks until a rate slot is available
func (g *Gemini) acquireRate(ctx context.Context) error {
	select {
	case <-g.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (g *Gemini) releaseRate() {
	g.rateChan <- struct{}{}
}

// Caption describes a single frame. An empty model response is an error, not
// a low-confidence caption; callers must be able to tell the two apart.
func (g *Gemini) Caption(ctx context.Context, jpeg []byte) (string, error) {
	if err := g.acquireRate(ctx); err != nil {
		return "", err
	}
	defer g.releaseRate()

	prompt := "Write one concise sentence describing what is shown in this video frame. Return plain text only."

	resp, err := g.model.GenerateContent(ctx,
		genai.ImageData("jpeg", jpeg),
		genai.Text(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("Gemini caption error: %w", err)
	}

	caption := strings.TrimSpace(extractText(resp))
	if caption == "" {
		return "", fmt.Errorf("Gemini returned empty caption")
	}

	return caption, nil
}

// Summarize turns the ordered caption list into a single narrative summary.
func (g *Gemini) Summarize(ctx context.Context, captions []string) (string, error) {
	if err := g.acquireRate(ctx); err != nil {
		return "", err
	}
	defer g.releaseRate()

	if len(captions) == 0 {
		return "", fmt.Errorf("no captions to summarize")
	}

	prompt := BuildSummaryPrompt(captions)

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini summary error: %w", err)
	}

	summary := strings.TrimSpace(extractText(resp))
	if summary == "" {
		return "", fmt.Errorf("Gemini returned empty summary")
	}

	return summary, nil
}

// Answer responds to a question grounded in the full original video, the
// generated summary, and the serialized chat history. The video is pushed
// through the Gemini File API and referenced by URI.
func (g *Gemini) Answer(ctx context.Context, videoPath, mimeType, question, summary, history string) (string, error) {
	if err := g.acquireRate(ctx); err != nil {
		return "", err
	}
	defer g.releaseRate()

	f, err := os.Open(videoPath)
	if err != nil {
		return "", fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	file, err := g.client.UploadFile(ctx, "", f, &genai.UploadFileOptions{
		DisplayName: "session-video",
		MIMEType:    mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload video to Gemini: %w", err)
	}

	// Ensure remote file is cleaned up
	defer g.client.DeleteFile(context.Background(), file.Name)

	// Wait until file is active
	for i := 0; i < 30; i++ {
		current, getErr := g.client.GetFile(ctx, file.Name)
		if getErr != nil {
			return "", fmt.Errorf("failed to get uploaded file status: %w", getErr)
		}

		if current.State == genai.FileStateActive {
			file = current
			break
		}
		if current.State == genai.FileStateFailed {
			return "", fmt.Errorf("Gemini failed to process uploaded video")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if file.State != genai.FileStateActive {
		return "", fmt.Errorf("video file did not become active in time")
	}

	prompt := BuildAnswerPrompt(question, summary, history)

	resp, err := g.model.GenerateContent(ctx,
		genai.FileData{MIMEType: mimeType, URI: file.URI},
		genai.Text(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("Gemini answer error: %w", err)
	}

	answer := strings.TrimSpace(extractText(resp))
	if answer == "" {
		return "", fmt.Errorf("Gemini returned empty answer")
	}

	return answer, nil
}

// BuildSummaryPrompt assembles the summarization prompt over the ordered
// caption list. Caption order carries the video's chronology.
func BuildSummaryPrompt(captions []string) string {
	var b strings.Builder
	b.WriteString("The following are captions of frames sampled from a video, in chronological order. ")
	b.WriteString("Write a short narrative summary of what happens in the video. Return plain text only.\n\n")
	for i, c := range captions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	return b.String()
}

// BuildAnswerPrompt assembles the grounded question-answering prompt. The
// video itself travels separately as file data; on conflict the model is told
// to trust the video over the summary.
func BuildAnswerPrompt(question, summary, history string) string {
	var b strings.Builder
	b.WriteString("You are a chatbot that answers questions about a video. ")
	b.WriteString("Use the provided video and its summary to answer the user's question accurately. ")
	b.WriteString("Prioritize information from the video itself over the summary if there is a conflict.\n\n")
	fmt.Fprintf(&b, "Video Summary: %s\n\n", summary)
	if history != "" {
		fmt.Fprintf(&b, "Chat History:\n%s\n\n", history)
	}
	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", question)
	return b.String()
}

func extractText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}
