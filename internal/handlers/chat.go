package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"visionchat-backend/internal/models"
	"visionchat-backend/internal/session"
)

// answerGateway is the question-answering capability of the model provider.
type answerGateway interface {
	Answer(ctx context.Context, videoPath, mimeType, question, summary, history string) (string, error)
}

type ChatHandler struct {
	session *session.Manager
	gateway answerGateway
}

func NewChatHandler(sess *session.Manager, gateway answerGateway) *ChatHandler {
	return &ChatHandler{
		session: sess,
		gateway: gateway,
	}
}

// Ask handles one conversation turn. The user's question is committed to the
// transcript before the model call; on failure it stays there with no
// assistant turn, and the conversation returns to idle so the user can retry.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	question := strings.TrimSpace(req.Message)
	if question == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message is required", r))
		return
	}

	chatCtx, gen, err := h.session.BeginChat(question)
	if err != nil {
		switch err {
		case session.ErrChatBusy:
			writeJSON(w, http.StatusConflict, errorResp("CHAT_BUSY", "Another question is still being answered", r))
		case session.ErrNoVideo, session.ErrNoSummary:
			writeJSON(w, http.StatusBadRequest, errorResp("NOT_READY", "Process a video before asking questions", r))
		default:
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to start chat", r))
		}
		return
	}

	answer, err := h.gateway.Answer(r.Context(), chatCtx.VideoPath, chatCtx.MimeType, question, chatCtx.Summary, chatCtx.History)
	if err != nil {
		h.session.FailChat(gen)
		log.Printf("Chat answer failed: %v", err)
		writeJSON(w, http.StatusBadGateway, errorResp("AI_ERROR", "Failed to get a response from the assistant", r))
		return
	}

	h.session.CompleteChat(gen, answer)

	writeJSON(w, http.StatusOK, models.ChatResponse{Reply: answer})
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ChatHistoryResponse{History: h.session.Transcript()})
}
