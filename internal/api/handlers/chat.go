package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/medibot/internal/apperr"
	"github.com/nikhilbhutani/medibot/internal/llm"
	"github.com/nikhilbhutani/medibot/internal/rag"
)

const (
	internalErrorDetail = "Internal server error. Please try again later."
	notReadyDetail      = "Service is starting up. Please try again shortly."
	maxChatBodyBytes    = 1 << 20
)

type ChatRequest struct {
	Question    string        `json:"question"`
	ChatHistory []llm.Message `json:"chat_history"`
}

type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

type ChatHandler struct {
	answerer  rag.Answerer
	readiness *rag.Readiness
	logger    *slog.Logger
}

func NewChatHandler(answerer rag.Answerer, readiness *rag.Readiness, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{answerer: answerer, readiness: readiness, logger: logger}
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeDetail(w, http.StatusBadRequest, "question required")
		return
	}

	if err := h.readiness.Require(rag.Queryable); err != nil {
		writeDetail(w, http.StatusServiceUnavailable, notReadyDetail)
		return
	}

	ans, err := h.answerer.Answer(r.Context(), rag.AnswerRequest{
		Question: req.Question,
		History:  req.ChatHistory,
	})
	if err != nil {
		h.logger.Error("chat request failed",
			"request_id", chimiddleware.GetReqID(r.Context()),
			"kind", apperr.Classify(err).String(),
			"error", err,
		)
		if errors.Is(err, apperr.ErrPrecondition) {
			writeDetail(w, http.StatusServiceUnavailable, notReadyDetail)
			return
		}
		writeDetail(w, http.StatusInternalServerError, internalErrorDetail)
		return
	}

	sources := ans.Sources
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, ChatResponse{Answer: ans.Answer, Sources: sources})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
