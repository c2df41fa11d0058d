package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nivkeidan/hmochat"
	"github.com/nivkeidan/hmochat/model"
)

type handler struct {
	engine *hmochat.Engine
}

func newHandler(e *hmochat.Engine) *handler {
	return &handler{engine: e}
}

// POST /chat
func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserInput == "" {
		writeError(w, http.StatusBadRequest, "user_input is required")
		return
	}

	resp, err := h.engine.HandleChat(ctx, &req)
	if err != nil {
		// Only context cancellation reaches here; upstream failures come
		// back as fallback responses.
		writeError(w, http.StatusServiceUnavailable, "request cancelled or timed out")
		slog.Error("chat error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"kb_fingerprint": h.engine.KBFingerprint(),
		"kb_chunks":      h.engine.KBSize(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
