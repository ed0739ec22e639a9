package messaging

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arcagent/gateway/internal/agent"
	"github.com/arcagent/gateway/pkg/logging"
)

// TranscriptsHandler serves the message audit trail for operators.
type TranscriptsHandler struct {
	store  *agent.TranscriptStore
	logger *logging.Logger
}

// NewTranscriptsHandler wraps the transcript store.
func NewTranscriptsHandler(store *agent.TranscriptStore, logger *logging.Logger) *TranscriptsHandler {
	if store == nil {
		panic("messaging: transcript store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TranscriptsHandler{store: store, logger: logger}
}

// GetTranscript handles GET /admin/transcripts/{sender}?limit=N.
func (h *TranscriptsHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	sender := NormalizeSender(chi.URLParam(r, "sender"))
	if sender == "" {
		http.Error(w, "sender is required", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := h.store.Recent(r.Context(), sender, limit)
	if err != nil {
		h.logger.Error("failed to load transcript", "error", err, "sender", sender)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	type entryDTO struct {
		Direction string `json:"direction"`
		Body      string `json:"body"`
		CreatedAt string `json:"created_at"`
	}
	out := struct {
		Sender  string     `json:"sender"`
		Entries []entryDTO `json:"entries"`
	}{Sender: sender, Entries: make([]entryDTO, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, entryDTO{
			Direction: e.Direction,
			Body:      e.Body,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
