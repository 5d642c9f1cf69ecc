package handlers

import (
	"encoding/json"
	"net/http"

	"blogapi/internal/middleware"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (h *BlogHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("writing response", "err", err)
	}
}

// clientError surfaces the message verbatim, it is the client's mistake
func (h *BlogHandler) clientError(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// notFound keeps one generic body across every cause so callers cannot
// probe what exists on the other side
func (h *BlogHandler) notFound(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusNotFound, errorResponse{Error: msg})
}

// internalError logs the real cause and hands the caller a generic body,
// internal paths never leak
func (h *BlogHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.RequestLogger(r.Context(), h.Logger).Error("500 internal server error", "err", err, "path", r.URL.Path)
	h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}
