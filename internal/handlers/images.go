package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"blogapi/internal/middleware"
	"blogapi/internal/token"
)

type tokenRequest struct {
	ImagePath string `json:"image_path"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// HandleToken signs a short-lived capability for one image path.
func (h *BlogHandler) HandleToken() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.clientError(w, "invalid request body")
			return
		}

		signed, err := h.Tokens.Issue(r.Context(), req.ImagePath)
		if err != nil {
			if errors.Is(err, token.ErrImageNotFound) {
				h.Metrics.TokenRejectsTotal.Add(r.Context(), 1)
				h.notFound(w, "image not found")
				return
			}
			h.internalError(w, r, err)
			return
		}

		h.Metrics.TokensIssuedTotal.Add(r.Context(), 1)
		h.writeJSON(w, http.StatusOK, tokenResponse{Token: signed})
	})
}

// HandleImageByToken re-validates the presented token and streams the
// blob. Every failure mode gets the same 404 body; the distinction lives
// in the logs only.
func (h *BlogHandler) HandleImageByToken() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		imagePath := r.URL.Query().Get("image_path")
		tokenStr := r.URL.Query().Get("token")

		data, err := h.Tokens.Fetch(r.Context(), imagePath, tokenStr)
		if err != nil {
			h.Metrics.TokenRejectsTotal.Add(r.Context(), 1)
			h.notFound(w, "not found")
			return
		}

		h.Metrics.ImagesServedTotal.Add(r.Context(), 1)

		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			middleware.RequestLogger(r.Context(), h.Logger).Warn("stream interrupted", "err", err)
		}
	})
}
