package handler

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"

	"pollhub/internal/domain"
	"pollhub/internal/middleware"
	"pollhub/internal/service"
	"pollhub/pkg/errors"

	"github.com/go-chi/chi/v5"
)

type PollHandler struct {
	pollService *service.PollService
}

func NewPollHandler(pollService *service.PollService) *PollHandler {
	return &PollHandler{
		pollService: pollService,
	}
}

// RegisterRoutes mounts the poll endpoints on the given router.
func (h *PollHandler) RegisterRoutes(r chi.Router) {
	r.Route("/polls", func(r chi.Router) {
		r.Get("/", h.ListPolls)
		r.Post("/", h.CreatePoll)
		r.Route("/{pollID}", func(r chi.Router) {
			r.Get("/", h.GetPoll)
			r.Put("/", h.UpdatePoll)
			r.Delete("/", h.DeletePoll)
			r.Post("/vote", h.CastVote)
			r.Delete("/vote", h.RemoveVote)
		})
	})
}

// ListPolls handles GET /api/v1/polls
func (h *PollHandler) ListPolls(w http.ResponseWriter, r *http.Request) {
	polls, err := h.pollService.ListPolls(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	etag := h.generateETag(polls)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=10")

	respondJSON(w, http.StatusOK, polls)
}

// GetPoll handles GET /api/v1/polls/{pollID}
func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "pollID")
	credential := middleware.CredentialFromContext(r.Context())

	detail, err := h.pollService.GetPoll(r.Context(), pollID, credential)
	if err != nil {
		respondError(w, err)
		return
	}

	// Responses enriched with the caller's vote must not be shared caches.
	if detail.UserHasVoted {
		w.Header().Set("Cache-Control", "private, no-store")
	} else {
		etag := h.generateETag(detail)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=10")
	}

	respondJSON(w, http.StatusOK, detail)
}

// CreatePoll handles POST /api/v1/polls
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	credential := middleware.CredentialFromContext(r.Context())

	var req domain.CreatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.NewValidationError("Invalid request body", nil))
		return
	}

	detail, err := h.pollService.CreatePoll(r.Context(), &req, credential)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, detail)
}

// UpdatePoll handles PUT /api/v1/polls/{pollID}
func (h *PollHandler) UpdatePoll(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "pollID")
	credential := middleware.CredentialFromContext(r.Context())

	var req domain.UpdatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.NewValidationError("Invalid request body", nil))
		return
	}

	detail, err := h.pollService.UpdatePoll(r.Context(), pollID, &req, credential)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// DeletePoll handles DELETE /api/v1/polls/{pollID}
func (h *PollHandler) DeletePoll(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "pollID")
	credential := middleware.CredentialFromContext(r.Context())

	if err := h.pollService.DeletePoll(r.Context(), pollID, credential); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":      pollID,
		"deleted": true,
	})
}

// CastVote handles POST /api/v1/polls/{pollID}/vote
func (h *PollHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "pollID")
	credential := middleware.CredentialFromContext(r.Context())

	var req domain.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.NewValidationError("Invalid request body", nil))
		return
	}

	result, err := h.pollService.CastVote(r.Context(), pollID, req.OptionID, credential)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// RemoveVote handles DELETE /api/v1/polls/{pollID}/vote
func (h *PollHandler) RemoveVote(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "pollID")
	credential := middleware.CredentialFromContext(r.Context())

	result, err := h.pollService.RemoveVote(r.Context(), pollID, credential)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *PollHandler) generateETag(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf(`"%x"`, hash)
}
