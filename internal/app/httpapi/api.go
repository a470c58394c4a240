// Package httpapi exposes the REST handlers and translates HTTP requests to
// the ledger and projection services.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/livepoll/livepoll/internal/app/likes"
	"github.com/livepoll/livepoll/internal/app/projection"
	"github.com/livepoll/livepoll/internal/app/votes"
	"github.com/livepoll/livepoll/internal/domain"
	"github.com/livepoll/livepoll/internal/platform/metrics"
	"github.com/livepoll/livepoll/internal/platform/ratelimit"
)

// userIDHeader is where the auth middleware (external to this service) puts
// the authenticated identity.
const userIDHeader = "X-User-ID"

// API bundles the HTTP handlers bound to the ledgers, the projector and the
// logger.
type API struct {
	likes     domain.LikeLedger
	votes     domain.VoteLedger
	projector domain.Projector
	logger    *slog.Logger
}

func New(likeLedger domain.LikeLedger, voteLedger domain.VoteLedger, projector domain.Projector, logger *slog.Logger) *API {
	return &API{
		likes:     likeLedger,
		votes:     voteLedger,
		projector: projector,
		logger:    logger,
	}
}

func (a *API) Register(mux *http.ServeMux) {
	// Routes stay centralized so tests and alternative servers can reuse them.
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/like/", a.handleLike)
	mux.HandleFunc("/votes", a.handleVotes)
	mux.HandleFunc("/polls/", a.handlePollDetails)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) handleLike(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/like/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case parts[0] == "user" && len(parts) == 1 && r.Method == http.MethodGet:
		a.listUserLikes(w, r)
	case parts[0] == "poll" && len(parts) == 2 && r.Method == http.MethodGet:
		a.listPollLikes(w, r, domain.PollID(parts[1]))
	case len(parts) == 1 && r.Method == http.MethodPost:
		a.createLike(w, r, domain.PollID(parts[0]))
	case len(parts) == 1 && r.Method == http.MethodDelete:
		a.removeLike(w, r, domain.PollID(parts[0]))
	default:
		http.NotFound(w, r)
	}
}

func (a *API) createLike(w http.ResponseWriter, r *http.Request, pollID domain.PollID) {
	userID, ok := a.identity(w, r)
	if !ok {
		metrics.ObserveLikeRequest("unauthorized")
		return
	}

	like, err := a.likes.Create(r.Context(), pollID, userID)
	if err != nil {
		status := statusFromError(err)
		metrics.ObserveLikeRequest(status)
		a.logger.Warn("like rejected", "err", err, "poll", pollID, "user", userID, "status", status)
		respondError(w, err)
		return
	}

	metrics.ObserveLikeRequest("accepted")
	respondJSON(w, http.StatusCreated, "Poll liked successfully", like)
	a.logger.Info("poll liked", "poll", pollID, "user", userID)
}

func (a *API) removeLike(w http.ResponseWriter, r *http.Request, pollID domain.PollID) {
	userID, ok := a.identity(w, r)
	if !ok {
		metrics.ObserveLikeRequest("unauthorized")
		return
	}

	if err := a.likes.Remove(r.Context(), pollID, userID); err != nil {
		status := statusFromError(err)
		metrics.ObserveLikeRequest(status)
		a.logger.Warn("unlike rejected", "err", err, "poll", pollID, "user", userID, "status", status)
		respondError(w, err)
		return
	}

	metrics.ObserveLikeRequest("accepted")
	respondJSON(w, http.StatusOK, "Like removed successfully", nil)
	a.logger.Info("poll unliked", "poll", pollID, "user", userID)
}

func (a *API) listUserLikes(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.identity(w, r)
	if !ok {
		return
	}

	result, err := a.likes.ListByUser(r.Context(), userID)
	if err != nil {
		a.logger.Error("failed to list user likes", "err", err, "user", userID)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, "User likes fetched successfully", result)
}

func (a *API) listPollLikes(w http.ResponseWriter, r *http.Request, pollID domain.PollID) {
	result, err := a.likes.ListByPoll(r.Context(), pollID)
	if err != nil {
		a.logger.Error("failed to list poll likes", "err", err, "poll", pollID)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, "Poll likes fetched successfully", result)
}

type voteRequest struct {
	PollID   string `json:"pollId"`
	OptionID string `json:"optionId"`
}

func (a *API) handleVotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := a.identity(w, r)
	if !ok {
		metrics.ObserveVoteRequest("unauthorized")
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ObserveVoteRequest("invalid_payload")
		a.logger.Warn("invalid vote payload", "err", err)
		respondJSON(w, http.StatusBadRequest, "invalid payload", nil)
		return
	}

	vote, err := a.votes.Cast(r.Context(), domain.PollID(req.PollID), userID, domain.OptionID(req.OptionID))
	if err != nil {
		status := statusFromError(err)
		metrics.ObserveVoteRequest(status)
		a.logger.Warn("vote rejected", "err", err, "poll", req.PollID, "option", req.OptionID, "status", status)
		respondError(w, err)
		return
	}

	metrics.ObserveVoteRequest("accepted")
	respondJSON(w, http.StatusCreated, "Vote submitted successfully", vote)
	a.logger.Info("vote recorded", "poll", req.PollID, "option", req.OptionID, "user", userID)
}

func (a *API) handlePollDetails(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/polls/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	id := domain.PollID(parts[0])

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		a.getPoll(w, r, id)
	case len(parts) == 2 && parts[1] == "vote" && r.Method == http.MethodGet:
		a.getSelectedOption(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) getPoll(w http.ResponseWriter, r *http.Request, id domain.PollID) {
	snapshot, err := a.projector.Project(r.Context(), id)
	if err != nil {
		a.logger.Warn("projection failed", "err", err, "poll", id)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, "Poll fetched successfully", snapshot)
}

// getSelectedOption tells the caller which option they voted for, data null
// when they have not voted yet.
func (a *API) getSelectedOption(w http.ResponseWriter, r *http.Request, id domain.PollID) {
	userID, ok := a.identity(w, r)
	if !ok {
		return
	}

	vote, err := a.votes.Find(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondJSON(w, http.StatusOK, "No vote recorded", nil)
			return
		}
		a.logger.Error("failed to fetch vote", "err", err, "poll", id, "user", userID)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, "Vote fetched successfully", map[string]string{"optionId": string(vote.OptionID)})
}

// identity extracts the authenticated user from the request. The header is
// the seam where the real auth layer plugs in; missing identity is a 401.
func (a *API) identity(w http.ResponseWriter, r *http.Request) (domain.UserID, bool) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		respondJSON(w, http.StatusUnauthorized, "authentication required", nil)
		return "", false
	}
	return domain.UserID(userID), true
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: status < 400,
		Message: message,
		Data:    data,
	})
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, likes.ErrAlreadyLiked),
		errors.Is(err, likes.ErrNotLiked),
		errors.Is(err, votes.ErrAlreadyVoted),
		errors.Is(err, votes.ErrInvalidOption):
		status = http.StatusBadRequest
	case errors.Is(err, likes.ErrPollNotFound),
		errors.Is(err, votes.ErrPollNotFound),
		errors.Is(err, projection.ErrPollNotFound),
		errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		status = http.StatusTooManyRequests
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Do not leak storage internals in the response body.
		message = "internal server error"
	}
	respondJSON(w, status, message, nil)
}

func statusFromError(err error) string {
	switch {
	case errors.Is(err, likes.ErrAlreadyLiked):
		return "already_liked"
	case errors.Is(err, likes.ErrNotLiked):
		return "not_liked"
	case errors.Is(err, votes.ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, votes.ErrInvalidOption):
		return "invalid_option"
	case errors.Is(err, likes.ErrPollNotFound),
		errors.Is(err, votes.ErrPollNotFound),
		errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return "rate_limited"
	default:
		return "error"
	}
}
