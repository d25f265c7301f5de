package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type contestsHandler struct {
	encoder encoder
	log     zerolog.Logger
	repo    domain.ContestRepo
}

func newContestsHandler(encoder encoder, log zerolog.Logger, repo domain.ContestRepo) *contestsHandler {
	return &contestsHandler{
		encoder: encoder,
		log:     log,
		repo:    repo,
	}
}

func (h contestsHandler) Routes(r chi.Router) {
	r.Get("/", h.list)
}

// defaultContestLimit caps the listing response. It doubles as the
// ceiling for caller-supplied limits.
const defaultContestLimit = 100

type contestsResponse struct {
	Contests    []domain.Contest `json:"contests"`
	Total       int              `json:"total"`
	LastUpdated time.Time        `json:"last_updated"`
}

// list returns upcoming contests ordered by start time. The platform
// query parameter may repeat to filter to a subset of platforms, and
// limit caps the result size.
func (h contestsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var platforms []domain.Platform
	for _, raw := range r.URL.Query()["platform"] {
		p := domain.Platform(raw)
		if !p.IsValid() {
			h.encoder.StatusResponse(ctx, w, errorResponse{
				Message: "unknown platform: " + raw,
				Status:  http.StatusBadRequest,
			}, http.StatusBadRequest)
			return
		}
		platforms = append(platforms, p)
	}

	limit := defaultContestLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.encoder.StatusResponse(ctx, w, errorResponse{
				Message: "invalid limit: " + raw,
				Status:  http.StatusBadRequest,
			}, http.StatusBadRequest)
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	contests, err := h.repo.FindUpcoming(ctx, time.Now().UTC(), platforms, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Contests: Failed to list upcoming contests")
		h.encoder.StatusInternalError(w)
		return
	}

	if contests == nil {
		contests = []domain.Contest{}
	}

	var lastUpdated time.Time
	for _, c := range contests {
		if c.UpdatedAt.After(lastUpdated) {
			lastUpdated = c.UpdatedAt
		}
	}

	h.encoder.StatusResponse(ctx, w, contestsResponse{
		Contests:    contests,
		Total:       len(contests),
		LastUpdated: lastUpdated,
	}, http.StatusOK)
}
