package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/okian/gmscan/internal/domain/model"
)

// TeamsHandler handles score and adjustment requests.
type TeamsHandler struct {
	deps Dependencies
}

// NewTeamsHandler creates a new teams handler.
func NewTeamsHandler(deps Dependencies) *TeamsHandler {
	return &TeamsHandler{deps: deps}
}

type adjustmentRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// HandleScores handles GET /teams/scores requests.
func (h *TeamsHandler) HandleScores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.deps.GetTeamScores(r.Context())
	if err != nil {
		writeFailure(w, "api.team_scores", err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

// HandleAuthoritative handles GET /teams/authoritative requests.
func (h *TeamsHandler) HandleAuthoritative(w http.ResponseWriter, r *http.Request) {
	scores, err := h.deps.AuthoritativeScores(r.Context())
	if err != nil {
		writeFailure(w, "api.authoritative_scores", err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

// HandleTransactions handles GET /teams/{teamID}/transactions requests.
func (h *TeamsHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.deps.GetTeamTransactions(r.Context(), mux.Vars(r)["teamID"])
	if err != nil {
		writeFailure(w, "api.team_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// HandleAdjust handles POST /teams/{teamID}/adjustments requests.
func (h *TeamsHandler) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	const op = "api.adjust"
	var req adjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Delta == 0 || strings.TrimSpace(req.Reason) == "" {
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, errors.New("delta and reason are required")))
		return
	}

	score, err := h.deps.AddAdjustment(r.Context(), mux.Vars(r)["teamID"], model.Adjustment{
		Delta:  req.Delta,
		Reason: req.Reason,
		Actor:  req.Actor,
	})
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}
