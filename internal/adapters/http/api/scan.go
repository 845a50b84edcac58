package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	service "github.com/okian/gmscan/internal/app"
	"github.com/okian/gmscan/internal/domain/model"
)

// ScanHandler handles scan and transaction requests.
type ScanHandler struct {
	deps Dependencies
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(deps Dependencies) *ScanHandler {
	return &ScanHandler{deps: deps}
}

type scanRequest struct {
	TokenID string `json:"tokenId"`
	TeamID  string `json:"teamId"`
	Mode    string `json:"mode"`
}

func (s scanRequest) validate() error {
	switch {
	case strings.TrimSpace(s.TokenID) == "":
		return errors.New("missing tokenId")
	case strings.TrimSpace(s.TeamID) == "":
		return errors.New("missing teamId")
	case !model.Mode(s.Mode).Valid():
		return errors.New("mode must be detective or blackmarket")
	}
	return nil
}

// HandleScan handles POST /scan requests.
func (h *ScanHandler) HandleScan(w http.ResponseWriter, r *http.Request) {
	const op = "api.scan"
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.ProcessScan(r.Context(), service.ScanRequest{
		TokenID: strings.TrimSpace(req.TokenID),
		TeamID:  strings.TrimSpace(req.TeamID),
		Mode:    model.Mode(req.Mode),
	})
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if res.Outcome == service.OutcomeDuplicate {
		writeError(w, http.StatusConflict, "duplicate_token", NewKind(op, ErrDuplicate))
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleList handles GET /transactions requests.
func (h *ScanHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	txs, err := h.deps.Transactions(r.Context())
	if err != nil {
		writeFailure(w, "api.transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// HandleDelete handles DELETE /transactions/{id} requests.
func (h *ScanHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	tx, err := h.deps.DeleteTransaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeFailure(w, "api.delete_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// HandleStats handles GET /stats requests.
func (h *ScanHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.GetSessionStats(r.Context())
	if err != nil {
		writeFailure(w, "api.stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
