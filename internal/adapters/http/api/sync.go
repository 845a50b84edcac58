package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/gmscan/internal/domain/model"
)

// SyncHandler handles backlog and bulk delivery requests.
type SyncHandler struct {
	deps Dependencies
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(deps Dependencies) *SyncHandler {
	return &SyncHandler{deps: deps}
}

type bulkRequest struct {
	Transactions []model.Transaction `json:"transactions"`
}

// HandleBacklog handles GET /sync/backlog requests.
func (h *SyncHandler) HandleBacklog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Backlog(r.Context())
	if err != nil {
		writeFailure(w, "api.backlog", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleFlush handles POST /sync/flush requests.
func (h *SyncHandler) HandleFlush(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Flush(r.Context())
	if err != nil {
		writeFailure(w, "api.flush", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleBulk handles POST /sync/bulk requests. An empty body uploads the
// backlog; a body with transactions imports them.
func (h *SyncHandler) HandleBulk(w http.ResponseWriter, r *http.Request) {
	const op = "api.bulk"
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var err error
	var body any
	if len(req.Transactions) == 0 {
		body, err = h.deps.UploadBacklog(r.Context())
	} else {
		body, err = h.deps.Import(r.Context(), req.Transactions)
	}
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
