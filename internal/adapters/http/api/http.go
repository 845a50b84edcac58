// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/okian/gmscan/internal/adapters/kv"
	"github.com/okian/gmscan/internal/adapters/mq/queue"
	"github.com/okian/gmscan/internal/adapters/repository"
	service "github.com/okian/gmscan/internal/app"
	"github.com/okian/gmscan/internal/delivery"
	"github.com/okian/gmscan/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	StatsProvider

	ProcessScan(ctx context.Context, req service.ScanRequest) (service.ScanResult, error)
	DeleteTransaction(ctx context.Context, id string) (model.Transaction, error)
	Transactions(ctx context.Context) ([]model.Transaction, error)
	GetSessionStats(ctx context.Context) (model.SessionStats, error)
	GetTeamScores(ctx context.Context) ([]model.RankedTeam, error)
	GetTeamTransactions(ctx context.Context, teamID string) ([]model.Transaction, error)
	AddAdjustment(ctx context.Context, teamID string, adj model.Adjustment) (model.TeamScore, error)
	AuthoritativeScores(ctx context.Context) ([]model.ScoreUpdate, error)
	Backlog(ctx context.Context) ([]model.QueueEntry, error)
	Flush(ctx context.Context) (delivery.FlushReport, error)
	UploadBacklog(ctx context.Context) (delivery.BatchResult, error)
	Import(ctx context.Context, txs []model.Transaction) (delivery.BatchResult, error)
}

// Server wires HTTP routes for the scanner API.
type Server struct {
	healthHandler *HealthHandler
	scanHandler   *ScanHandler
	teamsHandler  *TeamsHandler
	syncHandler   *SyncHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler: NewHealthHandler(deps),
		scanHandler:   NewScanHandler(deps),
		teamsHandler:  NewTeamsHandler(deps),
		syncHandler:   NewSyncHandler(deps),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	r.HandleFunc("/healthz", instrument(s.healthHandler.HandleHealth)).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.healthHandler.HandleMetrics).Methods(http.MethodGet)

	r.HandleFunc("/scan", instrument(s.scanHandler.HandleScan)).Methods(http.MethodPost)
	r.HandleFunc("/transactions", instrument(s.scanHandler.HandleList)).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{id}", instrument(s.scanHandler.HandleDelete)).Methods(http.MethodDelete)
	r.HandleFunc("/stats", instrument(s.scanHandler.HandleStats)).Methods(http.MethodGet)

	r.HandleFunc("/teams/scores", instrument(s.teamsHandler.HandleScores)).Methods(http.MethodGet)
	r.HandleFunc("/teams/authoritative", instrument(s.teamsHandler.HandleAuthoritative)).Methods(http.MethodGet)
	r.HandleFunc("/teams/{teamID}/transactions", instrument(s.teamsHandler.HandleTransactions)).Methods(http.MethodGet)
	r.HandleFunc("/teams/{teamID}/adjustments", instrument(s.teamsHandler.HandleAdjust)).Methods(http.MethodPost)

	r.HandleFunc("/sync/backlog", instrument(s.syncHandler.HandleBacklog)).Methods(http.MethodGet)
	r.HandleFunc("/sync/flush", instrument(s.syncHandler.HandleFlush)).Methods(http.MethodPost)
	r.HandleFunc("/sync/bulk", instrument(s.syncHandler.HandleBulk)).Methods(http.MethodPost)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a service error to a status and error code.
func writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, repository.ErrInvalidTransaction),
		errors.Is(err, repository.ErrMissingTeam),
		errors.Is(err, delivery.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, kv.ErrPersist), errors.Is(err, kv.ErrQuotaExceeded):
		writeError(w, http.StatusInsufficientStorage, "storage_failure", WrapKind(op, ErrStorage, err))
	case errors.Is(err, delivery.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync_in_progress", WrapKind(op, ErrConflict, err))
	case errors.Is(err, service.ErrNotNetworked),
		errors.Is(err, service.ErrNotStarted),
		errors.Is(err, delivery.ErrNoBatchPoster):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	case errors.Is(err, delivery.ErrBatchAckTimeout), errors.Is(err, delivery.ErrAckTimeout):
		writeError(w, http.StatusGatewayTimeout, "timeout", WrapKind(op, ErrTimeout, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
	}
}
