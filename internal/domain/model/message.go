package model

import (
	"encoding/json"
	"time"
)

// Live channel message types.
const (
	MsgTransactionSubmit = "transaction:submit"
	MsgTransactionResult = "transaction:result"
	MsgBatchAck          = "batch:ack"
	MsgScoreUpdated      = "score:updated"
)

// Result statuses reported by the orchestrator.
const (
	StatusAccepted  = "accepted"
	StatusDuplicate = "duplicate"
	StatusError     = "error"
)

// Envelope is one frame on the live channel.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(msgType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Data: raw, Timestamp: time.Now().UTC()}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// SubmitRequest is the payload of transaction:submit.
type SubmitRequest struct {
	SubmissionID string      `json:"submissionId"`
	Transaction  Transaction `json:"transaction"`
}

// SubmitResult is the payload of transaction:result.
type SubmitResult struct {
	SubmissionID string `json:"submissionId,omitempty"`
	TokenID      string `json:"tokenId"`
	TeamID       string `json:"teamId"`
	Status       string `json:"status"`
	Points       int    `json:"points"`
	Message      string `json:"message,omitempty"`
}

// BatchRequest is the body posted to the bulk endpoint.
type BatchRequest struct {
	BatchID      string        `json:"batchId"`
	Transactions []Transaction `json:"transactions"`
}

// BatchResponse is the bulk endpoint's reply.
type BatchResponse struct {
	ProcessedCount int `json:"processedCount"`
	TotalCount     int `json:"totalCount"`
}

// BatchAck is the payload of batch:ack.
type BatchAck struct {
	BatchID string `json:"batchId"`
	Count   int    `json:"count"`
}

// ScoreUpdate is the payload of score:updated, the orchestrator's view of a team.
type ScoreUpdate struct {
	TeamID          string    `json:"teamId"`
	CurrentScore    int       `json:"currentScore"`
	BaseScore       int       `json:"baseScore"`
	BonusPoints     int       `json:"bonusPoints"`
	TokensScanned   int       `json:"tokensScanned"`
	CompletedGroups []string  `json:"completedGroups"`
	LastUpdate      time.Time `json:"lastUpdate"`
}
