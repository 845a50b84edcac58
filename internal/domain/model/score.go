package model

import "time"

// GroupInfo is the parsed form of a token's group string.
type GroupInfo struct {
	Name       string `json:"name"`
	Multiplier int    `json:"multiplier"`
}

// Adjustment is a manual score change applied by an administrator.
type Adjustment struct {
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
}

// TeamScore is derived from a team's full transaction set. TotalScore is
// always BaseScore + BonusScore; adjustments sit on top of it.
type TeamScore struct {
	TeamID          string       `json:"teamId"`
	BaseScore       int          `json:"baseScore"`
	BonusScore      int          `json:"bonusScore"`
	TotalScore      int          `json:"totalScore"`
	TokensScanned   int          `json:"tokensScanned"`
	CompletedGroups []string     `json:"completedGroups"`
	Adjustments     []Adjustment `json:"adjustments,omitempty"`
}

// AdjustmentTotal sums all adjustment deltas.
func (s *TeamScore) AdjustmentTotal() int {
	total := 0
	for _, a := range s.Adjustments {
		total += a.Delta
	}
	return total
}

// AdjustedTotal is TotalScore plus adjustments.
func (s *TeamScore) AdjustedTotal() int {
	return s.TotalScore + s.AdjustmentTotal()
}

// RankedTeam is one row of the team standings.
type RankedTeam struct {
	Rank     int `json:"rank"`
	Adjusted int `json:"adjustedTotal"`
	TeamScore
}

// SessionStats summarises the local session for display layers.
type SessionStats struct {
	TotalScans      int          `json:"totalScans"`
	UniqueTokens    int          `json:"uniqueTokens"`
	ScansByMode     map[Mode]int `json:"scansByMode"`
	Teams           int          `json:"teams"`
	TotalScore      int          `json:"totalScore"`
	BacklogLength   int          `json:"backlogLength"`
	Connected       bool         `json:"connected"`
	LastScanAt      *time.Time   `json:"lastScanAt,omitempty"`
	DeliveredScans  int64        `json:"deliveredScans"`
	QueuedScans     int64        `json:"queuedScans"`
	RejectedByGuard int64        `json:"rejectedByGuard"`
}
