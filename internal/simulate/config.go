// Package simulate generates scan traffic against a running scanner API and
// checks that the reported session state matches what was submitted.
package simulate

import (
	"errors"
	"time"
)

// Defaults for the scan simulation.
const (
	DefaultScans          = 200
	DefaultTeams          = 5
	DefaultWorkers        = 4
	DefaultTimeout        = 10 * time.Second
	DefaultDetectiveRatio = 0.2
	DefaultUnknownRatio   = 0.05
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL        string        // Base URL of the scanner API
	Tokens         []string      // Token IDs to draw from, usually the catalog
	Scans          int           // Number of scans to submit
	Teams          int           // Number of teams, named 001, 002, ...
	Workers        int           // Number of concurrent submitters
	Timeout        time.Duration // HTTP request timeout
	DetectiveRatio float64       // Share of scans made in detective mode
	UnknownRatio   float64       // Share of scans of tokens outside Tokens
	Seed           uint64        // Random seed; runs with the same seed submit the same scans
	Verbose        bool
}

var (
	ErrNoTokens  = errors.New("no tokens to scan")
	ErrUnhealthy = errors.New("scanner not healthy")
	ErrMismatch  = errors.New("reported state does not match submissions")
)

func (c *Config) withDefaults() Config {
	out := *c
	if out.Scans <= 0 {
		out.Scans = DefaultScans
	}
	if out.Teams <= 0 {
		out.Teams = DefaultTeams
	}
	if out.Workers <= 0 {
		out.Workers = DefaultWorkers
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.DetectiveRatio < 0 || out.DetectiveRatio > 1 {
		out.DetectiveRatio = DefaultDetectiveRatio
	}
	if out.UnknownRatio < 0 || out.UnknownRatio > 1 {
		out.UnknownRatio = DefaultUnknownRatio
	}
	return out
}

// Scan is one generated token read.
type Scan struct {
	TokenID string `json:"tokenId"`
	TeamID  string `json:"teamId"`
	Mode    string `json:"mode"`
}

// Report summarises a simulation run.
type Report struct {
	Submitted  int           `json:"submitted" yaml:"submitted"`
	Accepted   int           `json:"accepted" yaml:"accepted"`
	Duplicates int           `json:"duplicates" yaml:"duplicates"`
	Failed     int           `json:"failed" yaml:"failed"`
	Teams      int           `json:"teams" yaml:"teams"`
	TopTeam    string        `json:"topTeam,omitempty" yaml:"topTeam,omitempty"`
	TopScore   int           `json:"topScore" yaml:"topScore"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}
