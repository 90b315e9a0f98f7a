// Package domain holds the ingest service's core types and ports
package domain

import "time"

// Record is one raw upstream record as decoded from JSON
type Record = map[string]any

// Row is one landed raw row: stable key plus flat columns
type Row struct {
	Key     string
	Columns map[string]any
}

// RunStatus classifies the outcome of one extraction cycle
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
	RunSkipped RunStatus = "skipped"
)

// CycleResult summarizes one extraction cycle for logs, status reporting
// and extraction metadata
type CycleResult struct {
	Extractor string
	RunID     string
	Status    RunStatus
	Fetched   int
	Written   int
	Dropped   int
	Watermark time.Time
	Duration  time.Duration
	Err       error
}
