package service

import (
	"sync"
	"time"

	"plexingest/internal/services/ingest/domain"
)

// ExtractorStatus is the health record kept per extractor
type ExtractorStatus struct {
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
	Runs        int       `json:"runs"`
	Errors      int       `json:"errors"`
	Written     int       `json:"written"`
	Dropped     int       `json:"dropped"`
	Running     bool      `json:"running"`
}

// Board tracks per-extractor run counters. Each extractor's counters are
// written by its own cycle; snapshots may be read from anywhere
type Board struct {
	mu  sync.RWMutex
	m   map[string]*ExtractorStatus
	now func() time.Time
}

// NewBoard returns an empty Board
func NewBoard() *Board {
	return &Board{m: map[string]*ExtractorStatus{}, now: time.Now}
}

func (b *Board) get(name string) *ExtractorStatus {
	st, ok := b.m[name]
	if !ok {
		st = &ExtractorStatus{}
		b.m[name] = st
	}
	return st
}

// CycleStarted marks an extractor as running
func (b *Board) CycleStarted(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.get(name)
	st.Running = true
	st.LastRun = b.now()
	st.Runs++
}

// CycleFinished folds a cycle result into the counters
func (b *Board) CycleFinished(res domain.CycleResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.get(res.Extractor)
	st.Running = false
	st.Written += res.Written
	st.Dropped += res.Dropped
	if res.Status == domain.RunSuccess {
		st.LastSuccess = b.now()
		st.LastError = ""
		return
	}
	st.Errors++
	if res.Err != nil {
		st.LastError = res.Err.Error()
	}
}

// Snapshot returns a copy of every extractor's status
func (b *Board) Snapshot() map[string]ExtractorStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]ExtractorStatus, len(b.m))
	for name, st := range b.m {
		out[name] = *st
	}
	return out
}
