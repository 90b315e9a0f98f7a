package service

import (
	"testing"
	"time"

	perr "plexingest/internal/platform/errors"
	"plexingest/internal/services/ingest/domain"
)

func TestBoard_CountersAndSnapshot(t *testing.T) {
	t.Parallel()

	b := NewBoard()
	b.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	b.CycleStarted("jobs")
	snap := b.Snapshot()
	if !snap["jobs"].Running || snap["jobs"].Runs != 1 {
		t.Fatalf("after start: %+v", snap["jobs"])
	}

	b.CycleFinished(domain.CycleResult{
		Extractor: "jobs",
		Status:    domain.RunSuccess,
		Written:   5,
		Dropped:   1,
	})
	snap = b.Snapshot()
	st := snap["jobs"]
	if st.Running || st.Written != 5 || st.Dropped != 1 || st.Errors != 0 {
		t.Fatalf("after success: %+v", st)
	}
	if st.LastSuccess.IsZero() {
		t.Fatal("LastSuccess not stamped")
	}

	b.CycleStarted("jobs")
	b.CycleFinished(domain.CycleResult{
		Extractor: "jobs",
		Status:    domain.RunFailure,
		Err:       perr.Upstream(503, "down", 0),
	})
	st = b.Snapshot()["jobs"]
	if st.Errors != 1 || st.LastError == "" {
		t.Fatalf("after failure: %+v", st)
	}
	if st.Runs != 2 {
		t.Fatalf("runs = %d, want 2", st.Runs)
	}
}

func TestBoard_SuccessClearsLastError(t *testing.T) {
	t.Parallel()

	b := NewBoard()
	b.CycleStarted("jobs")
	b.CycleFinished(domain.CycleResult{Extractor: "jobs", Status: domain.RunFailure, Err: perr.Unavailablef("x")})
	b.CycleStarted("jobs")
	b.CycleFinished(domain.CycleResult{Extractor: "jobs", Status: domain.RunSuccess})

	if got := b.Snapshot()["jobs"].LastError; got != "" {
		t.Fatalf("LastError = %q, want cleared", got)
	}
}
