package extractors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPerformance_CombinesBothEndpoints(t *testing.T) {
	t.Parallel()

	var beginDates []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "0" {
			beginDates = append(beginDates, r.URL.Query().Get("beginDate"))
		}
		switch r.URL.Path {
		case productionEntriesPath:
			if r.URL.Query().Get("offset") != "0" {
				_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{
				map[string]any{"entryId": "E1", "workcenterId": "41"},
			}})
		case entriesSummaryPath:
			if r.URL.Query().Get("offset") != "0" {
				_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{
				map[string]any{"summaryId": "S1"},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	e := NewPerformance(testShared(t, srv), 7)
	recs, err := e.FetchRecords(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}

	// cold start widens the lookback to at least a year
	if len(beginDates) == 0 || beginDates[0] != "2023-06-02T00:00:00Z" {
		t.Fatalf("beginDate = %v, want year-wide window", beginDates)
	}

	k1, _ := e.RecordKey(recs[0])
	k2, _ := e.RecordKey(recs[1])
	if k1 != "entry:E1" || k2 != "summary:S1" {
		t.Fatalf("keys = %q, %q", k1, k2)
	}
}

func TestPerformance_CompositeKeyNeverMisses(t *testing.T) {
	t.Parallel()

	e := NewPerformance(Shared{now: time.Now}, 7)

	key, err := e.RecordKey(map[string]any{
		"recordType":   "entry",
		"workcenterId": "41",
		"startTime":    "2024-06-01T00:00:00Z",
	})
	if err != nil || key != "entry:41:2024-06-01T00:00:00Z" {
		t.Fatalf("composite = %q err=%v", key, err)
	}

	// even a bare record yields a deterministic key rather than an error
	key, err = e.RecordKey(map[string]any{"recordType": "summary"})
	if err != nil || key != "summary::" {
		t.Fatalf("bare composite = %q err=%v", key, err)
	}
}
