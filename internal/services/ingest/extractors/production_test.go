package extractors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	perr "plexingest/internal/platform/errors"
)

func TestProduction_FetchWindowUsesWatermark(t *testing.T) {
	t.Parallel()

	var gotBegin, gotEnd string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBegin = r.URL.Query().Get("beginDate")
		gotEnd = r.URL.Query().Get("endDate")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{
			map[string]any{"id": "E1", "timestamp": "2024-05-31T12:00:00Z", "quantityGood": 10},
		}})
	}))
	defer srv.Close()

	e := NewProduction(testShared(t, srv), 3)
	since := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	recs, err := e.FetchRecords(context.Background(), since)
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if gotBegin != "2024-05-31T00:00:00Z" || gotEnd != "2024-06-01T00:00:00Z" {
		t.Fatalf("window = %q..%q", gotBegin, gotEnd)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d", len(recs))
	}

	key, err := e.RecordKey(recs[0])
	if err != nil || key != "E1" {
		t.Fatalf("key = %q err=%v", key, err)
	}
	if recs[0]["quantityGood"] != float64(10) {
		t.Fatalf("quantityGood = %v", recs[0]["quantityGood"])
	}
}

func TestProduction_TransformPromotions(t *testing.T) {
	t.Parallel()

	e := NewProduction(Shared{PCN: "340884", Facility: "plant-a", now: time.Now}, 3)
	rec := map[string]any{
		"id":            "E2",
		"jobNo":         "N7",
		"createdTime":   "2024-05-30T08:00:00Z",
		"completedTime": "2024-05-30T09:00:00Z",
		"workcenter":    map[string]any{"code": "WC-B", "id": "12", "name": "Press B"},
	}
	out, err := e.TransformRecord(rec)
	if err != nil {
		t.Fatalf("TransformRecord: %v", err)
	}
	if out["jobNumber"] != "N7" {
		t.Fatalf("jobNumber = %v", out["jobNumber"])
	}
	if out["createdAt"] != "2024-05-30T08:00:00Z" || out["completedAt"] != "2024-05-30T09:00:00Z" {
		t.Fatalf("timestamps not promoted: %v", out)
	}
	if out["workcenterCode"] != "WC-B" || out["workcenterName"] != "Press B" {
		t.Fatalf("workcenter not promoted: %v", out)
	}
	if out["pcn"] != "340884" {
		t.Fatalf("pcn = %v", out["pcn"])
	}
}

func TestProduction_KeyFallbacks(t *testing.T) {
	t.Parallel()

	e := NewProduction(Shared{now: time.Now}, 3)

	if key, err := e.RecordKey(map[string]any{"entryId": "E5"}); err != nil || key != "E5" {
		t.Fatalf("entryId key = %q err=%v", key, err)
	}
	key, err := e.RecordKey(map[string]any{"workcenterId": "41", "timestamp": "2024-05-31T12:00:00Z"})
	if err != nil || key != "41-2024-05-31T12:00:00Z" {
		t.Fatalf("composite key = %q err=%v", key, err)
	}
	if _, err := e.RecordKey(map[string]any{"note": "x"}); !perr.IsCode(err, perr.ErrorCodeMissingIdentifier) {
		t.Fatalf("want MissingIdentifier, got %v", err)
	}
}
