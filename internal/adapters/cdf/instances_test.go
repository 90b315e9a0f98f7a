package cdf

import (
	"context"
	"net/http"
	"testing"
)

func TestInstances_NilClientStartsDisabled(t *testing.T) {
	t.Parallel()

	i := NewInstances(nil, "space")
	if !i.Disabled() {
		t.Fatal("nil client should start disabled")
	}
	// must not panic even though there is no client behind it
	i.Apply(context.Background(), []Node{{ExternalID: "x"}})
}

func TestInstances_AppliesNodes(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	i := NewInstances(f.client(), "plex-extractor")

	i.Apply(context.Background(), []Node{
		{ExternalID: "run-1", Properties: map[string]any{"status": "success"}},
	})

	if i.Disabled() {
		t.Fatal("successful apply should not disable")
	}
	if len(f.apiCalls) != 1 {
		t.Fatalf("api calls = %d, want 1", len(f.apiCalls))
	}
	call := f.apiCalls[0]
	if call.path != "/api/v1/projects/plant/models/instances" {
		t.Fatalf("path = %q", call.path)
	}
	items, _ := call.body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v", call.body["items"])
	}
	node, _ := items[0].(map[string]any)
	if node["space"] != "plex-extractor" || node["externalId"] != "run-1" {
		t.Fatalf("node = %v", node)
	}
}

func TestInstances_FirstFailureDisablesForever(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	f.status = http.StatusBadRequest
	f.body = `{"error":{"message":"bad space"}}`
	i := NewInstances(f.client(), "plex-extractor")

	i.Apply(context.Background(), []Node{{ExternalID: "run-1"}})
	if !i.Disabled() {
		t.Fatal("failure should disable writer")
	}

	i.Apply(context.Background(), []Node{{ExternalID: "run-2"}})
	if len(f.apiCalls) != 1 {
		t.Fatalf("api calls = %d, want 1 (disabled after first failure)", len(f.apiCalls))
	}
}
