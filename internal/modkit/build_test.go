package modkit

import (
	"testing"
)

func TestBuild_Defaults(t *testing.T) {
	t.Parallel()

	b := Build()

	if b.Name != "" {
		t.Fatalf("default Name = %q, want empty", b.Name)
	}
	if b.Ports != nil {
		t.Fatalf("default Ports non-nil")
	}
}

func TestBuild_WithOptions(t *testing.T) {
	t.Parallel()

	type ports struct {
		X int
		Y string
	}
	p := ports{X: 7, Y: "ok"}

	b := Build(
		WithName("ingest"),
		WithPorts[ports](p),
	)

	if b.Name != "ingest" {
		t.Fatalf("Name = %q, want %q", b.Name, "ingest")
	}
	if got, ok := b.Ports.(ports); !ok || got != p {
		t.Fatalf("Ports mismatch after Build")
	}
}
