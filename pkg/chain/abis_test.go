package chain

import (
	"testing"
)

const stakingABI = `[
	{"type":"function","name":"stake","stateMutability":"payable","inputs":[],"outputs":[]}
]`

func TestABIRegistryBuiltins(t *testing.T) {
	r, err := NewABIRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("NewABIRegistry failed: %v", err)
	}

	for _, name := range []string{ABIERC20, ABIReferral, ABIRouter, ABIBatchRouter} {
		if _, err := r.Get(name); err != nil {
			t.Errorf("built-in ABI %s missing: %v", name, err)
		}
	}
	if _, err := r.Get("nope"); err == nil {
		t.Error("unknown ABI must not resolve")
	}
}

func TestABIRegistryUploadPersists(t *testing.T) {
	dir := t.TempDir()
	r, err := NewABIRegistry(dir)
	if err != nil {
		t.Fatalf("NewABIRegistry failed: %v", err)
	}

	if err := r.Upload("staking", stakingABI); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if err := r.Upload("bad", "{not json"); err == nil {
		t.Error("invalid ABI JSON must be rejected")
	}

	found := false
	for _, name := range r.List() {
		if name == "staking" {
			found = true
		}
	}
	if !found {
		t.Error("uploaded ABI missing from List")
	}

	// A new registry over the same workspace reloads the upload.
	r2, err := NewABIRegistry(dir)
	if err != nil {
		t.Fatalf("NewABIRegistry reload failed: %v", err)
	}
	parsed, err := r2.Get("staking")
	if err != nil {
		t.Fatalf("uploaded ABI not reloaded: %v", err)
	}
	if _, ok := parsed.Methods["stake"]; !ok {
		t.Error("reloaded ABI lost its methods")
	}
}
