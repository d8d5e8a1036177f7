package tests

import (
	"testing"

	"github.com/aretw0/espalier/pkg/ports"
)

// SpecSourceContractTest is a reusable test suite that verifies if an adapter complies with ports.SpecSource.
// want maps each expected specification id to its initial state.
func SpecSourceContractTest(t *testing.T, source ports.SpecSource, want map[string]string) {
	t.Helper()

	t.Run("LoadSpec_Success", func(t *testing.T) {
		for id, initial := range want {
			spec, err := source.LoadSpec(id)
			if err != nil {
				t.Fatalf("unexpected error loading spec %s: %v", id, err)
			}
			if spec.ID != id {
				t.Errorf("id mismatch: got %q, want %q", spec.ID, id)
			}
			if spec.InitialState != initial {
				t.Errorf("initial state mismatch for %s: got %q, want %q", id, spec.InitialState, initial)
			}
			if spec.ContextSchema == nil {
				t.Errorf("spec %s has no context schema", id)
			}
		}
	})

	t.Run("LoadSpec_NotFound", func(t *testing.T) {
		if _, err := source.LoadSpec("non-existent-spec"); err == nil {
			t.Error("expected error for non-existent spec, got nil")
		}
	})

	t.Run("ListSpecs", func(t *testing.T) {
		ids, err := source.ListSpecs()
		if err != nil {
			t.Fatalf("unexpected error listing specs: %v", err)
		}

		found := make(map[string]bool, len(ids))
		for _, id := range ids {
			found[id] = true
		}
		for id := range want {
			if !found[id] {
				t.Errorf("expected spec %s in list", id)
			}
		}
		for i := 1; i < len(ids); i++ {
			if ids[i-1] > ids[i] {
				t.Errorf("ListSpecs must be sorted, got %v", ids)
				break
			}
		}
	})
}
