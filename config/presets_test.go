package config

import (
	"testing"

	"github.com/example/mesisim/core"
)

func TestByNameKnownPresetValidates(t *testing.T) {
	p, err := ByName("reference")
	if err != nil {
		t.Fatalf("ByName(reference): %v", err)
	}
	if p.NumPEs != 4 || p.VecLen != 8 || p.MemWords != 512 {
		t.Fatalf("unexpected reference preset: %+v", p)
	}
	if p.Cache.StrictInvariants {
		t.Fatalf("expected reference preset to be non-strict")
	}
}

func TestByNameUnknownListsAvailable(t *testing.T) {
	_, err := ByName("bogus")
	if err == nil {
		t.Fatalf("expected an error for an unknown preset")
	}
	if !contains(err.Error(), "reference") {
		t.Fatalf("expected the error to list known presets, got %q", err.Error())
	}
}

func TestSinglePEDebugPresetIsStrict(t *testing.T) {
	p, err := ByName("single-pe-debug")
	if err != nil {
		t.Fatalf("ByName(single-pe-debug): %v", err)
	}
	if !p.Cache.StrictInvariants {
		t.Fatalf("expected single-pe-debug to set StrictInvariants")
	}
	if p.NumPEs != 1 {
		t.Fatalf("expected exactly one PE, got %d", p.NumPEs)
	}
}

func TestValidateRejectsNonPowerOfTwoCacheFields(t *testing.T) {
	p := Preset{Name: "bad", NumPEs: 1, VecLen: 1, MemWords: 64, Cache: core.Config{
		BlockBytes: 3, Ways: 2, NumSets: 5, WordBytes: 8,
	}}
	if err := Validate(&p); err == nil {
		t.Fatalf("expected an error for a non-power-of-two cache field")
	}
}

func TestValidateRejectsZeroValuedCacheConfig(t *testing.T) {
	p := Preset{Name: "bad", NumPEs: 1, VecLen: 1, MemWords: 64}
	if err := Validate(&p); err == nil {
		t.Fatalf("expected an error for a zero-valued cache config")
	}
}

func TestValidateBackfillsMaxSteps(t *testing.T) {
	p := Preset{Name: "x", NumPEs: 1, VecLen: 1, MemWords: 64, Cache: core.Reference()}
	if err := Validate(&p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.MaxSteps != defaultMaxSteps {
		t.Fatalf("expected MaxSteps backfilled to %d, got %d", defaultMaxSteps, p.MaxSteps)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
