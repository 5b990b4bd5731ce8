// Package config provides a small declarative layer of named presets over
// core.Config plus the system-level sizing knobs (PE count, vector length,
// memory size, step bound), the way teacher `soc_configs.go` offers named
// SOCNetworkConfigs instead of requiring every caller to hand-assemble a
// Config struct literal.
package config

import (
	"fmt"

	"github.com/example/mesisim/core"
)

// Preset bundles everything needed to build and run one system.New call:
// the per-cache Config plus the PE count, workload size, memory size, and
// step bound that go with it (teacher SOCNetworkConfig's Name+Description+
// *Config shape, widened with this domain's own sizing fields since a
// cache Config alone doesn't determine a runnable system).
type Preset struct {
	Name        string
	Description string

	NumPEs   int
	VecLen   int // dot-product vector length, N
	MemWords int
	MaxSteps int

	Cache core.Config
}

// DefaultBandwidthLimit-style fallbacks applied by Validate when a preset
// leaves a field at its zero value.
const (
	defaultMaxSteps = 10000
)

// Predefined returns every named preset this build ships, analogous to
// teacher soc_configs.go's GetPredefinedConfigs.
func Predefined() []Preset {
	return []Preset{
		{
			Name:        "reference",
			Description: "spec.md §3's reference profile: 4 PEs, N=8, 512-word memory",
			NumPEs:      4,
			VecLen:      8,
			MemWords:    512,
			MaxSteps:    defaultMaxSteps,
			Cache:       core.Reference(),
		},
		{
			Name:        "single-pe-debug",
			Description: "one PE, StrictInvariants on, small workload — for chasing a single coherence bug without cross-PE noise",
			NumPEs:      1,
			VecLen:      4,
			MemWords:    64,
			MaxSteps:    2000,
			Cache:       strict(core.Reference()),
		},
		{
			Name:        "wide-fanout",
			Description: "8 PEs, N=32 — exercises BusUpgr/BusRdX contention across more sharers than the reference profile",
			NumPEs:      8,
			VecLen:      32,
			MemWords:    2048,
			MaxSteps:    40000,
			Cache:       core.Reference(),
		},
		{
			Name:        "small-cache-thrash",
			Description: "direct-mapped, 4-set cache under the reference workload — forces capacity evictions the reference profile's 2-way/8-set cache rarely sees",
			NumPEs:      4,
			VecLen:      16,
			MemWords:    512,
			MaxSteps:    20000,
			Cache: core.Config{
				BlockBytes: 16,
				Ways:       1,
				NumSets:    4,
				WordBytes:  8,
			},
		},
	}
}

func strict(cfg core.Config) core.Config {
	cfg.StrictInvariants = true
	return cfg
}

// ByName looks up a preset by its exact Name, returning an error that
// names every available preset if name isn't found — so `mesisim run
// --config bogus` fails with something actionable instead of a panic or a
// silently zero-valued Config.
func ByName(name string) (Preset, error) {
	for _, p := range Predefined() {
		if p.Name == name {
			if err := Validate(&p); err != nil {
				return Preset{}, err
			}
			return p, nil
		}
	}
	names := make([]string, 0, len(Predefined()))
	for _, p := range Predefined() {
		names = append(names, p.Name)
	}
	return Preset{}, fmt.Errorf("config: unknown preset %q, available: %v", name, names)
}

// Validate applies structural checks to p and fills in MaxSteps where the
// teacher's config_validator.go would backfill a zero-valued field (its
// BandwidthLimit/DispatchQueueCapacity defaulting), mutating p in place.
func Validate(p *Preset) error {
	if p.NumPEs <= 0 {
		return fmt.Errorf("config %q: NumPEs must be positive, got %d", p.Name, p.NumPEs)
	}
	if p.VecLen <= 0 {
		return fmt.Errorf("config %q: VecLen must be positive, got %d", p.Name, p.VecLen)
	}
	if p.MemWords <= 0 {
		return fmt.Errorf("config %q: MemWords must be positive, got %d", p.Name, p.MemWords)
	}
	if p.Cache.BlockBytes <= 0 || p.Cache.Ways <= 0 || p.Cache.NumSets <= 0 || p.Cache.WordBytes <= 0 {
		return fmt.Errorf("config %q: cache fields must all be positive, got %+v", p.Name, p.Cache)
	}
	if !isPowerOfTwo(p.Cache.BlockBytes) || !isPowerOfTwo(p.Cache.NumSets) || !isPowerOfTwo(p.Cache.WordBytes) {
		return fmt.Errorf("config %q: BlockBytes/NumSets/WordBytes must be powers of two, got %+v", p.Name, p.Cache)
	}
	if p.MaxSteps <= 0 {
		p.MaxSteps = defaultMaxSteps
	}
	return nil
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }
