// Package system wires main memory, the bus, and one cache+PE pair per
// processing element into a runnable machine, and drives the parallel
// dot-product workload over it (spec.md §4, "Data flow: PE → Cache →
// ... → Bus → peer Caches ... → Memory").
package system

import (
	"fmt"
	"sync"

	"github.com/example/mesisim/bus"
	"github.com/example/mesisim/cache"
	"github.com/example/mesisim/core"
	"github.com/example/mesisim/hooks"
	"github.com/example/mesisim/isa"
	"github.com/example/mesisim/logging"
	"github.com/example/mesisim/memory"
)

// System owns every component of one simulation instance: one shared
// memory, one bus, and numPEs (cache, PE) pairs (original_source/
// sim_step.cpp's `struct System` constructor).
type System struct {
	Config core.Config
	Memory *memory.Memory
	Bus    *bus.Bus
	Caches []*cache.Cache
	PEs    []*isa.PE

	Broker *hooks.Broker
	Log    *logging.Logger
}

// New builds a System with numPEs processing elements and memWords words of
// main memory, all sharing one bus and one broker. Every cache registers
// with the bus at construction (spec.md §3).
func New(numPEs int, memWords int, cfg core.Config, broker *hooks.Broker, log *logging.Logger) *System {
	if log == nil {
		log = logging.Default()
	}
	mem := memory.New(cfg, memWords)
	b := bus.New(broker, log.With("bus", -1))

	s := &System{
		Config: cfg,
		Memory: mem,
		Bus:    b,
		Broker: broker,
		Log:    log,
	}
	for i := 0; i < numPEs; i++ {
		c := cache.New(i, cfg, mem, b, broker, log.With("cache", i))
		s.Caches = append(s.Caches, c)
		s.PEs = append(s.PEs, isa.New(i, c, log.With("pe", i)))
	}
	return s
}

// NumPEs returns how many processing elements this system has.
func (s *System) NumPEs() int { return len(s.PEs) }

// AnyRunning reports whether at least one PE has not yet halted
// (original_source/sim_step.cpp's any_running).
func (s *System) AnyRunning() bool {
	for _, p := range s.PEs {
		if !p.Halted() {
			return true
		}
	}
	return false
}

// StepRoundRobin advances every not-yet-halted PE by exactly one
// instruction, in PE-index order, with no stop check inside the round, and
// reports whether any PE actually advanced. A caller that honours
// breakpoints checks them after the round returns, as the stepper's `cont`
// does (original_source/sim_step.cpp's `cont` command body, which only calls
// hit_breakpoint after the inner per-PE loop finishes).
func (s *System) StepRoundRobin() (bool, error) {
	return s.StepRoundRobinUntil(nil)
}

// StepRoundRobinUntil advances every not-yet-halted PE by exactly one
// instruction, in PE-index order, but stops immediately — before sibling
// PEs take their step this round — the instant stopAfter reports true.
// Used by the stepper's `step` command, which needs per-PE breakpoint
// granularity (original_source/sim_step.cpp's `cmd=="step"` handler calls
// hit_breakpoint inside its per-PE loop, not only after the round
// completes, so a breakpoint on PE0 stops the round before PE1 advances).
// A nil stopAfter makes this equivalent to StepRoundRobin.
func (s *System) StepRoundRobinUntil(stopAfter func() bool) (bool, error) {
	advanced := false
	for _, p := range s.PEs {
		if p.Halted() {
			continue
		}
		if err := p.Step(); err != nil {
			return advanced, err
		}
		advanced = true
		if stopAfter != nil && stopAfter() {
			break
		}
	}
	return advanced, nil
}

// RunAll launches one goroutine per PE (spec.md §5, "one OS-level thread
// per PE during run mode") and waits for all of them to halt or to hit
// maxSteps. A PE error does not stop the other PEs; once every PE has
// finished, the error of the lowest-numbered failing PE is returned.
func (s *System) RunAll(maxSteps int) error {
	var wg sync.WaitGroup
	errs := make([]error, len(s.PEs))
	for i, p := range s.PEs {
		wg.Add(1)
		go func(i int, p *isa.PE) {
			defer wg.Done()
			errs[i] = p.Run(maxSteps)
		}(i, p)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("pe %d: %w", i, err)
		}
	}
	return nil
}

// FlushAll writes back every cache's Modified lines to memory, then asks
// the bus to do the same (original_source/sim_step.cpp's show_final_results:
// "Flush todas las caches antes de leer memoria"). Called by the stepper
// after `cont`/`run` and before reporting results, and at shutdown.
func (s *System) FlushAll() {
	for _, c := range s.Caches {
		c.FlushAll()
	}
	s.Bus.FlushAll()
}

// Stats returns every cache's counters, indexed by PE id, for the
// stepper's `stats` command.
func (s *System) Stats() []cache.Stats {
	out := make([]cache.Stats, len(s.Caches))
	for i, c := range s.Caches {
		out[i] = c.Stats()
	}
	return out
}
