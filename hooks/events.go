// Package hooks provides the typed event broker that every coherence
// component publishes to, replacing the original's global mutex-guarded
// std::cout debug trace with an injected observer that has a defined
// lifecycle (spec.md Design Notes, "Global mutable I/O for debug traces").
// The dashboard is an ordinary subscriber. The logger is not a subscriber:
// cache and bus call their injected logger directly and publish to the
// broker separately.
package hooks

import "github.com/example/mesisim/core"

// TransitionEvent fires whenever a cache line changes MESI state, whether
// from a PE access or a snoop. A load hit also fires one, with From equal
// to To.
type TransitionEvent struct {
	PEID   int
	Addr   uint64
	From   core.MESIState
	To     core.MESIState
	Reason string
}

// BusTransactionEvent fires once a bus broadcast completes.
type BusTransactionEvent struct {
	TxnID      string
	OriginPEID int
	Msg        core.BusMsgType
	Addr       uint64
	SharedSeen bool
	ModSeen    bool
}

// EvictionEvent fires whenever a cache evicts a line to make room for a
// new block.
type EvictionEvent struct {
	PEID      int
	Addr      uint64
	State     core.MESIState
	WroteBack bool
}

// WritebackEvent fires whenever a cache writes a dirty line's bytes back to
// main memory, whether from eviction, a snoop-forced flush, or FlushAll.
type WritebackEvent struct {
	PEID int
	Addr uint64
}

// InvariantViolationEvent fires when a cache observes a coherence message
// that should be impossible under the SWMR invariants (spec.md §7), e.g. a
// BusUpgr seen while the line is Modified.
type InvariantViolationEvent struct {
	PEID   int
	Addr   uint64
	Detail string
}
