// Package bus implements the interconnect: the single serialization point
// for coherence traffic (spec.md §4.2). It holds no cache data itself; it
// only registers caches and serializes broadcasts across them.
package bus

import (
	"sync"

	"github.com/rs/xid"

	"github.com/example/mesisim/core"
	"github.com/example/mesisim/hooks"
	"github.com/example/mesisim/logging"
)

// SnoopResponse is a cache's answer to one snooped message (spec.md §4.3.5).
type SnoopResponse struct {
	HadCopy   bool
	WroteBack bool
}

// Summary aggregates every snooped cache's response to one broadcast
// (spec.md §4.2).
type Summary struct {
	SharedSeen bool // some cache had a copy (BusRd: supplied == had_copy)
	ModSeen    bool // some cache wrote back a dirty copy
}

// Snoopable is the capability a cache exposes to the bus: it can be
// registered, it can answer a snoop, and it can be asked to flush. Caches
// never call back into the bus from inside Snoop (spec.md §4.2's
// no-recursion rule).
type Snoopable interface {
	ID() int
	Snoop(msg core.BusMsgType, addr uint64) SnoopResponse
	FlushAll()
}

// Bus is the snoopy interconnect. The registry mutex is held only long
// enough to append a new cache; the transaction mutex is held for the
// entire duration of one broadcast, which is what gives the bus its total
// order (spec.md §5, lock ordering rule 2).
type Bus struct {
	registryMu sync.Mutex
	caches     []Snoopable

	txnMu sync.Mutex

	broker *hooks.Broker
	log    *logging.Logger
}

// New creates an empty bus. broker and log may be nil.
func New(broker *hooks.Broker, log *logging.Logger) *Bus {
	if log == nil {
		log = logging.Default()
	}
	return &Bus{broker: broker, log: log}
}

// Register appends a cache to the bus's registry. Safe to call concurrently
// with Broadcast (a cache registered mid-broadcast simply isn't snooped by
// that in-flight transaction).
func (b *Bus) Register(c Snoopable) {
	b.registryMu.Lock()
	defer b.registryMu.Unlock()
	b.caches = append(b.caches, c)
}

func (b *Bus) snapshot() []Snoopable {
	b.registryMu.Lock()
	defer b.registryMu.Unlock()
	out := make([]Snoopable, len(b.caches))
	copy(out, b.caches)
	return out
}

// Broadcast serializes one coherence transaction: it snoops every
// registered cache except origin, in registry order, and aggregates their
// responses. Exactly one Broadcast is in progress at any time across the
// whole system (spec.md §4.2's serialization rule); callers must not hold
// their own cache lock while calling this (spec.md §5, lock ordering rule 1).
func (b *Bus) Broadcast(origin Snoopable, msg core.BusMsgType, addr uint64) Summary {
	b.txnMu.Lock()
	defer b.txnMu.Unlock()

	txnID := xid.New().String()
	originID := -1
	if origin != nil {
		originID = origin.ID()
	}

	var summary Summary
	for _, c := range b.snapshot() {
		if origin != nil && c.ID() == origin.ID() {
			continue
		}
		resp := c.Snoop(msg, addr)
		summary.SharedSeen = summary.SharedSeen || resp.HadCopy
		summary.ModSeen = summary.ModSeen || resp.WroteBack
	}

	b.log.Debugf("bus txn %s: pe=%d msg=%s addr=0x%x shared_seen=%v mod_seen=%v",
		txnID, originID, msg, addr, summary.SharedSeen, summary.ModSeen)
	b.broker.EmitBusTransaction(hooks.BusTransactionEvent{
		TxnID:      txnID,
		OriginPEID: originID,
		Msg:        msg,
		Addr:       addr,
		SharedSeen: summary.SharedSeen,
		ModSeen:    summary.ModSeen,
	})

	return summary
}

// FlushAll asks every registered cache to write back its Modified lines.
// Applying it twice in a row is a no-op the second time: the first pass
// leaves no Modified lines behind, so the second pass's writebacks are all
// skipped inside each cache (spec.md §8 property 5).
func (b *Bus) FlushAll() {
	for _, c := range b.snapshot() {
		c.FlushAll()
	}
}

// NumCaches returns how many caches are currently registered.
func (b *Bus) NumCaches() int {
	b.registryMu.Lock()
	defer b.registryMu.Unlock()
	return len(b.caches)
}
