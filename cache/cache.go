// Package cache implements the per-PE L1 coherence engine: MESI state per
// line, pseudo-LRU victim choice, write-allocate + write-back, and the
// snoop handler invoked by the bus (spec.md §4.3). This is the core of the
// simulator; everything else is a client or collaborator of this package.
package cache

import (
	"fmt"
	"sync"

	"github.com/example/mesisim/bus"
	"github.com/example/mesisim/core"
	"github.com/example/mesisim/hooks"
	"github.com/example/mesisim/logging"
	"github.com/example/mesisim/memory"
)

// Line is one cache line: MESI state, tag, raw block bytes, and the
// per-line pseudo-LRU marker (spec.md §3).
type Line struct {
	State  core.MESIState
	Tag    uint64
	Data   []byte
	Recent bool
}

// Stats mirrors the per-cache counters spec.md §3 requires: reads, writes,
// misses, invalidations, bus messages, writebacks, upgrades.
type Stats struct {
	Reads         uint64
	Writes        uint64
	Misses        uint64
	Invalidations uint64
	BusMsgs       uint64
	Writebacks    uint64
	Upgrades      uint64
}

// Cache is one PE's private L1. A single mutex guards every line, LRU bit,
// and counter (spec.md §5).
type Cache struct {
	peID int
	cfg  core.Config
	mem  *memory.Memory
	bus  *bus.Bus

	broker *hooks.Broker
	log    *logging.Logger

	mu    sync.Mutex
	sets  [][]Line
	stats Stats
}

// New builds an empty cache bound to peID, registers it with the bus, and
// returns it (spec.md §3, "a cache is constructed... it registers with the
// bus at construction").
func New(peID int, cfg core.Config, mem *memory.Memory, b *bus.Bus, broker *hooks.Broker, log *logging.Logger) *Cache {
	if log == nil {
		log = logging.Default()
	}
	sets := make([][]Line, cfg.NumSets)
	for i := range sets {
		ways := make([]Line, cfg.Ways)
		for w := range ways {
			ways[w].Data = make([]byte, cfg.BlockBytes)
		}
		sets[i] = ways
	}
	c := &Cache{
		peID:   peID,
		cfg:    cfg,
		mem:    mem,
		bus:    b,
		broker: broker,
		log:    log,
		sets:   sets,
	}
	if b != nil {
		b.Register(c)
	}
	return c
}

// ID identifies this cache's owning PE to the bus (bus.Snoopable).
func (c *Cache) ID() int { return c.peID }

// Stats returns a snapshot of this cache's counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// probe scans a set's ways for tag with a non-Invalid state (spec.md
// §4.3.1). Caller must hold c.mu.
func (c *Cache) probe(index, tag uint64) (hit bool, way int) {
	for w, ln := range c.sets[index] {
		if ln.State != core.Invalid && ln.Tag == tag {
			return true, w
		}
	}
	return false, -1
}

// markRecent sets the touched line's recent bit and clears every other
// way's bit in the set (spec.md §4.3.2). Caller must hold c.mu.
func (c *Cache) markRecent(index uint64, way int) {
	set := c.sets[index]
	for w := range set {
		set[w].Recent = w == way
	}
}

// chooseVictim picks the way to evict in a set: any Invalid line first,
// else the line whose recent bit is 0, ties broken by way 0 (spec.md
// §4.3.2). Caller must hold c.mu.
func (c *Cache) chooseVictim(index uint64) int {
	set := c.sets[index]
	for w := range set {
		if set[w].State == core.Invalid {
			return w
		}
	}
	for w := range set {
		if !set[w].Recent {
			return w
		}
	}
	return 0
}

// blockAddrOf reconstructs a block's base byte address from a line's tag
// and the set it lives in (the inverse of core.Decode).
func (c *Cache) blockAddrOf(index, tag uint64) uint64 {
	return c.cfg.BlockAddress(tag, index)
}

// writebackLocked writes a Modified line's bytes to memory and emits a
// WritebackEvent. Caller must hold c.mu; memory is acquired after the
// cache lock per spec.md §5 lock-ordering rule 3.
func (c *Cache) writebackLocked(index uint64, way int) error {
	ln := &c.sets[index][way]
	addr := c.blockAddrOf(index, ln.Tag)
	if err := c.mem.WriteBlock(addr, ln.Data); err != nil {
		return err
	}
	c.stats.Writebacks++
	c.log.Debugf("pe %d: writeback addr=%d", c.peID, addr)
	c.broker.EmitWriteback(hooks.WritebackEvent{PEID: c.peID, Addr: addr})
	return nil
}

// fillLocked reads a block from memory into the victim line's data and
// sets its tag. Caller must hold c.mu.
func (c *Cache) fillLocked(index, tag uint64, way int) error {
	ln := &c.sets[index][way]
	addr := c.blockAddrOf(index, tag)
	data, err := c.mem.ReadBlock(addr)
	if err != nil {
		return err
	}
	copy(ln.Data, data)
	ln.Tag = tag
	return nil
}

func (c *Cache) transition(addr uint64, from, to core.MESIState, reason string) {
	c.log.Debugf("pe %d: addr=%d %s->%s (%s)", c.peID, addr, from, to, reason)
	c.broker.EmitTransition(hooks.TransitionEvent{
		PEID: c.peID, Addr: addr, From: from, To: to, Reason: reason,
	})
}

// emitEviction logs and publishes an EvictionEvent for a line being
// replaced to make room for a new block.
func (c *Cache) emitEviction(addr uint64, state core.MESIState, wroteBack bool) {
	c.log.Debugf("pe %d: evict addr=%d state=%s wrote_back=%v", c.peID, addr, state, wroteBack)
	c.broker.EmitEviction(hooks.EvictionEvent{PEID: c.peID, Addr: addr, State: state, WroteBack: wroteBack})
}

// emitInvariantViolation logs and publishes an event for a coherence
// message that should be impossible under the SWMR invariants (spec.md
// §7). Logged at Warn rather than Error: the cache recovers by dropping
// the line, it does not halt.
func (c *Cache) emitInvariantViolation(addr uint64, detail string) {
	c.log.Warnf("pe %d: invariant violation addr=%d: %s", c.peID, addr, detail)
	c.broker.EmitInvariantViolation(hooks.InvariantViolationEvent{PEID: c.peID, Addr: addr, Detail: detail})
}

// ReadDouble implements the load path, spec.md §4.3.3.
func (c *Cache) ReadDouble(addr uint64) (float64, error) {
	fields := c.cfg.Decode(addr)
	c.mu.Lock()
	c.stats.Reads++
	hit, way := c.probe(fields.Index, fields.Tag)
	if hit {
		ln := &c.sets[fields.Index][way]
		old := ln.State
		c.markRecent(fields.Index, way)
		v := core.DecodeDouble(ln.Data[fields.Offset : fields.Offset+8])
		c.mu.Unlock()
		c.transition(addr, old, old, "load hit")
		return v, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	summary := c.bus.Broadcast(c, core.BusRd, c.cfg.BlockAddress(fields.Tag, fields.Index))
	c.mu.Lock()
	c.stats.BusMsgs++
	defer c.mu.Unlock()

	victim := c.chooseVictim(fields.Index)
	vln := &c.sets[fields.Index][victim]
	evictedState := vln.State
	if evictedState == core.Modified {
		if err := c.writebackLocked(fields.Index, victim); err != nil {
			return 0, err
		}
	}
	if evictedState != core.Invalid {
		c.emitEviction(c.blockAddrOf(fields.Index, vln.Tag), evictedState, evictedState == core.Modified)
	}
	vln.State = core.Invalid

	if err := c.fillLocked(fields.Index, fields.Tag, victim); err != nil {
		return 0, err
	}
	newState := core.Shared
	if !summary.SharedSeen {
		newState = core.Exclusive
	}
	vln.State = newState
	c.markRecent(fields.Index, victim)
	c.transition(addr, core.Invalid, newState, "load miss fill")

	return core.DecodeDouble(vln.Data[fields.Offset : fields.Offset+8]), nil
}

// WriteDouble implements the store path, spec.md §4.3.4.
func (c *Cache) WriteDouble(addr uint64, value float64) error {
	fields := c.cfg.Decode(addr)
	bytes := core.EncodeDouble(value)

	c.mu.Lock()
	c.stats.Writes++
	hit, way := c.probe(fields.Index, fields.Tag)

	if hit {
		ln := &c.sets[fields.Index][way]
		switch ln.State {
		case core.Modified:
			copy(ln.Data[fields.Offset:fields.Offset+8], bytes)
			c.markRecent(fields.Index, way)
			c.mu.Unlock()
			return nil
		case core.Exclusive:
			old := ln.State
			ln.State = core.Modified
			copy(ln.Data[fields.Offset:fields.Offset+8], bytes)
			c.markRecent(fields.Index, way)
			c.mu.Unlock()
			c.transition(addr, old, core.Modified, "store hit E->M")
			return nil
		case core.Shared:
			blockAddr := c.cfg.BlockAddress(fields.Tag, fields.Index)
			c.mu.Unlock()

			c.bus.Broadcast(c, core.BusUpgr, blockAddr)

			c.mu.Lock()
			c.stats.BusMsgs++
			c.stats.Upgrades++
			ln2 := &c.sets[fields.Index][way]
			old := ln2.State
			ln2.State = core.Modified
			copy(ln2.Data[fields.Offset:fields.Offset+8], bytes)
			c.markRecent(fields.Index, way)
			c.mu.Unlock()
			c.transition(addr, old, core.Modified, "store hit S->M upgrade")
			return nil
		}
	}

	c.stats.Misses++
	c.mu.Unlock()

	c.bus.Broadcast(c, core.BusRdX, c.cfg.BlockAddress(fields.Tag, fields.Index))

	c.mu.Lock()
	c.stats.BusMsgs++
	defer c.mu.Unlock()

	victim := c.chooseVictim(fields.Index)
	vln := &c.sets[fields.Index][victim]
	evictedState := vln.State
	if evictedState == core.Modified {
		if err := c.writebackLocked(fields.Index, victim); err != nil {
			return err
		}
	}
	if evictedState != core.Invalid {
		c.emitEviction(c.blockAddrOf(fields.Index, vln.Tag), evictedState, evictedState == core.Modified)
	}
	vln.State = core.Invalid

	if err := c.fillLocked(fields.Index, fields.Tag, victim); err != nil {
		return err
	}
	copy(vln.Data[fields.Offset:fields.Offset+8], bytes)
	vln.State = core.Modified
	c.markRecent(fields.Index, victim)
	c.transition(addr, core.Invalid, core.Modified, "store miss write-allocate")

	return nil
}

// Snoop answers one bus message per spec.md §4.3.5's table. It is invoked
// by the bus with no cache lock held by the caller; it acquires its own
// lock and must never originate a bus transaction while holding it.
func (c *Cache) Snoop(msg core.BusMsgType, addr uint64) bus.SnoopResponse {
	fields := c.cfg.Decode(addr)
	c.mu.Lock()
	defer c.mu.Unlock()

	hit, way := c.probe(fields.Index, fields.Tag)
	if !hit {
		return bus.SnoopResponse{}
	}
	ln := &c.sets[fields.Index][way]
	old := ln.State

	switch msg {
	case core.BusRd:
		resp := bus.SnoopResponse{HadCopy: true}
		if old == core.Modified {
			if err := c.writebackLocked(fields.Index, way); err != nil {
				c.emitInvariantViolation(addr, "writeback failed during BusRd snoop: "+err.Error())
			}
			resp.WroteBack = true
		}
		ln.State = core.Shared
		if old != core.Shared {
			c.transition(addr, old, core.Shared, "snoop BusRd")
		}
		return resp

	case core.BusRdX:
		resp := bus.SnoopResponse{HadCopy: true}
		if old == core.Modified {
			if err := c.writebackLocked(fields.Index, way); err != nil {
				c.emitInvariantViolation(addr, "writeback failed during BusRdX snoop: "+err.Error())
			}
			resp.WroteBack = true
		}
		ln.State = core.Invalid
		c.stats.Invalidations++
		c.transition(addr, old, core.Invalid, "snoop BusRdX")
		return resp

	case core.BusUpgr:
		if old == core.Modified {
			detail := "BusUpgr observed against a Modified line"
			if c.cfg.StrictInvariants {
				panic(fmt.Sprintf("pe %d: invariant violation: %s (addr=%d)", c.peID, detail, addr))
			}
			c.emitInvariantViolation(addr, detail)
			ln.State = core.Invalid
			c.stats.Invalidations++
			c.transition(addr, old, core.Invalid, "snoop BusUpgr (invariant violation, dropped to I)")
			return bus.SnoopResponse{HadCopy: true}
		}
		ln.State = core.Invalid
		c.stats.Invalidations++
		c.transition(addr, old, core.Invalid, "snoop BusUpgr")
		return bus.SnoopResponse{HadCopy: true}

	case core.Flush:
		return bus.SnoopResponse{HadCopy: true}

	default:
		return bus.SnoopResponse{}
	}
}

// FlushAll writes back every Modified line and transitions it to Exclusive
// (spec.md §4.3.6 — Exclusive because no other cache can hold a copy of an
// M line under invariant 1).
func (c *Cache) FlushAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for index := range c.sets {
		for way := range c.sets[index] {
			ln := &c.sets[index][way]
			if ln.State != core.Modified {
				continue
			}
			if err := c.writebackLocked(uint64(index), way); err != nil {
				c.emitInvariantViolation(c.blockAddrOf(uint64(index), ln.Tag), "writeback failed during flush_all: "+err.Error())
				continue
			}
			old := ln.State
			ln.State = core.Exclusive
			c.transition(c.blockAddrOf(uint64(index), ln.Tag), old, core.Exclusive, "flush_all")
		}
	}
}

// DumpLine returns a snapshot of one line, for the stepper's `cache <pe>`
// command.
func (c *Cache) DumpLine(index, way int) Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	ln := c.sets[index][way]
	out := ln
	out.Data = append([]byte(nil), ln.Data...)
	return out
}

// NumSets and NumWays expose the cache's geometry for inspection tooling.
func (c *Cache) NumSets() int { return len(c.sets) }
func (c *Cache) NumWays() int { return c.cfg.Ways }
