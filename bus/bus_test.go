package bus

import (
	"sync"
	"testing"

	"github.com/example/mesisim/core"
	"github.com/example/mesisim/hooks"
)

type fakeCache struct {
	id        int
	hadCopy   bool
	wroteBack bool

	mu      sync.Mutex
	snooped []core.BusMsgType
	flushed int
}

func (f *fakeCache) ID() int { return f.id }

func (f *fakeCache) Snoop(msg core.BusMsgType, addr uint64) SnoopResponse {
	f.mu.Lock()
	f.snooped = append(f.snooped, msg)
	f.mu.Unlock()
	return SnoopResponse{HadCopy: f.hadCopy, WroteBack: f.wroteBack}
}

func (f *fakeCache) FlushAll() {
	f.mu.Lock()
	f.flushed++
	f.mu.Unlock()
}

func TestBroadcastSkipsOrigin(t *testing.T) {
	b := New(nil, nil)
	c0 := &fakeCache{id: 0}
	c1 := &fakeCache{id: 1}
	b.Register(c0)
	b.Register(c1)

	b.Broadcast(c0, core.BusRd, 0x40)

	if len(c0.snooped) != 0 {
		t.Fatalf("origin should not snoop itself, got %d snoops", len(c0.snooped))
	}
	if len(c1.snooped) != 1 || c1.snooped[0] != core.BusRd {
		t.Fatalf("expected c1 to see one BusRd snoop, got %v", c1.snooped)
	}
}

func TestBroadcastAggregatesSummary(t *testing.T) {
	b := New(nil, nil)
	c0 := &fakeCache{id: 0}
	c1 := &fakeCache{id: 1, hadCopy: true}
	c2 := &fakeCache{id: 2, wroteBack: true}
	b.Register(c0)
	b.Register(c1)
	b.Register(c2)

	summary := b.Broadcast(c0, core.BusRdX, 0x80)

	if !summary.SharedSeen {
		t.Fatalf("expected SharedSeen true, c1 had a copy")
	}
	if !summary.ModSeen {
		t.Fatalf("expected ModSeen true, c2 wrote back")
	}
}

func TestBroadcastWithNilOriginSnoopsEveryone(t *testing.T) {
	b := New(nil, nil)
	c0 := &fakeCache{id: 0}
	c1 := &fakeCache{id: 1}
	b.Register(c0)
	b.Register(c1)

	b.Broadcast(nil, core.Flush, 0x0)

	if len(c0.snooped) != 1 || len(c1.snooped) != 1 {
		t.Fatalf("expected every cache to be snooped once, got c0=%d c1=%d", len(c0.snooped), len(c1.snooped))
	}
}

func TestFlushAllReachesEveryCache(t *testing.T) {
	b := New(nil, nil)
	c0 := &fakeCache{id: 0}
	c1 := &fakeCache{id: 1}
	b.Register(c0)
	b.Register(c1)

	b.FlushAll()

	if c0.flushed != 1 || c1.flushed != 1 {
		t.Fatalf("expected both caches flushed once, got c0=%d c1=%d", c0.flushed, c1.flushed)
	}
}

func TestBroadcastEmitsBusTransactionEvent(t *testing.T) {
	broker := hooks.NewBroker()
	var got hooks.BusTransactionEvent
	calls := 0
	broker.OnBusTransaction(func(e hooks.BusTransactionEvent) {
		calls++
		got = e
	})

	b := New(broker, nil)
	c0 := &fakeCache{id: 0}
	c1 := &fakeCache{id: 1, hadCopy: true}
	b.Register(c0)
	b.Register(c1)

	b.Broadcast(c0, core.BusRd, 0x100)

	if calls != 1 {
		t.Fatalf("expected exactly one bus transaction event, got %d", calls)
	}
	if got.OriginPEID != 0 || got.Msg != core.BusRd || got.Addr != 0x100 || !got.SharedSeen {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestNumCaches(t *testing.T) {
	b := New(nil, nil)
	if b.NumCaches() != 0 {
		t.Fatalf("expected 0 caches on a fresh bus")
	}
	b.Register(&fakeCache{id: 0})
	b.Register(&fakeCache{id: 1})
	if b.NumCaches() != 2 {
		t.Fatalf("expected 2 caches, got %d", b.NumCaches())
	}
}
