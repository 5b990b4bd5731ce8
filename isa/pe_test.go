package isa

import (
	"errors"
	"testing"

	"github.com/example/mesisim/core"
)

// memCache is a minimal Cache double backed by an address-to-double map, used to
// drive a PE without the full coherence engine.
type memCache struct {
	words map[uint64]float64
	err   error
}

func newMemCache() *memCache { return &memCache{words: make(map[uint64]float64)} }

func (m *memCache) ReadDouble(addr uint64) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.words[addr], nil
}

func (m *memCache) WriteDouble(addr uint64, value float64) error {
	if m.err != nil {
		return m.err
	}
	m.words[addr] = value
	return nil
}

func TestLoadStoreRoundTrip(t *testing.T) {
	cache := newMemCache()
	cache.words[0] = 1.5
	pe := New(0, cache, nil)
	pe.LoadProgram([]core.Instruction{
		{Op: core.LOAD, Rd: 0, Address: 0},
		{Op: core.STORE, Rd: 0, Address: 8},
		{Op: core.HALT},
	}, nil)

	if err := pe.Run(10); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !pe.Halted() {
		t.Fatalf("expected halted")
	}
	if cache.words[8] != 1.5 {
		t.Fatalf("expected 1.5 stored at addr 8, got %v", cache.words[8])
	}
	if pe.Stats().Loads != 1 || pe.Stats().Stores != 1 {
		t.Fatalf("expected 1 load and 1 store, got %+v", pe.Stats())
	}
}

func TestFmulFadd(t *testing.T) {
	pe := New(0, newMemCache(), nil)
	pe.SetRegDouble(0, 2.0)
	pe.SetRegDouble(1, 3.0)
	pe.LoadProgram([]core.Instruction{
		{Op: core.FMUL, Rd: 2, Ra: 0, Rb: 1},
		{Op: core.FADD, Rd: 3, Ra: 2, Rb: 0},
		{Op: core.HALT},
	}, nil)

	if err := pe.Run(10); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pe.RegDouble(2) != 6.0 {
		t.Fatalf("expected R2=6.0, got %v", pe.RegDouble(2))
	}
	if pe.RegDouble(3) != 8.0 {
		t.Fatalf("expected R3=8.0, got %v", pe.RegDouble(3))
	}
}

func TestIncDec(t *testing.T) {
	pe := New(0, newMemCache(), nil)
	pe.SetRegInt(0, 0)
	pe.SetRegInt(1, 3)
	pe.LoadProgram([]core.Instruction{
		{Op: core.INC, Rd: 0},
		{Op: core.DEC, Rd: 1},
		{Op: core.HALT},
	}, nil)

	if err := pe.Run(10); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pe.RegInt(0) != 8 {
		t.Fatalf("expected R0=8 after INC, got %d", pe.RegInt(0))
	}
	if pe.RegInt(1) != 2 {
		t.Fatalf("expected R1=2 after DEC, got %d", pe.RegInt(1))
	}
}

func TestJNZLoop(t *testing.T) {
	pe := New(0, newMemCache(), nil)
	pe.SetRegInt(0, 3)
	program := []core.Instruction{
		{Op: core.DEC, Rd: 0},
		{Op: core.JNZ, Rd: 0, Label: "loop"},
		{Op: core.HALT},
	}
	pe.LoadProgram(program, map[string]int{"loop": 0})

	if err := pe.Run(100); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pe.RegInt(0) != 0 {
		t.Fatalf("expected R0=0 after loop, got %d", pe.RegInt(0))
	}
	if !pe.Halted() {
		t.Fatalf("expected halted after loop exits")
	}
}

func TestJNZUnknownLabelDoesNotJump(t *testing.T) {
	pe := New(0, newMemCache(), nil)
	pe.SetRegInt(0, 1)
	pe.LoadProgram([]core.Instruction{
		{Op: core.JNZ, Rd: 0, Label: "nowhere"},
		{Op: core.HALT},
	}, map[string]int{})

	if err := pe.Run(10); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pe.PC() != 2 {
		t.Fatalf("expected pc to fall through to 2, got %d", pe.PC())
	}
}

func TestRunStopsAtMaxSteps(t *testing.T) {
	pe := New(0, newMemCache(), nil)
	pe.SetRegInt(0, 1)
	pe.LoadProgram([]core.Instruction{
		{Op: core.JNZ, Rd: 0, Label: "loop"},
	}, map[string]int{"loop": 0})

	err := pe.Run(50)
	if err == nil {
		t.Fatalf("expected an error from an infinite loop hitting max_steps")
	}
}

func TestStepOnHaltedPEIsNoop(t *testing.T) {
	pe := New(0, newMemCache(), nil)
	pe.LoadProgram([]core.Instruction{{Op: core.HALT}}, nil)
	if err := pe.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if err := pe.Step(); err != nil {
		t.Fatalf("second Step on halted PE should be a no-op, got %v", err)
	}
	if !pe.Halted() {
		t.Fatalf("expected still halted")
	}
}

func TestCacheErrorPropagatesAndHaltsCaller(t *testing.T) {
	cache := newMemCache()
	cache.err = errors.New("boom")
	pe := New(0, cache, nil)
	pe.LoadProgram([]core.Instruction{{Op: core.LOAD, Rd: 0, Address: 0}}, nil)

	if err := pe.Run(10); err == nil {
		t.Fatalf("expected the cache error to propagate")
	}
	if !pe.Halted() {
		t.Fatalf("expected the PE to halt after a memory error")
	}
}

func TestBreakpoints(t *testing.T) {
	pe := New(0, newMemCache(), nil)
	pe.SetBreakpoint(2)
	if len(pe.Breakpoints()) != 1 {
		t.Fatalf("expected one breakpoint")
	}
	pe.ClearBreakpoint(2)
	if len(pe.Breakpoints()) != 0 {
		t.Fatalf("expected breakpoint cleared")
	}
}
