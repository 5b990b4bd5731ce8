// Package isa implements the toy ISA interpreter: one register machine per
// processing element, exclusively a client of its private cache (spec.md
// §4.4).
package isa

import (
	"fmt"

	"github.com/example/mesisim/core"
	"github.com/example/mesisim/logging"
)

// Cache is the capability a PE needs from its private L1: double load and
// store. Any type satisfying this — the real cache or a test double — can
// drive a PE (spec.md §9, "heterogeneous cache interface").
type Cache interface {
	ReadDouble(addr uint64) (float64, error)
	WriteDouble(addr uint64, value float64) error
}

// Stats counts the memory instructions a PE has issued.
type Stats struct {
	Loads  uint64
	Stores uint64
}

// PE is one processing element: eight general-purpose registers (each
// storable as either a double or an int), a program counter, a halt flag,
// and a private cache.
type PE struct {
	id    int
	cache Cache
	log   *logging.Logger

	pc      int
	halted  bool
	regs    [core.NumRegisters]float64
	program []core.Instruction
	labels  map[string]int

	breakpoints map[int]bool
	stats       Stats
}

// New builds a PE bound to id and cache, with an empty program.
func New(id int, cache Cache, log *logging.Logger) *PE {
	if log == nil {
		log = logging.Default()
	}
	return &PE{
		id:          id,
		cache:       cache,
		log:         log,
		breakpoints: make(map[int]bool),
	}
}

// ID returns this PE's index.
func (p *PE) ID() int { return p.id }

// LoadProgram installs a program and its label table, resetting pc and the
// halt flag (original_source/pe.cpp's load_program).
func (p *PE) LoadProgram(program []core.Instruction, labels map[string]int) {
	p.program = program
	p.labels = labels
	p.pc = 0
	p.halted = false
}

// SetPC jumps to newPC and clears the halt flag, so a halted PE can be
// resumed at an arbitrary PC (original_source/pe.h's set_pc).
func (p *PE) SetPC(newPC int) {
	p.pc = newPC
	p.halted = false
}

// PC returns the current program counter.
func (p *PE) PC() int { return p.pc }

// Halted reports whether the PE has executed HALT or run off the end of its
// program.
func (p *PE) Halted() bool { return p.halted }

// Stats returns a snapshot of this PE's load/store counters.
func (p *PE) Stats() Stats { return p.stats }

// RegDouble returns register r reinterpreted as a double.
func (p *PE) RegDouble(r int) float64 { return p.regs[r] }

// SetRegDouble stores v into register r as a double.
func (p *PE) SetRegDouble(r int, v float64) { p.regs[r] = v }

// RegInt returns register r truncated to an int, the same narrowing the
// original source performs via static_cast<int>(double) (original_source/
// pe.cpp's get_reg_int).
func (p *PE) RegInt(r int) int { return int(p.regs[r]) }

// SetRegInt stores v into register r, widened to a double the way the
// original source's set_reg_int does.
func (p *PE) SetRegInt(r int, v int) { p.regs[r] = float64(v) }

// SetBreakpoint and ClearBreakpoint manage this PE's own breakpoint set, and
// AtBreakpoint reports whether the current PC is in it. The stepper's
// `break`/`clear`/`breaks` commands keep a separate table and do not use it.
func (p *PE) SetBreakpoint(pc int)   { p.breakpoints[pc] = true }
func (p *PE) ClearBreakpoint(pc int) { delete(p.breakpoints, pc) }
func (p *PE) AtBreakpoint() bool     { return p.breakpoints[p.pc] }

// Breakpoints returns the sorted-by-caller-irrelevant set of breakpoint PCs.
func (p *PE) Breakpoints() []int {
	out := make([]int, 0, len(p.breakpoints))
	for pc := range p.breakpoints {
		out = append(out, pc)
	}
	return out
}

// Step fetches, dispatches, and advances pc by one instruction (spec.md
// §4.4). If the PE is already halted or has run past the end of its
// program, Step is a no-op. A LOAD/STORE that fails (alignment, range, or
// any other cache error) halts the PE and logs through the injected
// logger rather than being swallowed — the cache never retries on the
// PE's behalf (spec.md §7).
func (p *PE) Step() error {
	if p.halted || p.pc < 0 || p.pc >= len(p.program) {
		p.halted = true
		return nil
	}
	instr := p.program[p.pc]
	switch instr.Op {
	case core.LOAD:
		if err := p.execLoad(instr); err != nil {
			p.halted = true
			p.log.Errorf("pe %d: halting on memory error: %v", p.id, err)
			return err
		}
	case core.STORE:
		if err := p.execStore(instr); err != nil {
			p.halted = true
			p.log.Errorf("pe %d: halting on memory error: %v", p.id, err)
			return err
		}
	case core.FMUL:
		p.SetRegDouble(instr.Rd, p.RegDouble(instr.Ra)*p.RegDouble(instr.Rb))
	case core.FADD:
		p.SetRegDouble(instr.Rd, p.RegDouble(instr.Ra)+p.RegDouble(instr.Rb))
	case core.INC:
		p.SetRegInt(instr.Rd, p.RegInt(instr.Rd)+8)
	case core.DEC:
		p.SetRegInt(instr.Rd, p.RegInt(instr.Rd)-1)
	case core.JNZ:
		p.execJNZ(instr)
	case core.HALT:
		p.halted = true
	case core.NOP:
		// no-op
	}
	p.pc++
	return nil
}

// Run loops Step until halted or the program ends, or until maxSteps is
// reached (0 means unbounded), matching the structure of original_source/
// pe.cpp's run() without its periodic progress log.
func (p *PE) Run(maxSteps int) error {
	steps := 0
	for !p.halted && p.pc < len(p.program) {
		if maxSteps > 0 && steps >= maxSteps {
			return fmt.Errorf("pe %d: exceeded max_steps=%d without halting", p.id, maxSteps)
		}
		if err := p.Step(); err != nil {
			return err
		}
		steps++
	}
	if p.pc >= len(p.program) {
		p.halted = true
	}
	return nil
}

func (p *PE) resolveAddr(instr core.Instruction) uint64 {
	if instr.AddrIsReg {
		return uint64(p.RegInt(instr.Ra))
	}
	return instr.Address
}

// checkAlignment reports misalignment as a warning through the injected
// logger rather than a hard error: the cache itself operates at block
// granularity and accepts any byte address (spec.md §4.3.7).
func (p *PE) checkAlignment(addr uint64, instr core.Instruction) {
	if addr%8 != 0 {
		p.log.Warnf("pe %d: access not 8B-aligned addr=%d (pc=%d rd=R%d)", p.id, addr, p.pc, instr.Rd)
	}
}

func (p *PE) execLoad(instr core.Instruction) error {
	addr := p.resolveAddr(instr)
	p.checkAlignment(addr, instr)
	v, err := p.cache.ReadDouble(addr)
	if err != nil {
		return fmt.Errorf("pe %d: load at pc=%d addr=%d: %w", p.id, p.pc, addr, err)
	}
	p.SetRegDouble(instr.Rd, v)
	p.stats.Loads++
	return nil
}

func (p *PE) execStore(instr core.Instruction) error {
	addr := p.resolveAddr(instr)
	p.checkAlignment(addr, instr)
	v := p.RegDouble(instr.Rd)
	if err := p.cache.WriteDouble(addr, v); err != nil {
		return fmt.Errorf("pe %d: store at pc=%d addr=%d: %w", p.id, p.pc, addr, err)
	}
	p.stats.Stores++
	return nil
}

func (p *PE) execJNZ(instr core.Instruction) {
	if p.RegInt(instr.Rd) == 0 {
		return
	}
	target, ok := p.labels[instr.Label]
	if !ok {
		// Unknown label: the assembler already emitted a diagnostic for this
		// at parse time (spec.md §7); at runtime it degrades to no-jump.
		return
	}
	p.pc = target - 1 // Step()'s trailing pc++ lands exactly on target.
}
