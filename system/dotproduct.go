package system

import (
	"fmt"

	"github.com/example/mesisim/asm"
)

// Layout records the dot-product workload's memory placement, in byte
// addresses (spec.md §6, "Program layout in memory"): A occupies
// [BaseA, BaseA+8N), B occupies [BaseB, BaseB+8N), the P partial sums
// occupy [BaseS, BaseS+8P), and the final scalar lives at ScalarAddr.
type Layout struct {
	N, P                     int
	BaseA, BaseB, BaseS      uint64
	ScalarAddr               uint64
}

// NewLayout computes the byte-address layout for n-element vectors
// reduced by p processing elements.
func NewLayout(n, p int) Layout {
	baseA := uint64(0)
	baseB := baseA + uint64(n)*8
	baseS := baseB + uint64(n)*8
	return Layout{
		N: n, P: p,
		BaseA: baseA, BaseB: baseB, BaseS: baseS,
		ScalarAddr: baseS + uint64(p)*8,
	}
}

// dotProductProgram computes S[p] = Σ A[i]*B[i] over a PE's assigned
// slice. R0/R1 are running byte pointers into A/B, R2 holds &S[p], R3 is
// the remaining element count, R4 the running accumulator; R5/R6/R7 are
// scratch. This is the assembly counterpart of original_source/sim_step.cpp's
// register convention (R0=&A[start], R1=&B[start], R2=&S[p], R3=len,
// R4=accumulator); no dotprod.asm source survives in the original, so this
// program is newly authored against that convention.
const dotProductProgram = `
loop:
  JNZ R3, body
  STORE R4, [R2]
  HALT
body:
  LOAD R5, [R0]
  LOAD R6, [R1]
  FMUL R7, R5, R6
  FADD R4, R4, R7
  INC R0
  INC R1
  DEC R3
  JNZ R3, loop
  STORE R4, [R2]
  HALT
`

// LoadDotProduct seeds main memory with A[i]=i+1, B[i]=2(i+1), zeroes the
// partial sums, assembles the dot-product program once, and loads it into
// every PE with a balanced-remainder slice of [0, N) and that PE's private
// register window (original_source/sim_step.cpp's load_program_to_all_pes).
func LoadDotProduct(s *System, n int) (Layout, error) {
	layout := NewLayout(n, s.NumPEs())

	for i := 0; i < n; i++ {
		if err := s.Memory.StoreDouble(layout.BaseA+uint64(i)*8, float64(i+1)); err != nil {
			return layout, fmt.Errorf("seed A[%d]: %w", i, err)
		}
		if err := s.Memory.StoreDouble(layout.BaseB+uint64(i)*8, float64(2*(i+1))); err != nil {
			return layout, fmt.Errorf("seed B[%d]: %w", i, err)
		}
	}
	for p := 0; p < s.NumPEs(); p++ {
		if err := s.Memory.StoreDouble(layout.BaseS+uint64(p)*8, 0); err != nil {
			return layout, fmt.Errorf("seed S[%d]: %w", p, err)
		}
	}
	if err := s.Memory.StoreDouble(layout.ScalarAddr, 0); err != nil {
		return layout, fmt.Errorf("seed scalar: %w", err)
	}

	prog := asm.Assemble(dotProductProgram)
	numPEs := s.NumPEs()
	baseLen := n / numPEs
	rest := n % numPEs
	startIndexOf := func(pe int) int {
		if pe < rest {
			return pe*baseLen + pe
		}
		return pe*baseLen + rest
	}
	lenOf := func(pe int) int {
		if pe < rest {
			return baseLen + 1
		}
		return baseLen
	}

	for p := 0; p < numPEs; p++ {
		start := startIndexOf(p)
		length := lenOf(p)

		pe := s.PEs[p]
		pe.LoadProgram(prog.Instructions, prog.Labels)
		pe.SetRegInt(0, int(layout.BaseA)+start*8)
		pe.SetRegInt(1, int(layout.BaseB)+start*8)
		pe.SetRegInt(2, int(layout.BaseS)+p*8)
		pe.SetRegInt(3, length)
		pe.SetRegDouble(4, 0.0)
	}

	return layout, nil
}

// Reduce sums every PE's partial sum out of main memory, writes the total
// into the scalar slot, and returns it. Call only after the caches have
// been flushed (System.FlushAll), so the partial sums are visible through
// memory (original_source/sim_step.cpp's show_final_results, extended to
// persist the total where spec.md §6 says it belongs).
func Reduce(s *System, layout Layout) (float64, error) {
	var total float64
	for p := 0; p < layout.P; p++ {
		v, err := s.Memory.LoadDouble(layout.BaseS + uint64(p)*8)
		if err != nil {
			return 0, fmt.Errorf("read S[%d]: %w", p, err)
		}
		total += v
	}
	if err := s.Memory.StoreDouble(layout.ScalarAddr, total); err != nil {
		return 0, fmt.Errorf("store scalar: %w", err)
	}
	return total, nil
}
