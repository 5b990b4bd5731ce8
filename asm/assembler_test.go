package asm

import (
	"testing"

	"github.com/example/mesisim/core"
)

func TestAssembleStripsCommentsAndBlankLines(t *testing.T) {
	src := `
// full line comment
LOAD R0, 0   // trailing comment
# shell-style comment
HALT
`
	prog := Assemble(src)
	if len(prog.Instructions) != 2 {
		t.Fatalf("expected 2 instructions, got %d: %+v", len(prog.Instructions), prog.Instructions)
	}
	if prog.Instructions[0].Op != core.LOAD || prog.Instructions[0].Address != 0 {
		t.Fatalf("unexpected first instruction: %+v", prog.Instructions[0])
	}
	if prog.Instructions[1].Op != core.HALT {
		t.Fatalf("unexpected second instruction: %+v", prog.Instructions[1])
	}
}

func TestAssembleLabelsAndJNZ(t *testing.T) {
	src := `
loop:
  DEC R0
  JNZ R0, loop
  HALT
`
	prog := Assemble(src)
	if len(prog.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", prog.Diagnostics)
	}
	if got, ok := prog.Labels["loop"]; !ok || got != 0 {
		t.Fatalf("expected label loop at instruction 0, got %d ok=%v", got, ok)
	}
	if prog.Instructions[1].Op != core.JNZ || prog.Instructions[1].Label != "loop" || prog.Instructions[1].Rd != 0 {
		t.Fatalf("unexpected JNZ decode: %+v", prog.Instructions[1])
	}
}

func TestJNZImplicitRegister(t *testing.T) {
	prog := Assemble("JNZ loop\nHALT\n")
	if prog.Instructions[0].Rd != defaultJNZRegister {
		t.Fatalf("expected implicit register %d, got %d", defaultJNZRegister, prog.Instructions[0].Rd)
	}
	if prog.Instructions[0].Label != "loop" {
		t.Fatalf("expected label 'loop', got %q", prog.Instructions[0].Label)
	}
}

func TestRegisterIndirectAddressing(t *testing.T) {
	prog := Assemble("LOAD R0, [R1]\n")
	instr := prog.Instructions[0]
	if !instr.AddrIsReg || instr.Ra != 1 {
		t.Fatalf("expected register-indirect via R1, got %+v", instr)
	}
}

func TestUnknownMnemonicDegradesToNOP(t *testing.T) {
	prog := Assemble("FROBNICATE R0, R1\n")
	if prog.Instructions[0].Op != core.NOP {
		t.Fatalf("expected NOP, got %v", prog.Instructions[0].Op)
	}
	if len(prog.Diagnostics) != 1 {
		t.Fatalf("expected one diagnostic, got %+v", prog.Diagnostics)
	}
}

func TestUndefinedJNZLabelIsDiagnosedNotFatal(t *testing.T) {
	prog := Assemble("JNZ R0, nowhere\nHALT\n")
	if len(prog.Instructions) != 2 {
		t.Fatalf("expected assembly to still produce both instructions")
	}
	found := false
	for _, d := range prog.Diagnostics {
		if d.Message != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a diagnostic for the undefined label")
	}
}

func TestFmulFaddDecode(t *testing.T) {
	prog := Assemble("FMUL R2, R0, R1\nFADD R3, R2, R0\n")
	if prog.Instructions[0].Op != core.FMUL || prog.Instructions[0].Rd != 2 || prog.Instructions[0].Ra != 0 || prog.Instructions[0].Rb != 1 {
		t.Fatalf("unexpected FMUL decode: %+v", prog.Instructions[0])
	}
	if prog.Instructions[1].Op != core.FADD || prog.Instructions[1].Rd != 3 {
		t.Fatalf("unexpected FADD decode: %+v", prog.Instructions[1])
	}
}

func TestMalformedOperandsAreDiagnosedAndZeroed(t *testing.T) {
	prog := Assemble("LOAD X9, garbage\n")
	if len(prog.Diagnostics) == 0 {
		t.Fatalf("expected a diagnostic for malformed operands")
	}
	if instr := prog.Instructions[0]; instr.Op != core.NOP || instr.Rd != 0 || instr.Address != 0 || instr.AddrIsReg {
		t.Fatalf("expected the malformed line to become a zeroed NOP, got %+v", instr)
	}
}
