// Package asm implements the line-oriented two-pass assembler: strip
// comments, collect labels, then tokenize and decode instructions
// (spec.md §4.5, §6). Unknown mnemonics degrade to NOP and unresolved
// labels are reported as diagnostics rather than failing the whole parse
// (spec.md §7).
package asm

import (
	"strconv"
	"strings"

	"github.com/example/mesisim/core"
)

// Diagnostic is a non-fatal parse note: an unknown mnemonic, a malformed
// operand, or a JNZ referencing a label that was never defined.
type Diagnostic struct {
	Line    int // 1-based source line number
	Message string
}

// Program is the result of assembling one source text: the decoded
// instructions, their label table, and any diagnostics collected along
// the way.
type Program struct {
	Instructions []core.Instruction
	Labels       map[string]int
	Diagnostics  []Diagnostic
}

// defaultJNZRegister is the implicit counter register used by the
// single-operand `JNZ LABEL` form (original_source/parser.cpp's
// make_instr_from_tokens: "Registro por defecto para contador").
const defaultJNZRegister = 3

// Assemble translates assembly source text into a Program. It never
// returns an error: malformed lines degrade to NOP or a no-jump JNZ and
// are recorded as diagnostics instead (spec.md §7).
func Assemble(src string) Program {
	rawLines := strings.Split(src, "\n")

	type cleanedLine struct {
		sourceLine int
		text       string
	}

	labels := make(map[string]int)
	var cleaned []cleanedLine

	// First pass: strip comments, collect labels, keep everything else.
	for i, line := range rawLines {
		lineNo := i + 1
		line = stripComment(line)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			label := strings.TrimSpace(strings.TrimSuffix(line, ":"))
			labels[label] = len(cleaned)
			continue
		}
		cleaned = append(cleaned, cleanedLine{sourceLine: lineNo, text: line})
	}

	prog := Program{Labels: labels}

	// Second pass: tokenize and decode each instruction line.
	for _, cl := range cleaned {
		toks := tokenize(cl.text)
		if len(toks) == 0 {
			continue
		}
		instr, diag := decodeInstruction(toks, cl.text)
		if diag != "" {
			prog.Diagnostics = append(prog.Diagnostics, Diagnostic{Line: cl.sourceLine, Message: diag})
			instr = core.Instruction{Op: core.NOP, Source: cl.text}
		}
		prog.Instructions = append(prog.Instructions, instr)
	}

	// Validate JNZ targets now that every label from the whole source is
	// known; an unresolved label is reported but left in the instruction
	// so the PE's own lookup degrades to a no-jump at runtime.
	for i, instr := range prog.Instructions {
		if instr.Op != core.JNZ || instr.Label == "" {
			continue
		}
		if _, ok := labels[instr.Label]; !ok {
			prog.Diagnostics = append(prog.Diagnostics, Diagnostic{
				Line:    0,
				Message: "instruction " + strconv.Itoa(i) + ": JNZ references undefined label " + instr.Label,
			})
		}
	}

	return prog
}

func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	return line
}

// tokenize splits a line on whitespace and commas, matching
// original_source/parser.cpp's tokenize_line.
func tokenize(line string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, c := range line {
		switch {
		case c == ',':
			flush()
		case c == ' ' || c == '\t' || c == '\r':
			flush()
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return toks
}

// isRegisterToken reports whether tok names R0-R7.
func isRegisterToken(tok string) (int, bool) {
	if len(tok) < 2 {
		return 0, false
	}
	if tok[0] != 'R' && tok[0] != 'r' {
		return 0, false
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil || n < 0 || n >= core.NumRegisters {
		return 0, false
	}
	return n, true
}

// parseAddrOperand decodes a LOAD/STORE address operand: either `[Rn]`
// (register-indirect) or a decimal immediate.
func parseAddrOperand(tok string) (addrIsReg bool, reg int, addr uint64, ok bool) {
	if len(tok) >= 3 && strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
		inner := tok[1 : len(tok)-1]
		if r, isReg := isRegisterToken(inner); isReg {
			return true, r, 0, true
		}
		return false, 0, 0, false
	}
	v, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return false, 0, 0, false
	}
	return false, 0, v, true
}

// decodeInstruction builds one Instruction from its tokens, mirroring
// original_source/parser.cpp's make_instr_from_tokens opcode by opcode.
// Any operand that fails to parse simply leaves the corresponding field at
// its zero value, same as the original's best-effort decode; a diagnostic
// is returned describing the problem, and Assemble then replaces the
// instruction with a NOP.
func decodeInstruction(toks []string, source string) (core.Instruction, string) {
	instr := core.Instruction{Source: source}
	op := strings.ToUpper(toks[0])

	switch op {
	case "LOAD", "STORE":
		instr.Op = core.LOAD
		if op == "STORE" {
			instr.Op = core.STORE
		}
		if len(toks) < 3 {
			return instr, "malformed " + op + ": expected <reg>, <addr>"
		}
		if r, ok := isRegisterToken(toks[1]); ok {
			instr.Rd = r
		} else {
			return instr, "malformed " + op + ": " + toks[1] + " is not a register"
		}
		addrIsReg, reg, addr, ok := parseAddrOperand(toks[2])
		if !ok {
			return instr, "malformed " + op + ": " + toks[2] + " is not a valid address operand"
		}
		instr.AddrIsReg = addrIsReg
		instr.Ra = reg
		instr.Address = addr
		return instr, ""

	case "FMUL", "FADD":
		instr.Op = core.FMUL
		if op == "FADD" {
			instr.Op = core.FADD
		}
		if len(toks) < 4 {
			return instr, "malformed " + op + ": expected <rd>, <ra>, <rb>"
		}
		rd, okd := isRegisterToken(toks[1])
		ra, oka := isRegisterToken(toks[2])
		rb, okb := isRegisterToken(toks[3])
		if !okd || !oka || !okb {
			return instr, "malformed " + op + ": all three operands must be registers"
		}
		instr.Rd, instr.Ra, instr.Rb = rd, ra, rb
		return instr, ""

	case "INC", "DEC":
		instr.Op = core.INC
		if op == "DEC" {
			instr.Op = core.DEC
		}
		if len(toks) < 2 {
			return instr, "malformed " + op + ": expected <reg>"
		}
		r, ok := isRegisterToken(toks[1])
		if !ok {
			return instr, "malformed " + op + ": " + toks[1] + " is not a register"
		}
		instr.Rd = r
		return instr, ""

	case "JNZ":
		instr.Op = core.JNZ
		if len(toks) < 2 {
			return instr, "malformed JNZ: expected [<reg>,] <label>"
		}
		if r, ok := isRegisterToken(toks[1]); ok {
			instr.Rd = r
			if len(toks) >= 3 {
				instr.Label = toks[2]
			} else {
				return instr, "malformed JNZ: missing label after register"
			}
		} else {
			instr.Rd = defaultJNZRegister
			instr.Label = toks[1]
		}
		return instr, ""

	case "HALT":
		instr.Op = core.HALT
		return instr, ""

	case "NOP":
		instr.Op = core.NOP
		return instr, ""

	default:
		instr.Op = core.NOP
		return instr, "unknown mnemonic " + toks[0] + " degraded to NOP"
	}
}
