// Package stepper implements the interactive REPL over a system.System:
// single-step, breakpoints, inspection, and bounded continuous run
// (spec.md §4.5, §6), grounded on original_source/sim_step.cpp's command
// loop and adapted to the teacher's split between parsing a command and
// dispatching it (simulator.CommandSource/CommandHandler in the teacher,
// collapsed here to a concrete Command since the REPL only ever handles
// one command shape).
package stepper

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/example/mesisim/core"
	"github.com/example/mesisim/system"
)

const helpText = `Commands:
  help                       - this message
  step [N]                   - advance N global round-robin steps (default 1)
  stepi <pe> [N]             - advance N steps on one PE (default 1)
  cont                       - run until all halted or a breakpoint, then flush and show results
  run                        - alias for cont
  regs [pe]                  - dump registers (all PEs if omitted)
  pc [pe]                    - dump program counter(s)
  status                     - dump PC, halt flag, and registers for every PE
  mem <addr> [count]         - print count doubles starting at addr (hex or decimal)
  mem owner <addr>           - print which PE's segment owns addr, or none
  cache <pe>                 - dump one cache's lines
  stats                      - per-cache counters
  break <pe> <pc>            - set a breakpoint
  clear <pe> <pc>            - clear a breakpoint
  breaks                     - list breakpoints
  quit                       - flush and exit
`

// defaultMaxSteps bounds `cont`/`run` so a runaway program cannot hang the
// REPL forever (spec.md §5, "implementation-defined safety bound").
const defaultMaxSteps = 10000

type breakpoint struct {
	pe, pc int
}

// Stepper drives a system.System from parsed commands.
type Stepper struct {
	sys         *system.System
	layout      system.Layout
	haveLayout  bool
	breakpoints map[breakpoint]bool
	maxSteps    int
}

// New builds a Stepper over sys. The dot-product layout is optional: without
// a SetLayout call, `cont`/`run` still flush but print only the results
// header, with no dot-product value.
func New(sys *system.System) *Stepper {
	return &Stepper{
		sys:         sys,
		breakpoints: make(map[breakpoint]bool),
		maxSteps:    defaultMaxSteps,
	}
}

// SetLayout records the dot-product memory layout so `cont`/`run` can
// report the reduced scalar after flushing.
func (st *Stepper) SetLayout(layout system.Layout) {
	st.layout = layout
	st.haveLayout = true
}

// SetMaxSteps overrides the safety bound used by cont/run.
func (st *Stepper) SetMaxSteps(n int) { st.maxSteps = n }

func (st *Stepper) hitBreakpoint() bool {
	for _, p := range st.sys.PEs {
		if st.breakpoints[breakpoint{p.ID(), p.PC()}] {
			return true
		}
	}
	return false
}

func (st *Stepper) validPE(idx int) bool {
	return idx >= 0 && idx < st.sys.NumPEs()
}

// Execute parses and runs one REPL line, returning its textual output and
// whether the REPL should exit (the `quit` command).
func (st *Stepper) Execute(line string) (string, bool) {
	cmd := ParseCommand(line)
	if cmd.Name == "" {
		return "", false
	}

	var out strings.Builder
	switch cmd.Name {
	case "help", "h", "?":
		out.WriteString(helpText)

	case "quit", "q", "exit":
		st.sys.FlushAll()
		return out.String(), true

	case "step", "s":
		n := 1
		if len(cmd.Args) >= 1 {
			if v, ok := parseUint64(cmd.Args[0]); ok {
				n = int(v)
			}
		}
		for i := 0; i < n; i++ {
			advanced, err := st.sys.StepRoundRobinUntil(st.hitBreakpoint)
			if err != nil {
				fmt.Fprintf(&out, "error: %v\n", err)
				break
			}
			if !advanced || st.hitBreakpoint() {
				break
			}
		}

	case "stepi":
		if len(cmd.Args) < 1 {
			out.WriteString("usage: stepi <pe> [N]\n")
			break
		}
		pe, ok := parseInt(cmd.Args[0])
		if !ok || !st.validPE(pe) {
			out.WriteString("invalid pe\n")
			break
		}
		n := 1
		if len(cmd.Args) >= 2 {
			if v, ok := parseUint64(cmd.Args[1]); ok {
				n = int(v)
			}
		}
		p := st.sys.PEs[pe]
		for i := 0; i < n; i++ {
			if p.Halted() {
				break
			}
			if err := p.Step(); err != nil {
				fmt.Fprintf(&out, "error: %v\n", err)
				break
			}
			if st.hitBreakpoint() {
				break
			}
		}

	case "cont", "c", "continue", "run", "r":
		steps := 0
		for st.sys.AnyRunning() && steps < st.maxSteps {
			advanced, err := st.sys.StepRoundRobin()
			if err != nil {
				fmt.Fprintf(&out, "error: %v\n", err)
				break
			}
			steps++
			if !advanced || st.hitBreakpoint() {
				break
			}
		}
		if steps >= st.maxSteps {
			fmt.Fprintf(&out, "warning: reached max_steps=%d\n", st.maxSteps)
		}
		st.sys.FlushAll()
		st.writeResults(&out)

	case "regs":
		if len(cmd.Args) == 1 {
			pe, ok := parseInt(cmd.Args[0])
			if !ok || !st.validPE(pe) {
				out.WriteString("invalid pe\n")
				break
			}
			st.dumpRegs(&out, pe)
		} else {
			for pe := 0; pe < st.sys.NumPEs(); pe++ {
				st.dumpRegs(&out, pe)
			}
		}

	case "pc":
		if len(cmd.Args) == 1 {
			pe, ok := parseInt(cmd.Args[0])
			if !ok || !st.validPE(pe) {
				out.WriteString("invalid pe\n")
				break
			}
			st.dumpPC(&out, pe)
		} else {
			for pe := 0; pe < st.sys.NumPEs(); pe++ {
				st.dumpPC(&out, pe)
			}
		}

	case "status", "st":
		for pe := 0; pe < st.sys.NumPEs(); pe++ {
			st.dumpPC(&out, pe)
			st.dumpRegs(&out, pe)
		}

	case "mem":
		st.execMem(&out, cmd.Args)

	case "cache":
		if len(cmd.Args) < 1 {
			out.WriteString("usage: cache <pe>\n")
			break
		}
		pe, ok := parseInt(cmd.Args[0])
		if !ok || !st.validPE(pe) {
			out.WriteString("invalid pe\n")
			break
		}
		st.dumpCache(&out, pe)

	case "stats":
		for pe, s := range st.sys.Stats() {
			fmt.Fprintf(&out, "PE%d: reads=%d writes=%d misses=%d invalidations=%d bus_msgs=%d writebacks=%d upgrades=%d\n",
				pe, s.Reads, s.Writes, s.Misses, s.Invalidations, s.BusMsgs, s.Writebacks, s.Upgrades)
		}

	case "break", "b":
		if len(cmd.Args) < 2 {
			out.WriteString("usage: break <pe> <pc>\n")
			break
		}
		pe, ok1 := parseInt(cmd.Args[0])
		pc, ok2 := parseInt(cmd.Args[1])
		if !ok1 || !st.validPE(pe) {
			out.WriteString("invalid pe\n")
			break
		}
		if !ok2 || pc < 0 {
			out.WriteString("invalid pc\n")
			break
		}
		st.breakpoints[breakpoint{pe, pc}] = true
		fmt.Fprintf(&out, "breakpoint added at PE%d PC=%d\n", pe, pc)

	case "clear":
		if len(cmd.Args) < 2 {
			out.WriteString("usage: clear <pe> <pc>\n")
			break
		}
		pe, ok1 := parseInt(cmd.Args[0])
		pc, ok2 := parseInt(cmd.Args[1])
		if !ok1 || !ok2 {
			out.WriteString("invalid arguments\n")
			break
		}
		delete(st.breakpoints, breakpoint{pe, pc})
		out.WriteString("breakpoint removed\n")

	case "breaks":
		if len(st.breakpoints) == 0 {
			out.WriteString("no active breakpoints\n")
			break
		}
		for bp := range st.breakpoints {
			fmt.Fprintf(&out, "  PE%d PC=%d\n", bp.pe, bp.pc)
		}

	default:
		out.WriteString("unknown command. type 'help'.\n")
	}

	return out.String(), false
}

func (st *Stepper) dumpRegs(out *strings.Builder, pe int) {
	p := st.sys.PEs[pe]
	fmt.Fprintf(out, "[PE%d] PC=%d HALT=%v\n", pe, p.PC(), p.Halted())
	for r := 0; r < core.NumRegisters; r++ {
		fmt.Fprintf(out, "  R%d = %v\n", r, p.RegDouble(r))
	}
}

func (st *Stepper) dumpPC(out *strings.Builder, pe int) {
	p := st.sys.PEs[pe]
	fmt.Fprintf(out, "[PE%d] PC=%d HALT=%v\n", pe, p.PC(), p.Halted())
}

func (st *Stepper) execMem(out *strings.Builder, args []string) {
	if len(args) >= 2 && args[0] == "owner" {
		addr, ok := parseUint64(args[1])
		if !ok {
			out.WriteString("invalid addr\n")
			return
		}
		owner := st.sys.Memory.Owner(addr)
		if owner < 0 {
			fmt.Fprintf(out, "addr %d: no owner\n", addr)
		} else {
			fmt.Fprintf(out, "addr %d: owned by PE%d\n", addr, owner)
		}
		return
	}
	if len(args) < 1 {
		out.WriteString("usage: mem <addr> [count]\n")
		return
	}
	addr, ok := parseUint64(args[0])
	if !ok {
		out.WriteString("invalid addr\n")
		return
	}
	count := uint64(8)
	if len(args) >= 2 {
		if v, ok := parseUint64(args[1]); ok {
			count = v
		}
	}
	for i := uint64(0); i < count; i++ {
		a := addr + i*8
		v, err := st.sys.Memory.LoadDouble(a)
		if err != nil {
			fmt.Fprintf(out, "M[%d] @0x%x: error: %v\n", a/8, a, err)
			continue
		}
		fmt.Fprintf(out, "M[%d] @0x%x = %v\n", a/8, a, v)
	}
}

func (st *Stepper) dumpCache(out *strings.Builder, pe int) {
	c := st.sys.Caches[pe]
	fmt.Fprintf(out, "[PE%d cache]\n", pe)
	for set := 0; set < c.NumSets(); set++ {
		for way := 0; way < c.NumWays(); way++ {
			ln := c.DumpLine(set, way)
			fmt.Fprintf(out, "  set=%d way=%d state=%s tag=%d recent=%v\n", set, way, ln.State, ln.Tag, ln.Recent)
		}
	}
}

func (st *Stepper) writeResults(out *strings.Builder) {
	out.WriteString("\n=== RESULTS ===\n")
	if !st.haveLayout {
		return
	}
	total, err := system.Reduce(st.sys, st.layout)
	if err != nil {
		fmt.Fprintf(out, "error computing result: %v\n", err)
		return
	}
	fmt.Fprintf(out, "dot product: %v\n", total)
}

// Run drives the REPL over in, writing prompts and command output to out,
// until `quit` or in is exhausted.
func (st *Stepper) Run(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "stepper> ")
		if !scanner.Scan() {
			return
		}
		output, quit := st.Execute(scanner.Text())
		fmt.Fprint(out, output)
		if quit {
			return
		}
	}
}
