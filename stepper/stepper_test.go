package stepper

import (
	"strings"
	"testing"

	"github.com/example/mesisim/core"
	"github.com/example/mesisim/system"
)

func newTestStepper(t *testing.T, numPEs, n int) (*Stepper, system.Layout) {
	t.Helper()
	cfg := core.Reference()
	s := system.New(numPEs, 512, cfg, nil, nil)
	t.Cleanup(s.Memory.Close)
	layout, err := system.LoadDotProduct(s, n)
	if err != nil {
		t.Fatalf("LoadDotProduct: %v", err)
	}
	st := New(s)
	st.SetLayout(layout)
	return st, layout
}

func TestParseCommandBasics(t *testing.T) {
	cmd := ParseCommand("  Step   3  ")
	if cmd.Name != "step" || len(cmd.Args) != 1 || cmd.Args[0] != "3" {
		t.Fatalf("unexpected parse: %+v", cmd)
	}
	if ParseCommand("   ").Name != "" {
		t.Fatalf("expected empty command for blank line")
	}
}

func TestHelpCommand(t *testing.T) {
	st, _ := newTestStepper(t, 2, 4)
	out, quit := st.Execute("help")
	if quit {
		t.Fatalf("help should not quit")
	}
	if !strings.Contains(out, "step [N]") {
		t.Fatalf("expected help text, got %q", out)
	}
}

func TestQuitFlushesAndExits(t *testing.T) {
	st, _ := newTestStepper(t, 2, 4)
	if err := st.sys.Caches[0].WriteDouble(0, 42.0); err != nil {
		t.Fatalf("WriteDouble: %v", err)
	}
	_, quit := st.Execute("quit")
	if !quit {
		t.Fatalf("expected quit to report exit")
	}
	v, err := st.sys.Memory.LoadDouble(0)
	if err != nil {
		t.Fatalf("LoadDouble: %v", err)
	}
	if v != 42.0 {
		t.Fatalf("expected flush to make write visible, got %v", v)
	}
}

func TestStepAdvancesPC(t *testing.T) {
	st, _ := newTestStepper(t, 4, 8)
	out, _ := st.Execute("step")
	if out != "" {
		t.Fatalf("unexpected output from plain step: %q", out)
	}
	for _, p := range st.sys.PEs {
		if p.PC() == 0 {
			t.Fatalf("expected PE%d to have advanced", p.ID())
		}
	}
}

func TestStepiSinglePE(t *testing.T) {
	st, _ := newTestStepper(t, 4, 8)
	out, _ := st.Execute("stepi 1 2")
	if out != "" {
		t.Fatalf("unexpected error output: %q", out)
	}
	for i, p := range st.sys.PEs {
		if i == 1 {
			if p.PC() == 0 {
				t.Fatalf("expected PE1 to advance")
			}
		} else if p.PC() != 0 {
			t.Fatalf("expected PE%d to stay put, got PC=%d", i, p.PC())
		}
	}
}

func TestBreakpointStopsStep(t *testing.T) {
	st, _ := newTestStepper(t, 1, 8)
	st.Execute("step 1")
	stopPC := st.sys.PEs[0].PC()
	st.Execute("break 0 " + itoa(stopPC+1))
	st.Execute("step 100")
	if st.sys.PEs[0].PC() != stopPC+1 {
		t.Fatalf("expected PE0 to stop at breakpoint PC=%d, got %d", stopPC+1, st.sys.PEs[0].PC())
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

// TestBreakpointStopsRoundImmediately matches original_source/sim_step.cpp's
// `cmd=="step"` granularity: a breakpoint hit on PE0 stops the round before
// PE1 takes its step, instead of letting the whole round finish first.
func TestBreakpointStopsRoundImmediately(t *testing.T) {
	st, _ := newTestStepper(t, 2, 8)
	st.Execute("step 1")
	pc1 := st.sys.PEs[1].PC()
	bp := st.sys.PEs[0].PC() + 1
	st.Execute("break 0 " + itoa(bp))

	st.Execute("step 1")

	if got := st.sys.PEs[0].PC(); got != bp {
		t.Fatalf("expected PE0 to stop right at its breakpoint, got PC=%d", got)
	}
	if got := st.sys.PEs[1].PC(); got != pc1 {
		t.Fatalf("expected PE1 to not advance this round once PE0 hit its breakpoint, got PC=%d (was %d)", got, pc1)
	}
}

func TestBreaksListAndClear(t *testing.T) {
	st, _ := newTestStepper(t, 2, 4)
	st.Execute("break 0 3")
	out, _ := st.Execute("breaks")
	if !strings.Contains(out, "PE0 PC=3") {
		t.Fatalf("expected breakpoint listed, got %q", out)
	}
	st.Execute("clear 0 3")
	out, _ = st.Execute("breaks")
	if !strings.Contains(out, "no active breakpoints") {
		t.Fatalf("expected breakpoints cleared, got %q", out)
	}
}

func TestContRunsToCompletionAndReportsResult(t *testing.T) {
	st, _ := newTestStepper(t, 4, 8)
	out, quit := st.Execute("cont")
	if quit {
		t.Fatalf("cont should not quit")
	}
	if !strings.Contains(out, "dot product: 408") {
		t.Fatalf("expected dot product result in output, got %q", out)
	}
	if st.sys.AnyRunning() {
		t.Fatalf("expected all PEs halted after cont")
	}
}

func TestMemCommandReadsWords(t *testing.T) {
	st, layout := newTestStepper(t, 2, 4)
	out, _ := st.Execute("mem 0 1")
	if !strings.Contains(out, "= 1") {
		t.Fatalf("expected A[0]=1 in output, got %q", out)
	}
	_ = layout
}

func TestMemOwnerReportsSegment(t *testing.T) {
	st, _ := newTestStepper(t, 2, 4)
	st.sys.Memory.AddSegment(0, 0, 8)
	out, _ := st.Execute("mem owner 0")
	if !strings.Contains(out, "owned by PE0") {
		t.Fatalf("expected owner report, got %q", out)
	}
}

func TestCacheAndStatsCommands(t *testing.T) {
	st, _ := newTestStepper(t, 1, 4)
	st.Execute("step 1")
	out, _ := st.Execute("cache 0")
	if !strings.Contains(out, "set=0") {
		t.Fatalf("expected cache dump, got %q", out)
	}
	out, _ = st.Execute("stats")
	if !strings.Contains(out, "PE0:") {
		t.Fatalf("expected stats dump, got %q", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	st, _ := newTestStepper(t, 1, 4)
	out, _ := st.Execute("frobnicate")
	if !strings.Contains(out, "unknown command") {
		t.Fatalf("expected unknown-command message, got %q", out)
	}
}
