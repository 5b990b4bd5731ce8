// Command mesisim builds and drives the MESI cache-coherence simulator:
// a headless parallel run, an interactive stepper REPL, and a live web
// dashboard, grounded on sarchlab-akita's cobra-based akita/cmd CLI shape
// (one rootCmd, one subcommand per mode, registered from init()).
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/example/mesisim/config"
	"github.com/example/mesisim/core"
	"github.com/example/mesisim/dashboard"
	"github.com/example/mesisim/hooks"
	"github.com/example/mesisim/logging"
	"github.com/example/mesisim/stepper"
	"github.com/example/mesisim/system"
)

var rootCmd = &cobra.Command{
	Use:   "mesisim",
	Short: "MESI cache-coherence multiprocessor simulator",
	Long: `mesisim simulates four processing elements with private MESI-coherent
L1 caches, a snoopy write-invalidate bus, and a shared main memory, running
a parallel dot-product workload.`,
}

var (
	flagPEs      int
	flagN        int
	flagMemWords int
	flagMaxSteps int
	flagAddr     string
	flagVerbose  bool
	flagConfig   string
)

func init() {
	rootCmd.PersistentFlags().IntVar(&flagPEs, "pes", 4, "number of processing elements")
	rootCmd.PersistentFlags().IntVar(&flagN, "n", 8, "dot-product vector length")
	rootCmd.PersistentFlags().IntVar(&flagMemWords, "mem-words", 512, "main memory size, in 8-byte words")
	rootCmd.PersistentFlags().IntVar(&flagMaxSteps, "max-steps", 10000, "per-PE step bound for headless runs")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "named preset to build the system from (see `mesisim configs`); --pes/--n/--mem-words/--max-steps override individual fields")

	runCmd.Flags().StringVar(&flagAddr, "addr", "", "if set, also serve a dashboard at this address while running")
	dashboardCmd.Flags().StringVar(&flagAddr, "addr", ":8080", "address to serve the dashboard on")

	rootCmd.AddCommand(runCmd, stepCmd, dashboardCmd, benchCmd, configsCmd)
}

func newLogger() *logging.Logger {
	log := logging.Default()
	if flagVerbose {
		log.SetLevel(logging.LevelDebug)
	}
	return log
}

// buildSystem resolves this run's Config: the reference profile, or a
// named preset from the config package if --config was given. A preset's
// NumPEs/VecLen/MemWords/MaxSteps only take effect for flags the caller
// didn't explicitly pass — `--config wide-fanout --pes 2` keeps the
// preset's cache shape and workload size but overrides its PE count.
func buildSystem(cmd *cobra.Command, log *logging.Logger) (*system.System, system.Layout, *hooks.Broker) {
	cfg := core.Reference()
	if flagConfig != "" {
		preset, err := config.ByName(flagConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		cfg = preset.Cache
		if !cmd.Flags().Changed("pes") {
			flagPEs = preset.NumPEs
		}
		if !cmd.Flags().Changed("n") {
			flagN = preset.VecLen
		}
		if !cmd.Flags().Changed("mem-words") {
			flagMemWords = preset.MemWords
		}
		if !cmd.Flags().Changed("max-steps") {
			flagMaxSteps = preset.MaxSteps
		}
	}

	broker := hooks.NewBroker()
	sys := system.New(flagPEs, flagMemWords, cfg, broker, log)
	layout, err := system.LoadDotProduct(sys, flagN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load workload: %v\n", err)
		os.Exit(1)
	}
	return sys, layout, broker
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dot-product workload headlessly and print the result",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		sys, layout, broker := buildSystem(cmd, log)

		if flagAddr != "" {
			srv := dashboard.New(flagAddr, sys, broker, log)
			if err := srv.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()
		}

		if err := sys.RunAll(flagMaxSteps); err != nil {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
			os.Exit(1)
		}
		sys.FlushAll()

		total, err := system.Reduce(sys, layout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to reduce result: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("dot product: %v\n", total)
		for i, s := range sys.Stats() {
			fmt.Printf("PE%d: reads=%d writes=%d misses=%d invalidations=%d bus_msgs=%d writebacks=%d upgrades=%d\n",
				i, s.Reads, s.Writes, s.Misses, s.Invalidations, s.BusMsgs, s.Writebacks, s.Upgrades)
		}
	},
}

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Load the workload and drop into the interactive stepper REPL",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		sys, layout, _ := buildSystem(cmd, log)

		st := stepper.New(sys)
		st.SetLayout(layout)
		st.SetMaxSteps(flagMaxSteps)
		st.Run(bufio.NewReader(os.Stdin), os.Stdout)
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Load the workload, run it, and serve a live dashboard until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		sys, layout, broker := buildSystem(cmd, log)

		srv := dashboard.New(flagAddr, sys, broker, log)
		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start dashboard: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("dashboard listening on %s\n", flagAddr)

		if err := sys.RunAll(flagMaxSteps); err != nil {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		}
		sys.FlushAll()
		total, err := system.Reduce(sys, layout)
		if err == nil {
			fmt.Printf("dot product: %v\n", total)
		}

		fmt.Println("press ctrl-C to stop the dashboard")
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
		srv.Close()
	},
}

var benchFlagRuns int

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the workload repeatedly and report total bus traffic",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		var totalBusMsgs uint64
		for i := 0; i < benchFlagRuns; i++ {
			sys, layout, _ := buildSystem(cmd, log)
			if err := sys.RunAll(flagMaxSteps); err != nil {
				fmt.Fprintf(os.Stderr, "run %d failed: %v\n", i, err)
				sys.Memory.Close()
				continue
			}
			sys.FlushAll()
			if _, err := system.Reduce(sys, layout); err != nil {
				fmt.Fprintf(os.Stderr, "run %d reduce failed: %v\n", i, err)
			}
			for _, s := range sys.Stats() {
				totalBusMsgs += s.BusMsgs
			}
			sys.Memory.Close()
		}
		fmt.Printf("%d runs, %d total bus messages, %.1f avg/run\n",
			benchFlagRuns, totalBusMsgs, float64(totalBusMsgs)/float64(benchFlagRuns))
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchFlagRuns, "runs", 10, "number of repetitions")
}

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "List the named presets usable with --config",
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range config.Predefined() {
			fmt.Printf("%-20s pes=%d n=%d mem_words=%d max_steps=%d cache=%+v\n  %s\n",
				p.Name, p.NumPEs, p.VecLen, p.MemWords, p.MaxSteps, p.Cache, p.Description)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
