package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/malbeclabs/rplsim/internal/httpapi"
	"github.com/malbeclabs/rplsim/internal/scenario"
	"github.com/malbeclabs/rplsim/internal/simconfig"
	"github.com/malbeclabs/rplsim/internal/world"
)

var (
	configFile         string
	scenarioFile       string
	metricsAddr        string
	verbose            bool
	realTime           bool
	dispatchQueueDepth int

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "rplsimd",
	Short: "Discrete-event RPL network simulator",
	Long: `rplsimd drives a discrete-event simulation of a wireless PHY/MAC/IP/
ICMP stack carrying RPL control traffic, per a loaded scenario.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rplsimd %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load a scenario and run the simulation",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)

		cfg, err := loadConfig(configFile)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}

		w := world.New(cfg, log, realTime)

		if scenarioFile != "" {
			s, err := scenario.Load(scenarioFile)
			if err != nil {
				log.Error("failed to load scenario", "error", err)
				os.Exit(1)
			}
			if err := s.Apply(w, dispatchQueueDepth); err != nil {
				log.Error("failed to apply scenario", "error", err)
				os.Exit(1)
			}
			log.Info("scenario applied", "scenario", s.Name, "nodes", len(s.Nodes))
		} else {
			w.Start(false)
		}
		defer w.Destroy()

		if metricsAddr != "" {
			go func() {
				listener, err := net.Listen("tcp", metricsAddr)
				if err != nil {
					log.Error("failed to start metrics listener", "error", err)
					os.Exit(1)
				}
				log.Info("metrics server started", "address", listener.Addr().String())
				if err := http.Serve(listener, httpapi.Mux(log, w)); err != nil {
					log.Error("metrics server exited", "error", err)
				}
			}()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		log.Info("shutting down")
		w.Stop()
	},
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Scenario file utilities",
}

var scenarioValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Parse a scenario file and report errors",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := scenario.Load(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid scenario: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ok: %q — %d node(s), %d route(s)\n", s.Name, len(s.Nodes), len(s.Routes))
	},
}

func newLogger(verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(log)
	return log
}

func loadConfig(path string) (*simconfig.Config, error) {
	if path == "" {
		return simconfig.New(""), nil
	}
	return simconfig.Load(path)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "v", false, "enable verbose logging")

	runCmd.Flags().StringVar(&configFile, "config", "", "path to a JSON config file overriding defaults")
	runCmd.Flags().StringVar(&scenarioFile, "scenario", "", "path to a YAML scenario file to load and apply")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /status, /metrics, and /config on (disabled if empty)")
	runCmd.Flags().BoolVar(&realTime, "real-time", false, "sleep between buckets to track wall-clock time instead of draining as fast as possible")
	runCmd.Flags().IntVar(&dispatchQueueDepth, "dispatch-queue-depth", 64, "per-node inbound job queue depth")

	scenarioCmd.AddCommand(scenarioValidateCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scenarioCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
