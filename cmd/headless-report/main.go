package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Garsondee/Siege-Sense/internal/config"
	"github.com/Garsondee/Siege-Sense/internal/game"
	"github.com/Garsondee/Siege-Sense/internal/logging"
	"github.com/Garsondee/Siege-Sense/internal/recorder"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const allScenarios = "all"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configDir string
		seedStep  int64
		quiet     bool
		tail      int
	)

	cmd := &cobra.Command{
		Use:   "headless-report",
		Short: "Run invasions headless and report how the waves behaved",
		Long: `Plays a scenario several times with consecutive seeds, without a window,
and prints per-run and aggregate tables of wave elections, retreats,
routs, divine intervention and building losses.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, cfg.Pretty)
			return run(cmd.OutOrStdout(), cfg, seedStep, quiet, tail)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configDir, "config", "c", ".", "directory holding "+config.FileName)
	f.Int64Var(&seedStep, "seed-step", 1, "seed increment between runs")
	f.BoolVarP(&quiet, "quiet", "q", false, "only print the aggregate table")
	f.IntVar(&tail, "tail", 0, "print the sim log of each run's last N ticks")
	f.IntP("runs", "r", 3, "number of runs per scenario")
	f.IntP("ticks", "t", 1200, "ticks per run")
	f.Int64("seed", 42, "seed of the first run")
	f.StringP("scenario", "s", "market-raid", "scenario name, or \"all\"")
	f.Bool("record", false, "store snapshots through the recorder")
	f.String("log-level", "info", "zerolog level")

	for key, flag := range map[string]string{
		"runs":             "runs",
		"ticks":            "ticks",
		"seed":             "seed",
		"scenario":         "scenario",
		"recorder.enabled": "record",
		"logLevel":         "log-level",
	} {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func run(w io.Writer, cfg *config.Config, seedStep int64, quiet bool, tail int) error {
	scenarios := []string{cfg.Scenario}
	if cfg.Scenario == allScenarios {
		scenarios = game.ScenarioNames()
	}

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		r, err := recorder.Open(cfg.Recorder.Driver, cfg.Recorder.DSN, cfg.Recorder.Every)
		if err != nil {
			return err
		}
		defer func() {
			if err := r.Close(); err != nil {
				log.Warn().Err(err).Msg("recorder close failed")
			}
		}()
		rec = r
	}

	title := color.New(color.FgCyan, color.Bold)
	title.Fprintf(w, "=== Headless Siege Report ===\n")
	fmt.Fprintf(w, "scenarios=%v runs=%d ticks=%d seed=%d seed_step=%d\n\n",
		scenarios, cfg.Runs, cfg.Ticks, cfg.Seed, seedStep)

	var all []runStats
	for _, name := range scenarios {
		for i := 0; i < cfg.Runs; i++ {
			seed := cfg.Seed + int64(i)*seedStep
			rs, err := runScenario(name, i+1, seed, cfg.Ticks, cfg.Tuning, rec)
			if err != nil {
				return err
			}
			all = append(all, rs)
			if !quiet {
				printRun(w, rs)
				printTail(w, rs, tail)
			}
		}
	}
	printAggregate(w, all)
	return nil
}
