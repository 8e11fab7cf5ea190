package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/Garsondee/Siege-Sense/internal/game"
	"github.com/Garsondee/Siege-Sense/internal/recorder"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
)

type runStats struct {
	scenario string
	runIndex int
	seed     int64
	ticks    int

	firstElectionTick int
	firstTargetTick   int
	firstRetreatTick  int
	firstFleeTick     int
	firstCollapseTick int
	marsTick          int
	clearedTick       int // tick the last invader died or left, -1 if never

	elections    int
	targetPicks  int
	modeChanges  int
	rejectedMove int
	fleeEvents   int
	collapses    int
	marsKilled   int

	modes map[string]int // final mode of each live formation

	snap   game.SimSnapshot
	simLog *game.SimLog
}

func runScenario(name string, runIndex int, seed int64, ticks int, tuning game.Tuning, rec *recorder.Recorder) (runStats, error) {
	opts, err := game.ScenarioOptions(name, seed)
	if err != nil {
		return runStats{}, err
	}
	ts := game.NewTestSim(append(opts, game.WithTuning(tuning))...)

	var run *recorder.Run
	if rec != nil {
		if run, err = rec.Begin(name, seed); err != nil {
			return runStats{}, err
		}
	}

	cleared := -1
	for i := 0; i < ticks; i++ {
		ts.RunTicks(1)
		snap := ts.Snapshot()
		if cleared < 0 && snap.EnemiesAlive == 0 {
			cleared = snap.Tick
		}
		if rec != nil && rec.Due(snap.Tick) {
			if err := rec.Record(run, snap); err != nil {
				return runStats{}, err
			}
		}
	}
	if rec != nil {
		if err := rec.Finish(run, ts.Snapshot()); err != nil {
			return runStats{}, err
		}
	}

	rs := collectStats(ts)
	rs.scenario = name
	rs.runIndex = runIndex
	rs.seed = seed
	rs.clearedTick = cleared
	log.Debug().Str("scenario", name).Int64("seed", seed).Str("outcome", outcome(rs)).Msg("run finished")
	return rs, nil
}

func collectStats(ts *game.TestSim) runStats {
	entries := ts.SimLog.Entries()
	rs := runStats{
		ticks:             ts.CurrentTick(),
		firstElectionTick: firstTick(entries, "wave", "elected", ""),
		firstTargetTick:   firstTick(entries, "target", "selected", ""),
		firstRetreatTick:  firstTick(entries, "retreat", "started", ""),
		firstFleeTick:     firstTick(entries, "morale", "flee", ""),
		firstCollapseTick: firstTick(entries, "harness", "collapse", ""),
		marsTick:          firstTick(entries, "mars", "kill", ""),
		clearedTick:       -1,
		elections:         ts.SimLog.CountCategory("wave", "elected"),
		targetPicks:       ts.SimLog.CountCategory("target", "selected"),
		modeChanges:       ts.SimLog.CountCategory("mode", "change"),
		rejectedMove:      ts.SimLog.CountCategory("move", "no_legal_tile"),
		fleeEvents:        ts.SimLog.CountCategory("morale", "flee"),
		collapses:         ts.SimLog.CountCategory("harness", "collapse"),
		modes:             map[string]int{},
		snap:              ts.Snapshot(),
		simLog:            ts.SimLog,
	}
	for _, e := range entries {
		if e.Category == "mars" && e.Key == "kill" {
			rs.marsKilled += int(e.NumVal)
		}
	}
	for _, f := range rs.snap.Formations {
		if f.ArmyID != 0 {
			rs.modes[f.Mode.String()]++
		}
	}
	return rs
}

func firstTick(entries []game.SimLogEntry, category, key, contains string) int {
	for _, e := range entries {
		if e.Category != category || e.Key != key {
			continue
		}
		if contains == "" || strings.Contains(e.Value, contains) {
			return e.Tick
		}
	}
	return -1
}

// outcome classifies how a run ended.
func outcome(rs runStats) string {
	switch {
	case rs.snap.EnemiesAlive == 0 && rs.snap.Escaped > 0:
		return "driven off"
	case rs.snap.EnemiesAlive == 0:
		return "destroyed"
	case rs.firstRetreatTick >= 0:
		return "retreating"
	case rs.collapses > 0:
		return "pillaging"
	default:
		return "besieging"
	}
}

func printRun(w io.Writer, rs runStats) {
	color.New(color.FgYellow).Fprintf(w, "--- %s run %d (seed=%d) ---\n", rs.scenario, rs.runIndex, rs.seed)

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Marker", "Tick", "Count"}),
	)
	rows := [][]string{
		{"wave elected", tickString(rs.firstElectionTick), strconv.Itoa(rs.elections)},
		{"target selected", tickString(rs.firstTargetTick), strconv.Itoa(rs.targetPicks)},
		{"building collapsed", tickString(rs.firstCollapseTick), strconv.Itoa(rs.collapses)},
		{"formation fled", tickString(rs.firstFleeTick), strconv.Itoa(rs.fleeEvents)},
		{"retreat started", tickString(rs.firstRetreatTick), ""},
		{"spirit of mars", tickString(rs.marsTick), strconv.Itoa(rs.marsKilled)},
		{"city cleared", tickString(rs.clearedTick), ""},
	}
	for _, row := range rows {
		_ = table.Append(row)
	}
	_ = table.Render()

	fmt.Fprintf(w, "outcome=%s enemies=%d legion=%d escaped=%d rubble=%d mode_changes=%d rejected_moves=%d modes=%s\n\n",
		outcome(rs), rs.snap.EnemiesAlive, rs.snap.LegionsAlive, rs.snap.Escaped, rs.snap.BuildingsRubble,
		rs.modeChanges, rs.rejectedMove, joinCounts(rs.modes))
}

// printTail writes the sim log of the last n ticks of a run.
func printTail(w io.Writer, rs runStats, n int) {
	if n <= 0 || rs.simLog == nil {
		return
	}
	from := max(rs.ticks-n+1, 0)
	color.New(color.FgHiBlack).Fprintf(w, "sim log T=%d..%d\n", from, rs.ticks)
	fmt.Fprintln(w, rs.simLog.FormatRange(from, rs.ticks))
}

type scenarioAgg struct {
	runs       int
	collapses  int
	escaped    int
	marsKilled int
	retreats   []int
	cleared    []int
	outcomes   map[string]int
}

func aggregate(all []runStats) map[string]*scenarioAgg {
	aggs := map[string]*scenarioAgg{}
	for _, rs := range all {
		ag, ok := aggs[rs.scenario]
		if !ok {
			ag = &scenarioAgg{outcomes: map[string]int{}}
			aggs[rs.scenario] = ag
		}
		ag.runs++
		ag.collapses += rs.collapses
		ag.escaped += rs.snap.Escaped
		ag.marsKilled += rs.marsKilled
		if rs.firstRetreatTick >= 0 {
			ag.retreats = append(ag.retreats, rs.firstRetreatTick)
		}
		if rs.clearedTick >= 0 {
			ag.cleared = append(ag.cleared, rs.clearedTick)
		}
		ag.outcomes[outcome(rs)]++
	}
	return aggs
}

func printAggregate(w io.Writer, all []runStats) {
	color.New(color.FgCyan, color.Bold).Fprintln(w, "=== Aggregate ===")
	aggs := aggregate(all)
	names := make([]string, 0, len(aggs))
	for name := range aggs {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Scenario", "Runs", "Collapses/run", "Escaped/run", "Mars kills/run", "Retreat tick", "Cleared tick", "Outcomes"}),
	)
	for _, name := range names {
		ag := aggs[name]
		_ = table.Append([]string{
			name,
			strconv.Itoa(ag.runs),
			fmt.Sprintf("%.1f", avg(ag.collapses, ag.runs)),
			fmt.Sprintf("%.1f", avg(ag.escaped, ag.runs)),
			fmt.Sprintf("%.1f", avg(ag.marsKilled, ag.runs)),
			avgTickString(ag.retreats),
			avgTickString(ag.cleared),
			joinCounts(ag.outcomes),
		})
	}
	_ = table.Render()
}

func avg(sum int, n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func avgTickString(vals []int) string {
	if len(vals) == 0 {
		return "n/a"
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return fmt.Sprintf("%.1f", float64(sum)/float64(len(vals)))
}

func tickString(t int) string {
	if t < 0 {
		return "-"
	}
	return strconv.Itoa(t)
}

func joinCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, ",")
}
