package main

import (
	"os"

	"github.com/Garsondee/Siege-Sense/internal/config"
	"github.com/Garsondee/Siege-Sense/internal/game"
	"github.com/Garsondee/Siege-Sense/internal/logging"
	"github.com/Garsondee/Siege-Sense/internal/viewer"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		logging.Setup("info", true)
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(cfg.LogLevel, cfg.Pretty)

	scenario := cfg.Scenario
	if len(os.Args) > 1 {
		scenario = os.Args[1]
	}
	opts, err := game.ScenarioOptions(scenario, cfg.Seed)
	if err != nil {
		log.Fatal().Err(err).Strs("known", game.ScenarioNames()).Msg("unknown scenario")
	}
	opts = append(opts, game.WithTuning(cfg.Tuning))

	v := viewer.New(game.NewTestSim(opts...), viewer.Options{Scenario: scenario})
	w, h := v.WindowSize()
	ebiten.SetWindowTitle("Siege Sense - " + scenario)
	ebiten.SetWindowSize(w, h)
	if err := ebiten.RunGame(v); err != nil {
		log.Fatal().Err(err).Msg("viewer stopped")
	}
}
