package app

import (
	"fmt"
	"os"

	"leadline/internal/config"
	"leadline/internal/engine"
	"leadline/internal/store"
)

// Resolve opens the workspace store and loads its config, seeding the default
// config file on first use so a fresh workspace works out of the box.
func Resolve(workspace, pipelineOverride string) (engine.Engine, error) {
	s, err := store.Open(workspace)
	if err != nil {
		return engine.Engine{}, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return engine.Engine{}, err
	}
	if cfg == nil {
		id := pipelineOverride
		if id == "" {
			id = "leadline"
		}
		cfg = config.Default(id)
		if err := os.WriteFile(config.Path(workspace), []byte(config.GenerateDefault(id)), 0o644); err != nil {
			return engine.Engine{}, fmt.Errorf("seed config: %w", err)
		}
	}
	if pipelineOverride != "" {
		cfg.Pipeline.ID = pipelineOverride
	}
	return engine.New(s, cfg), nil
}
