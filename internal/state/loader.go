package state

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is one bots.yaml entry: window identity plus the rule
// settings to apply at startup. Omitted settings keep their defaults (or
// the values already persisted for that window).
type Definition struct {
	WindowID string      `yaml:"window_id"`
	Name     string      `yaml:"name"`
	Ticker   string      `yaml:"ticker"`
	Config   ConfigPatch `yaml:",inline"`
}

type seedFile struct {
	Bots []Definition `yaml:"bots"`
}

// LoadDefinitions reads the YAML seed file. A missing file is not an
// error; it just means nothing is seeded.
func LoadDefinitions(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, d := range f.Bots {
		if d.WindowID == "" {
			return nil, fmt.Errorf("%s: bots[%d] is missing window_id", path, i)
		}
	}
	return f.Bots, nil
}

// Seed applies definitions on top of whatever Load restored and persists
// the result, so a fresh database starts with the same windows the
// process trades on. Runs after Load so yaml values win over stale rows.
func (m *Manager) Seed(ctx context.Context, defs []Definition) error {
	for _, d := range defs {
		cfg, err := m.ApplyPatch(d.WindowID, d.Config)
		if err != nil {
			return fmt.Errorf("window %s: %w", d.WindowID, err)
		}
		m.Update(d.WindowID, func(bs *BotState) {
			if d.Name != "" {
				bs.Name = d.Name
			}
			if d.Ticker != "" {
				bs.Ticker = d.Ticker
			}
		})
		if m.db != nil {
			if err := m.db.UpsertBot(ctx, BotFromConfig(d.WindowID, d.Name, d.Ticker, cfg)); err != nil {
				return fmt.Errorf("persist window %s: %w", d.WindowID, err)
			}
		}
	}
	return nil
}
