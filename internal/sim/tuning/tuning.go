package tuning

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	WorldID            string `yaml:"world_id"`
	TickRateHz         int    `yaml:"tick_rate_hz"`
	Spawn              []int  `yaml:"spawn"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`

	// DefaultPermissionLevel applies to players without an operator entry.
	DefaultPermissionLevel int    `yaml:"default_permission_level"`
	StarterItem            string `yaml:"starter_item"`

	// Operators maps a player name to its level and the token it must present in HELLO.
	Operators map[string]Operator `yaml:"operators"`
}

type Operator struct {
	Level int    `yaml:"level"`
	Token string `yaml:"token"`
}

func Defaults() Tuning {
	return Tuning{
		WorldID:                "overworld",
		TickRateHz:             5,
		Spawn:                  []int{0, 64, 0},
		SnapshotEveryTicks:     3000,
		DefaultPermissionLevel: 0,
		StarterItem:            "OBSIDIAN",
	}
}

// Load reads path on top of Defaults and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if strings.TrimSpace(t.WorldID) == "" {
		return fmt.Errorf("world_id must not be empty")
	}
	if t.TickRateHz <= 0 || t.TickRateHz > 100 {
		return fmt.Errorf("tick_rate_hz must be in 1..100, got %d", t.TickRateHz)
	}
	if len(t.Spawn) != 3 {
		return fmt.Errorf("spawn must have 3 coordinates, got %d", len(t.Spawn))
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.DefaultPermissionLevel < 0 || t.DefaultPermissionLevel > 4 {
		return fmt.Errorf("default_permission_level must be in 0..4")
	}
	for _, name := range t.OperatorNames() {
		op := t.Operators[name]
		if op.Level < 0 || op.Level > 4 {
			return fmt.Errorf("operator %q: level must be in 0..4", name)
		}
		if op.Token == "" {
			return fmt.Errorf("operator %q: token must not be empty", name)
		}
	}
	return nil
}

func (t Tuning) OperatorNames() []string {
	names := make([]string, 0, len(t.Operators))
	for n := range t.Operators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
