package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"warehousesim/internal/sim/warehouse"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	Robots int `yaml:"robots"`
	Boxes  int `yaml:"boxes"`
	// Shelves of 0 means ceil(boxes/robots).
	Shelves int `yaml:"shelves"`

	MaxStack        int `yaml:"max_stack"`
	BoxInitialCount int `yaml:"box_initial_count"`

	Generations        int    `yaml:"generations"`
	StopCheck          string `yaml:"stop_check"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`
	TickDurationMs     int    `yaml:"tick_duration_ms"`
	// MaxCells caps width*height for every run, including ones sized by an init request.
	MaxCells int `yaml:"max_cells"`

	Encoding warehouse.Encoding `yaml:"encoding"`
}

const ProtocolVersion = "1.0"

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    ProtocolVersion,
		Width:              40,
		Height:             30,
		Robots:             5,
		Boxes:              25,
		MaxStack:           5,
		BoxInitialCount:    1,
		Generations:        100,
		StopCheck:          "shelved",
		SnapshotEveryTicks: 50,
		TickDurationMs:     0,
		MaxCells:           warehouse.DefaultMaxCells,
		Encoding:           warehouse.DefaultEncoding(),
	}
}

// Load reads path on top of Defaults, so a file only needs the keys it changes.
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
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("grid must be positive, got %dx%d", t.Width, t.Height)
	}
	if t.Robots < 0 || t.Boxes < 0 || t.Shelves < 0 {
		return fmt.Errorf("entity counts must not be negative")
	}
	if t.MaxCells < 0 {
		return fmt.Errorf("max_cells must not be negative, got %d", t.MaxCells)
	}
	if limit := t.MaxCells; limit > 0 && t.Width > limit/t.Height {
		return fmt.Errorf("grid %dx%d exceeds max_cells %d", t.Width, t.Height, limit)
	}
	if t.MaxStack < 1 {
		return fmt.Errorf("max_stack must be >= 1, got %d", t.MaxStack)
	}
	if t.BoxInitialCount < 1 || t.BoxInitialCount > t.MaxStack {
		return fmt.Errorf("box_initial_count must be in [1, %d], got %d", t.MaxStack, t.BoxInitialCount)
	}
	if t.Generations < 0 || t.SnapshotEveryTicks < 0 || t.TickDurationMs < 0 {
		return fmt.Errorf("generations, snapshot_every_ticks and tick_duration_ms must not be negative")
	}
	if _, err := warehouse.ParseStopCheck(t.StopCheck); err != nil {
		return err
	}
	return nil
}

// Config turns the tuning into a warehouse config. Callers fill in RunID.
func (t Tuning) Config(seed int64) warehouse.Config {
	return warehouse.Config{
		Width:              t.Width,
		Height:             t.Height,
		Robots:             t.Robots,
		Boxes:              t.Boxes,
		Shelves:            t.Shelves,
		MaxStack:           t.MaxStack,
		BoxInitialCount:    t.BoxInitialCount,
		Seed:               seed,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		MaxCells:           t.MaxCells,
		Encoding:           t.Encoding,
	}
}
