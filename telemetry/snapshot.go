package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pthm-cable/radiate/components"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the reservoir state needed to resume a run.
type Snapshot struct {
	Version int    `json:"version"`
	RNGSeed uint64 `json:"rng_seed"`
	Tick    int    `json:"tick"`

	Source      SourceState      `json:"source"`
	Environment EnvironmentState `json:"environment"`
}

// SourceState is the JSON form of components.Source.
type SourceState struct {
	Balance       float64   `json:"balance"`
	EmissionRate  float64   `json:"emission_rate"`
	LastUpdate    time.Time `json:"last_update"`
	InitialSupply float64   `json:"initial_supply"`
}

// EnvironmentState is the JSON form of components.Environment.
type EnvironmentState struct {
	Balance float64   `json:"balance"`
	Levels  []float64 `json:"levels,omitempty"`
}

// NewSnapshot captures the given entities.
func NewSnapshot(seed uint64, tick int, src components.Source, env components.Environment) *Snapshot {
	levels := make([]float64, len(env.Levels))
	copy(levels, env.Levels)
	if len(levels) == 0 {
		levels = nil
	}
	return &Snapshot{
		Version: SnapshotVersion,
		RNGSeed: seed,
		Tick:    tick,
		Source: SourceState{
			Balance:       src.Balance,
			EmissionRate:  src.EmissionRate,
			LastUpdate:    src.LastUpdate,
			InitialSupply: src.InitialSupply,
		},
		Environment: EnvironmentState{
			Balance: env.Balance,
			Levels:  levels,
		},
	}
}

// Entities converts the snapshot back into live components.
func (s *Snapshot) Entities() (components.Source, components.Environment) {
	src := components.Source{
		Balance:       s.Source.Balance,
		EmissionRate:  s.Source.EmissionRate,
		LastUpdate:    s.Source.LastUpdate,
		InitialSupply: s.Source.InitialSupply,
	}
	env := components.Environment{Balance: s.Environment.Balance}
	if len(s.Environment.Levels) > 0 {
		env.Levels = make([]float64, len(s.Environment.Levels))
		copy(env.Levels, s.Environment.Levels)
	}
	return src, env
}

// SaveSnapshot writes a snapshot to dir as snapshot_<tick>.json.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("snapshot_%d.json", snapshot.Tick))

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snapshot.Version)
	}
	if err := snapshot.validate(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}

	return &snapshot, nil
}

// validate rejects non-finite or out-of-range balances and levels.
func (s *Snapshot) validate() error {
	src, env := s.Source, s.Environment
	if !finite(src.InitialSupply) || src.InitialSupply <= 0 {
		return fmt.Errorf("initial supply %g must be finite and > 0", src.InitialSupply)
	}
	if !finite(src.Balance) || src.Balance < 0 || src.Balance > src.InitialSupply {
		return fmt.Errorf("source balance %g outside [0, %g]", src.Balance, src.InitialSupply)
	}
	if !finite(env.Balance) || env.Balance < 0 {
		return fmt.Errorf("environment balance %g must be finite and >= 0", env.Balance)
	}
	for i, v := range env.Levels {
		if !finite(v) || v < 0 {
			return fmt.Errorf("level %d energy %g must be finite and >= 0", i, v)
		}
	}
	if s.Tick < 0 {
		return fmt.Errorf("tick %d must be >= 0", s.Tick)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
