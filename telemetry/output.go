package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/radiate/config"
	"github.com/pthm-cable/radiate/systems"
)

// Output file names inside the output directory.
const (
	BalancesFile = "balances.csv"
	LevelsFile   = "levels.csv"
	EnsembleFile = "ensemble.csv"
	ConfigFile   = "config.yaml"
)

// OutputManager handles structured run output with CSV logging.
// It implements simulation.Sink.
type OutputManager struct {
	dir          string
	balancesFile *os.File
	levelsFile   *os.File

	levelsEvery    int
	lastLevelsTick int
	appendMode     bool

	// Track if headers have been written
	balancesHeaderWritten bool
	levelsHeaderWritten   bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled). levelsEvery controls how often
// levels.csv receives a full level snapshot (0 = only via WriteLevels).
// CSV files are created on their first write.
func NewOutputManager(dir string, levelsEvery int) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &OutputManager{dir: dir, levelsEvery: levelsEvery}, nil
}

// AppendExisting makes the manager continue existing CSV files instead of
// truncating them, for resumed runs. Headers are not repeated.
func (om *OutputManager) AppendExisting() {
	if om == nil {
		return
	}
	om.appendMode = true
}

func (om *OutputManager) open(f **os.File, name string, headerWritten *bool) error {
	if *f != nil {
		return nil
	}
	path := filepath.Join(om.dir, name)
	if !om.appendMode {
		created, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
		*f = created
		return nil
	}

	opened, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	info, err := opened.Stat()
	if err != nil {
		opened.Close()
		return fmt.Errorf("stat %s: %w", name, err)
	}
	*headerWritten = info.Size() > 0
	*f = opened
	return nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, ConfigFile))
}

// Record writes a balance row and, every levelsEvery ticks, a level snapshot.
func (om *OutputManager) Record(tick int, res systems.Result) error {
	if om == nil {
		return nil
	}
	if err := om.WriteBalance(NewBalanceRecord(tick, res)); err != nil {
		return err
	}
	if om.levelsEvery > 0 && tick%om.levelsEvery == 0 {
		return om.WriteLevels(tick, res.Levels)
	}
	return nil
}

// WriteBalance writes one row to balances.csv.
func (om *OutputManager) WriteBalance(rec BalanceRecord) error {
	if om == nil {
		return nil
	}
	if err := om.open(&om.balancesFile, BalancesFile, &om.balancesHeaderWritten); err != nil {
		return err
	}
	if err := marshalRows([]BalanceRecord{rec}, om.balancesFile, &om.balancesHeaderWritten); err != nil {
		return fmt.Errorf("writing balances: %w", err)
	}
	return nil
}

// WriteLevels writes a full level snapshot to levels.csv. Untracked levels
// and repeated ticks are skipped.
func (om *OutputManager) WriteLevels(tick int, levels []float64) error {
	if om == nil || len(levels) == 0 || tick == om.lastLevelsTick {
		return nil
	}
	if err := om.open(&om.levelsFile, LevelsFile, &om.levelsHeaderWritten); err != nil {
		return err
	}
	if err := marshalRows(NewLevelRecords(tick, levels), om.levelsFile, &om.levelsHeaderWritten); err != nil {
		return fmt.Errorf("writing levels: %w", err)
	}
	om.lastLevelsTick = tick
	return nil
}

// WriteEnsemble writes per-replica finals to ensemble.csv in one go.
func (om *OutputManager) WriteEnsemble(rows []ReplicaRecord) error {
	if om == nil {
		return nil
	}
	f, err := os.Create(filepath.Join(om.dir, EnsembleFile))
	if err != nil {
		return fmt.Errorf("creating %s: %w", EnsembleFile, err)
	}
	defer f.Close()

	if err := gocsv.Marshal(rows, f); err != nil {
		return fmt.Errorf("writing ensemble: %w", err)
	}
	return nil
}

// marshalRows appends rows, writing the header only on the first call.
func marshalRows[T any](rows []T, f *os.File, headerWritten *bool) error {
	if !*headerWritten {
		if err := gocsv.Marshal(rows, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(rows, f)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Path returns the path of a named file in the output directory.
func (om *OutputManager) Path(name string) string {
	if om == nil {
		return ""
	}
	return filepath.Join(om.dir, name)
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error

	if om.balancesFile != nil {
		if err := om.balancesFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if om.levelsFile != nil {
		if err := om.levelsFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
