package telemetry

import (
	"github.com/pthm-cable/radiate/systems"
)

// BalanceRecord is one row of balances.csv.
type BalanceRecord struct {
	Tick               int     `csv:"tick"`
	Time               string  `csv:"time"`
	Elapsed            float64 `csv:"elapsed"`
	Emitted            float64 `csv:"emitted"`
	EmissionRate       float64 `csv:"emission_rate"`
	SourceBalance      float64 `csv:"source_balance"`
	EnvironmentBalance float64 `csv:"environment_balance"`
	Clamped            bool    `csv:"clamped"`
}

// NewBalanceRecord flattens a tick result.
func NewBalanceRecord(tick int, res systems.Result) BalanceRecord {
	return BalanceRecord{
		Tick:               tick,
		Time:               res.Time.Format("2006-01-02T15:04:05.000Z07:00"),
		Elapsed:            res.Elapsed,
		Emitted:            res.Emitted,
		EmissionRate:       res.EmissionRate,
		SourceBalance:      res.SourceBalance,
		EnvironmentBalance: res.EnvironmentBalance,
		Clamped:            res.Clamped,
	}
}

// LevelRecord is one row of levels.csv: the energy held by one level at a tick.
type LevelRecord struct {
	Tick   int     `csv:"tick"`
	Level  int     `csv:"level"`
	Energy float64 `csv:"energy"`
}

// NewLevelRecords expands a level array into rows.
func NewLevelRecords(tick int, levels []float64) []LevelRecord {
	out := make([]LevelRecord, len(levels))
	for i, v := range levels {
		out[i] = LevelRecord{Tick: tick, Level: i, Energy: v}
	}
	return out
}

// History keeps every Nth balance record in memory for charting.
// It implements simulation.Sink.
type History struct {
	Every   int
	Records []BalanceRecord
}

// Record keeps the result when tick is a multiple of Every (or always when
// Every <= 1).
func (h *History) Record(tick int, res systems.Result) error {
	if h.Every <= 1 || tick%h.Every == 0 {
		h.Records = append(h.Records, NewBalanceRecord(tick, res))
	}
	return nil
}
