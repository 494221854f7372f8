package telemetry

import (
	"log/slog"
	"time"
)

// Phase is one timed segment of a tick.
type Phase int

// Tick phases, in the order the runner executes them.
const (
	PhaseWait    Phase = iota // Blocked on the clock
	PhaseAdvance              // Emission and level split
	PhaseRecord               // Sinks
	numPhases
)

var phaseNames = [numPhases]string{"wait", "advance", "record"}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "unknown"
	}
	return phaseNames[p]
}

type perfSample struct {
	tick   time.Duration
	phases [numPhases]time.Duration
}

// PerfCollector times runner ticks over a rolling window. A nil collector
// ignores every call.
type PerfCollector struct {
	samples []perfSample
	next    int
	count   int

	current    perfSample
	tickStart  time.Time
	phaseStart time.Time
	phase      Phase
	inPhase    bool
}

// NewPerfCollector creates a collector averaging over the last windowSize ticks.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 100
	}
	return &PerfCollector{samples: make([]perfSample, windowSize)}
}

// StartTick begins timing a new tick.
func (p *PerfCollector) StartTick() {
	if p == nil {
		return
	}
	p.tickStart = time.Now()
	p.current = perfSample{}
	p.inPhase = false
}

// StartPhase closes the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	if p == nil {
		return
	}
	now := time.Now()
	p.closePhase(now)
	p.phase = phase
	p.phaseStart = now
	p.inPhase = true
}

// EndTick finishes the tick and stores its sample.
func (p *PerfCollector) EndTick() {
	if p == nil {
		return
	}
	now := time.Now()
	p.closePhase(now)
	p.current.tick = now.Sub(p.tickStart)

	p.samples[p.next] = p.current
	p.next = (p.next + 1) % len(p.samples)
	if p.count < len(p.samples) {
		p.count++
	}
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.inPhase {
		p.current.phases[p.phase] += now.Sub(p.phaseStart)
		p.inPhase = false
	}
}

// PerfStats aggregates the collector's window.
type PerfStats struct {
	Samples  int
	AvgTick  time.Duration
	MinTick  time.Duration
	MaxTick  time.Duration
	PhaseAvg [numPhases]time.Duration
	PhasePct [numPhases]float64 // Share of the average tick, 0-100

	// Ticks per wall second, excluding time spent waiting on the clock.
	ComputeRate float64
}

// Stats computes aggregates over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p == nil || p.count == 0 {
		return PerfStats{}
	}

	var total time.Duration
	var sums [numPhases]time.Duration
	s := PerfStats{Samples: p.count}
	for i := 0; i < p.count; i++ {
		smp := p.samples[i]
		total += smp.tick
		if i == 0 || smp.tick < s.MinTick {
			s.MinTick = smp.tick
		}
		s.MaxTick = max(s.MaxTick, smp.tick)
		for ph := range sums {
			sums[ph] += smp.phases[ph]
		}
	}

	n := time.Duration(p.count)
	s.AvgTick = total / n
	for ph := range sums {
		s.PhaseAvg[ph] = sums[ph] / n
		if s.AvgTick > 0 {
			s.PhasePct[ph] = float64(s.PhaseAvg[ph]) / float64(s.AvgTick) * 100
		}
	}
	if busy := s.AvgTick - s.PhaseAvg[PhaseWait]; busy > 0 {
		s.ComputeRate = float64(time.Second) / float64(busy)
	}
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("samples", s.Samples),
		slog.Int64("avg_tick_us", s.AvgTick.Microseconds()),
		slog.Int64("min_tick_us", s.MinTick.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTick.Microseconds()),
		slog.Float64("compute_ticks_per_sec", s.ComputeRate),
	}
	for ph := Phase(0); ph < numPhases; ph++ {
		if s.PhasePct[ph] > 0.1 {
			attrs = append(attrs, slog.Float64(ph.String()+"_pct", s.PhasePct[ph]))
		}
	}
	return slog.GroupValue(attrs...)
}
