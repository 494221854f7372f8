package ensemble

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pthm-cable/radiate/config"
)

var start = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func testConfig(divisor float64, levels int) *config.Config {
	cfg := config.Default()
	cfg.Emission.ScaleDivisor = divisor
	cfg.Environment.LevelCount = levels
	return cfg
}

func TestNewRejectsEmpty(t *testing.T) {
	if _, err := New(testConfig(1e12, 4), 0, 1, start); err == nil {
		t.Error("expected error for zero replicas")
	}
}

func TestReplicasAreIndependent(t *testing.T) {
	e, err := New(testConfig(1e12, 8), 5, 100, start)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := e.Run(context.Background(), 20); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rows := e.Records()
	if len(rows) != 5 {
		t.Fatalf("got %d records, want 5", len(rows))
	}
	for i, r := range rows {
		if r.Replica != i || r.Seed != 100+uint64(i) {
			t.Errorf("row %d: replica %d seed %d", i, r.Replica, r.Seed)
		}
		if r.Ticks != 20 {
			t.Errorf("replica %d ticked %d times, want 20", i, r.Ticks)
		}
		if math.Abs(r.SourceBalance+r.EnvironmentBalance-1000) > 1e-9 {
			t.Errorf("replica %d not conserved: %g + %g", i, r.SourceBalance, r.EnvironmentBalance)
		}
	}

	// Balances are deterministic, only the level split depends on the seed
	if rows[0].SourceBalance != rows[4].SourceBalance {
		t.Errorf("balances diverged: %g vs %g", rows[0].SourceBalance, rows[4].SourceBalance)
	}
	if rows[0].LevelMax == rows[4].LevelMax {
		t.Error("expected different level splits for different seeds")
	}
}

func TestRunStopsWhenAllDepleted(t *testing.T) {
	// An hour at 1e7 emits more than the whole supply
	cfg := testConfig(1e7, 0)
	cfg.Clock.Tick = time.Hour
	e, err := New(cfg, 3, 1, start)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), 0); err != nil {
		t.Fatal(err)
	}

	stats := e.Stats()
	if stats.Replicas != 3 || stats.Depleted != 3 {
		t.Errorf("replicas/depleted = %d/%d, want 3/3", stats.Replicas, stats.Depleted)
	}
	if stats.Source.Mean != 0 || stats.Environment.Mean != 1000 {
		t.Errorf("means = %g / %g, want 0 / 1000", stats.Source.Mean, stats.Environment.Mean)
	}
	if e.Tick() != 1 {
		t.Errorf("Tick() = %d, want 1", e.Tick())
	}
}

func TestRunStopsWhenAllStalled(t *testing.T) {
	e, err := New(testConfig(4.65e20, 2), 3, 1, start)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if e.Tick() != 1 {
		t.Errorf("Tick() = %d, want 1", e.Tick())
	}
	for _, r := range e.Records() {
		if !r.Stalled || r.Depleted || r.Ticks != 1 {
			t.Errorf("replica %d: stalled=%v depleted=%v ticks=%d", r.Replica, r.Stalled, r.Depleted, r.Ticks)
		}
	}
}

func TestRunHonoursCancel(t *testing.T) {
	e, err := New(testConfig(1e12, 0), 2, 1, start)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := e.Run(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if e.Tick() != 0 {
		t.Errorf("Tick() = %d after cancelled run, want 0", e.Tick())
	}
}
