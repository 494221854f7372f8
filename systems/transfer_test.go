package systems

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/pthm-cable/radiate/components"
	"github.com/pthm-cable/radiate/config"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig(levels int) *config.Config {
	cfg := config.Default()
	cfg.Environment.LevelCount = levels
	return cfg
}

func newTestState(t *testing.T, cfg *config.Config) *State {
	t.Helper()
	s, err := NewState(cfg, rand.NewPCG(42, 42), epoch)
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}
	return s
}

func TestAdvanceEndToEnd(t *testing.T) {
	s := newTestState(t, testConfig(100))

	res, err := s.Advance(epoch.Add(1000 * time.Millisecond))
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	if !(res.Emitted > 0) {
		t.Fatalf("expected positive emission, got %g", res.Emitted)
	}
	if res.Emitted > 1000*1e-4 {
		t.Errorf("emission %g too large for one second", res.Emitted)
	}
	if s.Environment.Balance != res.Emitted {
		t.Errorf("environment balance %g, want emitted %g", s.Environment.Balance, res.Emitted)
	}
	// At the reference divisor the emission is below one ulp of the balance
	ulp := math.Nextafter(1000, 2000) - 1000
	lost := 1000 - s.Source.Balance
	if lost < 0 || math.Abs(lost-res.Emitted) > ulp {
		t.Errorf("source lost %g but environment gained %g", lost, res.Emitted)
	}
	if math.Abs(s.Environment.LevelSum()-s.Environment.Balance) > 1e-9*math.Max(1, s.Environment.Balance) {
		t.Errorf("level sum %g, want %g", s.Environment.LevelSum(), s.Environment.Balance)
	}
	if res.Elapsed != 1 {
		t.Errorf("elapsed = %g, want 1", res.Elapsed)
	}
	if !s.Source.LastUpdate.Equal(epoch.Add(time.Second)) {
		t.Errorf("LastUpdate = %v, want %v", s.Source.LastUpdate, epoch.Add(time.Second))
	}
}

func TestAdvanceConservation(t *testing.T) {
	cfg := testConfig(16)
	cfg.Emission.ScaleDivisor = 1e12 // fast enough to move real energy
	s := newTestState(t, cfg)

	now := epoch
	prevEnv := 0.0
	for i := 0; i < 50; i++ {
		now = now.Add(time.Second)
		prevSrc := s.Source.Balance
		res, err := s.Advance(now)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		gained := res.EnvironmentBalance - prevEnv
		if math.Abs(prevSrc-(res.SourceBalance+gained)) > 1e-9*prevSrc {
			t.Errorf("tick %d: %g != %g + %g", i, prevSrc, res.SourceBalance, gained)
		}
		if res.EnvironmentBalance < prevEnv {
			t.Errorf("tick %d: environment decreased %g -> %g", i, prevEnv, res.EnvironmentBalance)
		}
		prevEnv = res.EnvironmentBalance
	}
}

func TestAdvanceSameInstantIsNoOp(t *testing.T) {
	s := newTestState(t, testConfig(10))
	now := epoch.Add(5 * time.Second)
	if _, err := s.Advance(now); err != nil {
		t.Fatal(err)
	}
	src, env := s.Source.Balance, s.Environment.Balance

	for i := 0; i < 2; i++ {
		res, err := s.Advance(now)
		if err != nil {
			t.Fatal(err)
		}
		if res.Emitted != 0 {
			t.Errorf("emitted %g at zero elapsed", res.Emitted)
		}
	}
	if s.Source.Balance != src || s.Environment.Balance != env {
		t.Errorf("balances changed: %g/%g -> %g/%g", src, env, s.Source.Balance, s.Environment.Balance)
	}
}

func TestAdvanceClockBackward(t *testing.T) {
	s := newTestState(t, testConfig(0))
	res, err := s.Advance(epoch.Add(-time.Minute))
	if err != nil {
		t.Fatalf("backward clock should not be fatal: %v", err)
	}
	if res.Emitted != 0 || res.Elapsed != 0 {
		t.Errorf("got emitted %g elapsed %g, want 0 and 0", res.Emitted, res.Elapsed)
	}
	if s.Source.Balance != 1000 {
		t.Errorf("source balance = %g, want 1000", s.Source.Balance)
	}
}

func TestAdvanceWithoutLevels(t *testing.T) {
	s := newTestState(t, testConfig(0))
	now := epoch
	for i := 0; i < 10; i++ {
		now = now.Add(time.Second)
		res, err := s.Advance(now)
		if err != nil {
			t.Fatal(err)
		}
		if res.Levels != nil {
			t.Fatalf("tick %d: levels = %v, want nil", i, res.Levels)
		}
	}
	if s.Environment.Levels != nil {
		t.Errorf("environment levels = %v, want nil", s.Environment.Levels)
	}
}

func TestAdvanceResamplesEveryTick(t *testing.T) {
	cfg := testConfig(8)
	cfg.Emission.ScaleDivisor = 1e12
	s := newTestState(t, cfg)

	res1, err := s.Advance(epoch.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	res2, err := s.Advance(epoch.Add(2 * time.Second))
	if err != nil {
		t.Fatal(err)
	}

	// Each tick's increment share per level should differ between ticks
	same := true
	for i := range res2.Levels {
		inc := res2.Levels[i] - res1.Levels[i]
		if math.Abs(inc/res2.Emitted-res1.Levels[i]/res1.Emitted) > 1e-12 {
			same = false
		}
	}
	if same {
		t.Error("expected a fresh level split on each tick")
	}
}

func TestAdvanceClampsToZero(t *testing.T) {
	cfg := testConfig(4)
	cfg.Emission.ScaleDivisor = 1 // emission dwarfs the balance
	s := newTestState(t, cfg)

	res, err := s.Advance(epoch.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Clamped || !res.Depleted {
		t.Errorf("clamped=%v depleted=%v, want both true", res.Clamped, res.Depleted)
	}
	if s.Source.Balance != 0 {
		t.Errorf("source balance = %g, want 0", s.Source.Balance)
	}
	if s.Environment.Balance != 1000 {
		t.Errorf("environment balance = %g, want 1000", s.Environment.Balance)
	}

	// Further ticks are harmless
	res, err = s.Advance(epoch.Add(2 * time.Second))
	if err != nil {
		t.Fatalf("advance after depletion failed: %v", err)
	}
	if res.Emitted != 0 || s.Source.Balance != 0 {
		t.Errorf("emitted %g balance %g after depletion", res.Emitted, s.Source.Balance)
	}
}

func TestAdvanceTerminatesUnderClamping(t *testing.T) {
	// Emission goes as b^(14/3): b' = b(1 - c·b^(11/3)), so a clamp can only
	// happen on the first tick. An hour at 1e7 emits ~9870 > 1000.
	cfg := testConfig(10)
	cfg.Emission.ScaleDivisor = 1e7
	s := newTestState(t, cfg)

	res, err := s.Advance(epoch.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Clamped || !res.Depleted || s.Source.Balance != 0 {
		t.Errorf("clamped=%v depleted=%v balance=%g, want depletion on tick 1", res.Clamped, res.Depleted, s.Source.Balance)
	}
	if math.Abs(s.Environment.LevelSum()-1000) > 1e-9 {
		t.Errorf("levels hold %g, want 1000", s.Environment.LevelSum())
	}
}

func TestAdvanceNeverClampsWhenFirstTickFits(t *testing.T) {
	// An hour at 1e9 emits ~98.7: the balance decays toward zero forever.
	cfg := testConfig(0)
	cfg.Emission.ScaleDivisor = 1e9
	s := newTestState(t, cfg)

	now := epoch
	prev := s.Source.Balance
	for tick := 1; tick <= 2000; tick++ {
		now = now.Add(time.Hour)
		res, err := s.Advance(now)
		if err != nil {
			t.Fatal(err)
		}
		if res.Clamped || res.Depleted {
			t.Fatalf("tick %d: unexpected clamp at balance %g", tick, prev)
		}
		if !(s.Source.Balance < prev) {
			t.Fatalf("tick %d: balance %g did not decrease from %g", tick, s.Source.Balance, prev)
		}
		prev = s.Source.Balance
	}
}

func TestResultStalled(t *testing.T) {
	cfg := testConfig(0)
	cfg.Emission.ScaleDivisor = DefaultScaleDivisor
	s := newTestState(t, cfg)

	res, err := s.Advance(epoch.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Stalled() {
		t.Errorf("emission %g at balance %.17g should count as stalled", res.Emitted, res.SourceBalance)
	}

	cfg.Emission.ScaleDivisor = 1e12
	s = newTestState(t, cfg)
	if res, _ = s.Advance(epoch.Add(time.Second)); res.Stalled() {
		t.Errorf("emission %g should not count as stalled", res.Emitted)
	}

	cases := []Result{
		{Elapsed: 0, SourceBalance: 1000},
		{Elapsed: 1, Depleted: true},
	}
	for _, r := range cases {
		if r.Stalled() {
			t.Errorf("%+v reported stalled", r)
		}
	}
}

func TestAdvanceSamplerFailureLeavesStateUntouched(t *testing.T) {
	cfg := testConfig(5)
	s, err := NewState(cfg, zeroSource{}, epoch)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Advance(epoch.Add(time.Second))
	if !errors.Is(err, ErrSampleBudgetExhausted) {
		t.Fatalf("error = %v, want ErrSampleBudgetExhausted", err)
	}
	if s.Source.Balance != 1000 || s.Environment.Balance != 0 {
		t.Errorf("state mutated on failed tick: %g / %g", s.Source.Balance, s.Environment.Balance)
	}
	if !s.Source.LastUpdate.Equal(epoch) {
		t.Error("LastUpdate moved on failed tick")
	}
	for i, v := range s.Environment.Levels {
		if v != 0 {
			t.Errorf("level %d = %g, want 0", i, v)
		}
	}
}

func TestRestoreState(t *testing.T) {
	cfg := testConfig(2)
	cfg.Emission.ScaleDivisor = 1e12
	src := components.Source{Balance: 500, InitialSupply: 1000, LastUpdate: epoch}
	env := components.Environment{Balance: 500, Levels: []float64{200, 300}}

	s := RestoreState(cfg, rand.NewPCG(1, 1), src, env)
	if _, err := s.Advance(epoch.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if s.Source.Balance >= 500 || s.Environment.Balance <= 500 {
		t.Errorf("restored state did not advance: %g / %g", s.Source.Balance, s.Environment.Balance)
	}
}
