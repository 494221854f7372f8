// Package ensemble runs many independent simulations side by side as
// entities of one ECS world. Replicas never interact; each owns its own
// Source, Environment and seeded sampler.
package ensemble

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/radiate/components"
	"github.com/pthm-cable/radiate/config"
	"github.com/pthm-cable/radiate/systems"
	"github.com/pthm-cable/radiate/telemetry"
)

// Replica identifies one simulation in the world.
type Replica struct {
	Index    int
	Seed     uint64
	Ticks    int
	Stalled  bool // Emission fell below the balance's resolution; no longer stepped
	Transfer *systems.Transfer
}

// Ensemble holds the ECS world of replicas and a shared logical clock.
type Ensemble struct {
	world  *ecs.World
	mapper *ecs.Map3[components.Source, components.Environment, Replica]
	filter *ecs.Filter3[components.Source, components.Environment, Replica]

	now  time.Time
	step time.Duration
	tick int
}

// New creates count replicas from cfg. Replica i is seeded with baseSeed+i.
func New(cfg *config.Config, count int, baseSeed uint64, start time.Time) (*Ensemble, error) {
	if count <= 0 {
		return nil, fmt.Errorf("replica count must be > 0, got %d", count)
	}
	world := ecs.NewWorld()

	e := &Ensemble{
		world:  world,
		mapper: ecs.NewMap3[components.Source, components.Environment, Replica](world),
		filter: ecs.NewFilter3[components.Source, components.Environment, Replica](world),
		now:    start,
		step:   cfg.Clock.Tick,
	}

	for i := 0; i < count; i++ {
		seed := baseSeed + uint64(i)
		src := components.NewSource(cfg.Source.InitialSupply, start)
		env, err := components.NewEnvironment(cfg.Environment.LevelCount)
		if err != nil {
			return nil, err
		}
		rep := Replica{
			Index:    i,
			Seed:     seed,
			Transfer: systems.NewTransfer(cfg, rand.NewPCG(seed, seed)),
		}
		e.mapper.NewEntity(&src, &env, &rep)
	}

	return e, nil
}

// Tick returns the number of completed ensemble steps.
func (e *Ensemble) Tick() int {
	return e.tick
}

// Step advances every replica that is neither depleted nor stalled by one
// tick. Returns the number of replicas still active after the step.
func (e *Ensemble) Step() (int, error) {
	e.now = e.now.Add(e.step)
	e.tick++

	active := 0
	query := e.filter.Query()
	for query.Next() {
		src, env, rep := query.Get()
		if src.Depleted() || rep.Stalled {
			continue
		}
		res, err := rep.Transfer.Advance(src, env, e.now)
		if err != nil {
			query.Close()
			return 0, fmt.Errorf("replica %d: %w", rep.Index, err)
		}
		rep.Ticks++
		rep.Stalled = res.Stalled()
		if !res.Depleted && !rep.Stalled {
			active++
		}
	}
	return active, nil
}

// Run steps until every replica is depleted or stalled, maxTicks is reached (0 = no
// limit), or ctx is cancelled.
func (e *Ensemble) Run(ctx context.Context, maxTicks int) error {
	for maxTicks == 0 || e.tick < maxTicks {
		if err := ctx.Err(); err != nil {
			return nil
		}
		active, err := e.Step()
		if err != nil {
			return err
		}
		if active == 0 {
			slog.Info("all replicas depleted or stalled", "tick", e.tick)
			return nil
		}
	}
	return nil
}

// Records returns each replica's final state ordered by replica index.
func (e *Ensemble) Records() []telemetry.ReplicaRecord {
	var rows []telemetry.ReplicaRecord
	query := e.filter.Query()
	for query.Next() {
		src, env, rep := query.Get()
		maxShare, std := telemetry.LevelShares(env.Levels)
		rows = append(rows, telemetry.ReplicaRecord{
			Replica:            rep.Index,
			Seed:               rep.Seed,
			Ticks:              rep.Ticks,
			SourceBalance:      src.Balance,
			EnvironmentBalance: env.Balance,
			LevelMax:           maxShare,
			LevelStdDev:        std,
			Depleted:           src.Depleted(),
			Stalled:            rep.Stalled,
		})
	}
	ordered := make([]telemetry.ReplicaRecord, len(rows))
	for _, r := range rows {
		ordered[r.Replica] = r
	}
	return ordered
}

// Stats aggregates the current replica finals.
func (e *Ensemble) Stats() telemetry.EnsembleStats {
	return telemetry.ComputeEnsembleStats(e.Records())
}
