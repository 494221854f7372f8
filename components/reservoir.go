// Package components defines the reservoir entities mutated by the simulation.
// They are plain structs so the ensemble runner can store them as ECS components.
package components

import (
	"fmt"
	"time"
)

// Source is the radiating reservoir. Its balance only ever decreases.
type Source struct {
	Balance       float64   // Remaining energy, never negative
	EmissionRate  float64   // Instantaneous rate from the last tick (informational)
	LastUpdate    time.Time // Time of the last Advance
	InitialSupply float64   // Immutable after construction
}

// NewSource creates a full source whose clock starts at now.
func NewSource(initialSupply float64, now time.Time) Source {
	return Source{
		Balance:       initialSupply,
		LastUpdate:    now,
		InitialSupply: initialSupply,
	}
}

// Depleted reports whether the source has nothing left to emit.
func (s *Source) Depleted() bool {
	return s.Balance <= 0
}

// Fraction returns the share of the initial supply still held.
func (s *Source) Fraction() float64 {
	if s.InitialSupply <= 0 {
		return 0
	}
	return s.Balance / s.InitialSupply
}

// Environment is the absorbing reservoir, optionally partitioned into levels.
type Environment struct {
	Balance float64   // Cumulative energy received
	Levels  []float64 // nil when level tracking is disabled
}

// NewEnvironment creates an empty environment. levelCount == 0 disables
// level tracking and leaves Levels nil.
func NewEnvironment(levelCount int) (Environment, error) {
	if levelCount < 0 {
		return Environment{}, fmt.Errorf("level count must be >= 0, got %d", levelCount)
	}
	env := Environment{}
	if levelCount > 0 {
		env.Levels = make([]float64, levelCount)
	}
	return env, nil
}

// TracksLevels reports whether energy is partitioned into levels.
func (e *Environment) TracksLevels() bool {
	return len(e.Levels) > 0
}

// LevelSum returns the total energy held across all levels.
func (e *Environment) LevelSum() float64 {
	var sum float64
	for _, v := range e.Levels {
		sum += v
	}
	return sum
}
