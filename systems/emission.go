package systems

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/radiate/components"
	"github.com/pthm-cable/radiate/config"
)

// Radiation law constants.
const (
	StefanBoltzmann     = 5.670374419e-8 // W·m⁻²·K⁻⁴
	DefaultScaleDivisor = 4.65e20
)

// ErrInvalidVolume is returned when a surface area is requested for a
// non-positive volume, which has no physical radius.
var ErrInvalidVolume = errors.New("invalid volume")

// EmissionModel computes how much energy a source radiates over an interval.
// The balance of the source doubles as its volume and its temperature.
type EmissionModel struct {
	StefanBoltzmann float64
	ScaleDivisor    float64
}

// NewEmissionModel builds a model from the emission config section.
func NewEmissionModel(cfg config.EmissionConfig) EmissionModel {
	return EmissionModel{
		StefanBoltzmann: cfg.StefanBoltzmann,
		ScaleDivisor:    cfg.ScaleDivisor,
	}
}

// SurfaceArea treats volume as a sphere and returns its surface area.
func SurfaceArea(volume float64) (float64, error) {
	if !(volume > 0) || math.IsInf(volume, 1) {
		return 0, fmt.Errorf("%w: %g", ErrInvalidVolume, volume)
	}
	radius := math.Cbrt(volume / (4.0 / 3.0 * math.Pi))
	return 4 * math.Pi * radius * radius, nil
}

// Rate returns σ·A·T⁴ scaled down by the calibration divisor.
func (m EmissionModel) Rate(area, temperature float64) float64 {
	t2 := temperature * temperature
	return m.StefanBoltzmann * area * t2 * t2 / m.ScaleDivisor
}

// Amount returns the energy the source radiates over elapsedSeconds and
// records the instantaneous rate on the source. Non-positive intervals and
// depleted sources emit nothing. The result is not clamped to the balance.
func (m EmissionModel) Amount(src *components.Source, elapsedSeconds float64) (float64, error) {
	if src.Depleted() {
		src.EmissionRate = 0
		return 0, nil
	}

	area, err := SurfaceArea(src.Balance)
	if err != nil {
		return 0, err
	}
	rate := m.Rate(area, src.Balance)
	src.EmissionRate = rate

	if elapsedSeconds <= 0 {
		return 0, nil
	}
	return rate * elapsedSeconds, nil
}
