// Package dosing computes weight-based drug doses and serves the static
// species protocol table.
package dosing

import (
	"fmt"
	"math"

	"immobilog/pkg/domain"
)

// Dose is the unrounded result of ComputeDose. Rounding to two decimals is a
// presentation concern.
type Dose struct {
	DoseMg   float64 `json:"doseMg"`
	VolumeMl float64 `json:"volumeMl"`
}

// ComputeDose returns doseMg = mean(range) * weight and volumeMl = doseMg / concentration.
// Non-positive weight or concentration is rejected before any division.
func ComputeDose(weightKg float64, r domain.DoseRange, concentrationMgPerMl float64) (Dose, error) {
	if !positive(weightKg) {
		return Dose{}, fmt.Errorf("%w: weight must be positive, got %v", domain.ErrInvalidDoseInput, weightKg)
	}
	if !positive(concentrationMgPerMl) {
		return Dose{}, fmt.Errorf("%w: concentration must be positive, got %v", domain.ErrInvalidDoseInput, concentrationMgPerMl)
	}
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || r.Min < 0 || r.Min > r.Max {
		return Dose{}, fmt.Errorf("%w: dose range [%v, %v] must satisfy 0 <= min <= max", domain.ErrInvalidDoseInput, r.Min, r.Max)
	}
	doseMg := r.Mean() * weightKg
	return Dose{DoseMg: doseMg, VolumeMl: doseMg / concentrationMgPerMl}, nil
}

// VolumeForDose converts a per-kg dose into an administered volume, as the
// drug administration helper does before recording an entry.
func VolumeForDose(weightKg, doseMgPerKg, concentrationMgPerMl float64) (Dose, error) {
	return ComputeDose(weightKg, domain.DoseRange{Min: doseMgPerKg, Max: doseMgPerKg}, concentrationMgPerMl)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
