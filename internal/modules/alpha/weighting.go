package alpha

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// weightSumTolerance is the floating tolerance when checking that
// normalised weights sum to one.
const weightSumTolerance = 1e-4

// WeightingMethod converts raw signals to raw portfolio weights.
//
// Input and output are keyed by pair internal id. Methods must be pure:
// no side effects, no global state. Negative signals receive a positive
// weight, direction is carried by the signal sign separately.
type WeightingMethod func(signals map[int64]float64) map[int64]float64

// WeightBy1SlashN assigns equal weight to every non-zero signal.
func WeightBy1SlashN(signals map[int64]float64) map[int64]float64 {
	weights := make(map[int64]float64, len(signals))
	count := 0
	for _, signal := range signals {
		if signal != 0 {
			count++
		}
	}
	if count == 0 {
		return weights
	}
	for pairID, signal := range signals {
		if signal != 0 {
			weights[pairID] = 1.0 / float64(count)
		}
	}
	return weights
}

// WeightPassthrough uses the absolute signal value as the raw weight.
func WeightPassthrough(signals map[int64]float64) map[int64]float64 {
	weights := make(map[int64]float64, len(signals))
	for pairID, signal := range signals {
		weights[pairID] = math.Abs(signal)
	}
	return weights
}

// NormaliseWeights rescales raw weights so they sum to one.
//
// If all raw weights are zero the result is all zero; there is no
// division by zero for an empty or all-zero set.
func NormaliseWeights(weights map[int64]float64) map[int64]float64 {
	values := make([]float64, 0, len(weights))
	for _, w := range weights {
		values = append(values, w)
	}
	total := floats.Sum(values)

	normalised := make(map[int64]float64, len(weights))
	for pairID, w := range weights {
		if total == 0 {
			normalised[pairID] = 0
		} else {
			normalised[pairID] = w / total
		}
	}
	return normalised
}

// CheckNormalisedWeights validates that weights sum to one, or to zero
// for an empty allocation, within floating tolerance.
func CheckNormalisedWeights(weights map[int64]float64) error {
	values := make([]float64, 0, len(weights))
	for pairID, w := range weights {
		if w < 0 || w > 1+weightSumTolerance {
			return fmt.Errorf("normalised weight for pair %d out of range [0, 1]: %f", pairID, w)
		}
		values = append(values, w)
	}
	total := floats.Sum(values)
	if total != 0 && math.Abs(total-1) > weightSumTolerance {
		return fmt.Errorf("normalised weights must sum to 1, got %f", total)
	}
	return nil
}
