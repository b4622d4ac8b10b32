package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StrategyParams holds the per-cycle rebalancing parameters.
//
// These are externalized so that backtests and live runs can vary and
// audit them instead of relying on hardcoded defaults.
type StrategyParams struct {
	// How many top signals to pick each cycle
	TopCount int `yaml:"top_count"`

	// Minimum |signal| for a pair to be eligible for selection (inclusive)
	SignalThreshold float64 `yaml:"signal_threshold"`

	// Rebalance deltas below this USD amount are ignored
	MinTradeThreshold float64 `yaml:"min_trade_threshold"`

	// Positions whose normalised weight falls below this are force-closed
	ClosePositionWeightEpsilon float64 `yaml:"close_position_weight_epsilon"`
}

// DefaultStrategyParams returns the stock parameter set.
func DefaultStrategyParams() StrategyParams {
	return StrategyParams{
		TopCount:                   5,
		SignalThreshold:            0,
		MinTradeThreshold:          10.0,
		ClosePositionWeightEpsilon: 0.005,
	}
}

// LoadStrategyParams reads strategy parameters from a YAML file.
//
// Missing file path returns the defaults.
func LoadStrategyParams(path string) (StrategyParams, error) {
	params := DefaultStrategyParams()

	if path == "" {
		return params, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("failed to read strategy params %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &params); err != nil {
		return params, fmt.Errorf("failed to parse strategy params %s: %w", path, err)
	}

	if err := params.Validate(); err != nil {
		return params, err
	}

	return params, nil
}

// Validate checks parameter sanity.
func (p StrategyParams) Validate() error {
	if p.TopCount <= 0 {
		return fmt.Errorf("top_count must be positive, got %d", p.TopCount)
	}
	if p.SignalThreshold < 0 {
		return fmt.Errorf("signal_threshold must not be negative, got %f", p.SignalThreshold)
	}
	if p.MinTradeThreshold < 0 {
		return fmt.Errorf("min_trade_threshold must not be negative, got %f", p.MinTradeThreshold)
	}
	if p.ClosePositionWeightEpsilon < 0 || p.ClosePositionWeightEpsilon >= 1 {
		return fmt.Errorf("close_position_weight_epsilon must be in [0, 1), got %f", p.ClosePositionWeightEpsilon)
	}
	return nil
}
