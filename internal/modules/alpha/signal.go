package alpha

import (
	"fmt"

	"github.com/aristath/alpha-trader/internal/domain"
)

// Signal captures one asset in the cycle weighting.
//
// The lifecycle of the instance is one strategy cycle and it belongs to
// a Model. Required fields (pair, alpha) come from the strategy;
// everything else is filled in as the model moves from abstract
// weightings to dollar amounts and trades. All intermediate values are
// retained and serialised so a cycle can be audited after the fact.
type Signal struct {
	// The underlying spot pair. Never a derived instrument.
	Pair *domain.TradingPairIdentifier `json:"pair"`

	// Raw alpha value. Sign is direction: negative means short.
	// Zero signals exist only for positions about to be closed.
	Alpha float64 `json:"signal"`

	// Risk triggers as fractions of entry price, e.g. 0.98 = 2% stop loss.
	StopLoss         *float64 `json:"stop_loss,omitempty"`
	TakeProfit       *float64 `json:"take_profit,omitempty"`
	TrailingStopLoss *float64 `json:"trailing_stop_loss,omitempty"`

	// Required for shorts, nil for spot
	Leverage *float64 `json:"leverage,omitempty"`

	// Weight assigned by the weighting method. Negative signals still
	// get a positive weight.
	RawWeight float64 `json:"raw_weight"`

	// Raw weight rescaled so the cycle's selected set sums to 1
	NormalisedWeight float64 `json:"normalised_weight"`

	// Snapshot of this asset's allocation on the previous cycle,
	// read back from currently open positions
	OldWeight float64                       `json:"old_weight"`
	OldValue  float64                       `json:"old_value"`
	OldPair   *domain.TradingPairIdentifier `json:"old_pair,omitempty"`

	// Dollar target for this cycle and the delta needed to reach it
	PositionTarget    float64 `json:"position_target"`
	PositionAdjustUSD float64 `json:"position_adjust_usd"`

	// Asset units to sell when decreasing a position. Negative.
	// Not used when closing (weight 0) due to rounding and epsilon errors.
	PositionAdjustQuantity float64 `json:"position_adjust_quantity"`

	// The instrument this cycle actually trades: the spot pair itself,
	// or the resolved short-market pair. Set during target computation.
	SyntheticPair *domain.TradingPairIdentifier `json:"synthetic_pair,omitempty"`

	// Open position controlled by this signal, set after trade generation.
	// Zero means no position.
	PositionID int64 `json:"position_id,omitempty"`

	// True when the computed delta fell below the minimum trade
	// threshold and no trade was emitted
	PositionAdjustIgnored bool `json:"position_adjust_ignored"`

	// Position profit as of cycle start, before any new trades.
	// Recorded for audit and visualisation.
	ProfitBeforeTrades    float64 `json:"profit_before_trades"`
	ProfitBeforeTradesPct float64 `json:"profit_before_trades_pct"`
}

func (s *Signal) String() string {
	return fmt.Sprintf("Pair: %s old weight: %.4f old value: %.2f raw signal: %.4f normalised weight: %.4f new value: %.2f adjust: %.2f",
		s.Pair.Ticker(), s.OldWeight, s.OldValue, s.Alpha, s.NormalisedWeight, s.PositionTarget, s.PositionAdjustUSD)
}

// HasTrades tells if this signal should cause any trades to be executed.
//
// Even if the weight does not change we might still rebalance because
// prices changed. Adjustments under the trade threshold set
// PositionAdjustIgnored instead.
func (s *Signal) HasTrades() bool {
	return (s.NormalisedWeight != 0 || s.OldWeight != 0) && !s.PositionAdjustIgnored
}

// IsShort tells if the underlying trading activity shorts the asset.
// Valid only after target computation has resolved the synthetic pair.
func (s *Signal) IsShort() bool {
	return s.SyntheticPair != nil && s.SyntheticPair.IsShort()
}

// IsSpot tells if the underlying trading activity buys the spot asset.
// Valid only after target computation has resolved the synthetic pair.
func (s *Signal) IsSpot() bool {
	return s.SyntheticPair != nil && s.SyntheticPair.IsSpot()
}

// IsNew tells if the asset had no open position on the previous cycle
func (s *Signal) IsNew() bool {
	return s.OldWeight == 0
}

// IsClosing tells if this cycle takes the asset to flat
func (s *Signal) IsClosing() bool {
	return s.NormalisedWeight == 0
}

// IsFlipping tells if this cycle reverses the held direction
// (spot/long <-> short).
//
// Closing to flat is never a flip, and neither is a fresh entry with no
// prior position.
func (s *Signal) IsFlipping() bool {
	if s.NormalisedWeight == 0 {
		return false
	}
	if s.OldPair == nil {
		return false
	}
	if s.Alpha < 0 {
		return s.OldPair.IsSpot()
	}
	if s.Alpha > 0 {
		return s.OldPair.IsShort()
	}
	return false
}

// FlipLabel returns a human readable direction transition label
func (s *Signal) FlipLabel() string {
	if s.OldPair == nil {
		switch {
		case s.Alpha > 0:
			return "none -> spot"
		case s.Alpha < 0:
			return "none -> short"
		default:
			return "no flip"
		}
	}

	if s.OldPair.IsSpot() {
		switch {
		case s.Alpha < 0:
			return "spot -> short"
		case s.Alpha == 0:
			return "spot -> close"
		default:
			return "no flip"
		}
	}

	// Old position was short
	switch {
	case s.Alpha > 0:
		return "short -> spot"
	case s.Alpha == 0:
		return "short -> close"
	default:
		return "no flip"
	}
}
