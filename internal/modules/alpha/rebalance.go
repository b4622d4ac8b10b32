package alpha

import (
	"fmt"
	"math"

	"github.com/aristath/alpha-trader/internal/domain"
	"github.com/aristath/alpha-trader/internal/modules/portfolio"
	"github.com/aristath/alpha-trader/internal/modules/trading"
)

// DefaultMinTradeThreshold ignores rebalance deltas under 10 USD,
// suppressing churn from valuation noise and rounding.
const DefaultMinTradeThreshold = 10.0

// PortfolioView is the read-only portfolio state the model consumes
// when merging previous-cycle weights.
type PortfolioView interface {
	OpenPositions() []*portfolio.Position
	EquityAndLoanNAV() float64
}

// ShortingPairResolver resolves the short-market instrument for a spot
// underlying. Implemented by the trading universe.
type ShortingPairResolver interface {
	GetShortingPair(underlying *domain.TradingPairIdentifier) (*domain.TradingPairIdentifier, error)
}

// PositionManager executes position opens, closes and adjustments and
// answers quantity queries. It owns all exchange and chain interaction;
// its failures are propagated to the caller untouched, never retried
// here.
type PositionManager interface {
	// GetCurrentPositionForPair returns the open position trading the
	// given instrument, or nil
	GetCurrentPositionForPair(pair *domain.TradingPairIdentifier) *portfolio.Position

	// ClosePosition fully closes an open position
	ClosePosition(position *portfolio.Position, note string) ([]*trading.TradeIntent, error)

	// OpenShort opens a short position over the spot underlying at the
	// given notional value and leverage
	OpenShort(underlying *domain.TradingPairIdentifier, value, leverage float64, risk trading.RiskParameters, note string) ([]*trading.TradeIntent, error)

	// AdjustShort moves an existing short position to a new notional value
	AdjustShort(position *portfolio.Position, newValue float64, note string) ([]*trading.TradeIntent, error)

	// AdjustPosition increases or decreases a spot position by the given
	// dollar delta, opening a new position when none exists
	AdjustPosition(pair *domain.TradingPairIdentifier, dollarDelta, quantityDelta, targetWeight float64, risk trading.RiskParameters, overrideStopLoss bool, note string) ([]*trading.TradeIntent, error)

	// EstimateAssetQuantity converts a dollar amount to asset units at
	// the current price. Sign is preserved.
	EstimateAssetQuantity(pair *domain.TradingPairIdentifier, dollarAmount float64) (float64, error)
}

// GenerateRebalanceTrades generates the trades that rebalance the
// portfolio to the computed targets.
//
// Per signal, in deterministic pair order:
//
//   - Deltas under minTradeThreshold are ignored unless the signal is
//     flipping direction.
//   - Positions whose normalised weight fell under the close epsilon are
//     explicitly closed regardless of the delta, cleaning up dust.
//   - A flip closes the old position first, capturing realized P&L
//     before the new direction opens.
//   - Shorts open at the full target when flipping or previously flat,
//     otherwise the existing short is adjusted to the target value.
//   - Spot signals adjust the position by the dollar delta, forwarding
//     the risk parameters.
//
// The returned trades are sorted for execution: sells before buys, so
// capital freed by sells is available before buys are attempted.
func (m *Model) GenerateRebalanceTrades(pm PositionManager, minTradeThreshold float64) ([]*trading.TradeIntent, error) {
	var trades []*trading.TradeIntent

	for _, signal := range m.IterateSignals() {
		positionTrades, err := m.rebalanceSignal(pm, signal, minTradeThreshold)
		if err != nil {
			return nil, err
		}

		if len(positionTrades) > 0 {
			m.log.Info().
				Str("pair", signal.Pair.Ticker()).
				Int("trades", len(positionTrades)).
				Msg("Adjusting holdings")
		} else {
			m.log.Debug().
				Str("pair", signal.Pair.Ticker()).
				Msg("No trades generated")
		}

		trades = append(trades, positionTrades...)
	}

	trading.SortForExecution(trades)
	return trades, nil
}

// rebalanceSignal produces the trades for one signal. A signal may
// cause multiple trades, e.g. a flip closes the short and opens a spot
// position.
func (m *Model) rebalanceSignal(pm PositionManager, signal *Signal, minTradeThreshold float64) ([]*trading.TradeIntent, error) {
	var positionTrades []*trading.TradeIntent

	dollarDiff := signal.PositionAdjustUSD
	quantityDiff := signal.PositionAdjustQuantity
	value := signal.PositionTarget

	// Record the position profit as of cycle start so the model
	// snapshot shows the profitability of the signal's position.
	var currentPosition *portfolio.Position
	if signal.OldPair != nil {
		currentPosition = pm.GetCurrentPositionForPair(signal.OldPair)
		if currentPosition != nil {
			signal.ProfitBeforeTrades = currentPosition.TotalProfitUSD()
			signal.ProfitBeforeTradesPct = currentPosition.TotalProfitPercent()
		}
	}

	m.log.Info().
		Str("pair", signal.Pair.Ticker()).
		Str("trading_as", signal.SyntheticPair.Ticker()).
		Float64("old_weight", signal.OldWeight).
		Float64("new_weight", signal.NormalisedWeight).
		Float64("size_diff_usd", dollarDiff).
		Msg("Rebalancing")

	if math.Abs(dollarDiff) < minTradeThreshold && !signal.IsFlipping() {
		// The diff is so small we do not care about it
		m.log.Info().
			Float64("diff", dollarDiff).
			Float64("value", value).
			Float64("threshold", minTradeThreshold).
			Msg("Rebalance delta below trade threshold, skipping")
		signal.PositionAdjustIgnored = true
		return nil, nil
	}

	if signal.NormalisedWeight < m.ClosePositionWeightEpsilon {
		// Signal too weak, get rid of any open position.
		// Explicit close avoids rounding issues.
		if currentPosition != nil {
			closeTrades, err := pm.ClosePosition(
				currentPosition,
				fmt.Sprintf("Closing position, signal weight below close threshold: %s", signal),
			)
			if err != nil {
				return nil, err
			}
			positionTrades = append(positionTrades, closeTrades...)
		}
		return positionTrades, nil
	}

	if signal.IsFlipping() {
		// Direction reverses, so close the old position first
		m.log.Info().
			Str("pair", signal.Pair.Ticker()).
			Str("flip", signal.FlipLabel()).
			Float64("signal", signal.Alpha).
			Msg("Signal flipping direction")

		if oldPosition := pm.GetCurrentPositionForPair(signal.OldPair); oldPosition != nil {
			closeTrades, err := pm.ClosePosition(
				oldPosition,
				fmt.Sprintf("Closing because switching between long/short: %s", signal),
			)
			if err != nil {
				return nil, err
			}
			positionTrades = append(positionTrades, closeTrades...)
		}
	}

	risk := trading.RiskParameters{
		StopLoss:         signal.StopLoss,
		TakeProfit:       signal.TakeProfit,
		TrailingStopLoss: signal.TrailingStopLoss,
	}

	switch {
	case signal.Alpha < 0:
		// A shorting signal: open a new short or adjust the existing one
		if signal.Leverage == nil {
			return nil, fmt.Errorf("%w: %s", ErrLeverageRequired, signal)
		}

		if signal.IsFlipping() || signal.IsNew() {
			// Direction just changed, so size at the full target
			// instead of an incremental adjust
			openTrades, err := pm.OpenShort(
				signal.Pair,
				value,
				*signal.Leverage,
				risk,
				fmt.Sprintf("Rebalance opening a new short: %s", signal),
			)
			if err != nil {
				return nil, err
			}
			positionTrades = append(positionTrades, openTrades...)
		} else {
			adjustTrades, err := pm.AdjustShort(
				currentPosition,
				value,
				fmt.Sprintf("Rebalance existing short to value %.2f: %s", value, signal),
			)
			if err != nil {
				return nil, err
			}
			positionTrades = append(positionTrades, adjustTrades...)
		}

	case signal.Leverage == nil:
		// A spot signal: increase or decrease the position towards the
		// target, opening a new position if needed
		adjustTrades, err := pm.AdjustPosition(
			signal.SyntheticPair,
			dollarDiff,
			quantityDiff,
			signal.NormalisedWeight,
			risk,
			m.OverrideStopLoss,
			fmt.Sprintf("Rebalance: %s", signal),
		)
		if err != nil {
			return nil, err
		}
		positionTrades = append(positionTrades, adjustTrades...)

	default:
		return nil, fmt.Errorf("%w: leverage %.2f, %s: %s", ErrLeveragedLongUnsupported, *signal.Leverage, signal.FlipLabel(), signal)
	}

	if len(positionTrades) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRebalanceTrades, signal)
	}

	// Connect the trading signal to its position for downstream audit
	first := positionTrades[0]
	if first.PositionID == 0 {
		return nil, fmt.Errorf("%w: trade %s carries no position id", ErrNoRebalanceTrades, first.ShortLabel())
	}
	signal.PositionID = first.PositionID

	return positionTrades, nil
}
