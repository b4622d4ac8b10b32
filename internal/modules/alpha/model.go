package alpha

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/alpha-trader/internal/domain"
)

// SchemaVersion is the version of the serialised cycle snapshot schema.
// Bump when Signal or Model fields change shape.
const SchemaVersion = 1

// DefaultClosePositionWeightEpsilon force-closes positions whose
// normalised weight falls under 0.5%.
const DefaultClosePositionWeightEpsilon = 0.005

var (
	// ErrNotSpotPair is returned when a derived instrument is passed
	// where a spot pair is required
	ErrNotSpotPair = errors.New("signals are tracked by their spot pairs")

	// ErrLeverageRequired is returned for a short signal without a
	// positive leverage multiplier
	ErrLeverageRequired = errors.New("leverage must be set for a short signal")

	// ErrWeightsNotAssigned is returned when selection runs before any
	// weighting method has been applied
	ErrWeightsNotAssigned = errors.New("weights must be assigned before selecting top signals")

	// ErrLeveragedLongUnsupported is returned when a positive signal
	// carries a leverage multiplier
	ErrLeveragedLongUnsupported = errors.New("leveraged long is not supported")

	// ErrNoRebalanceTrades signals an internal consistency defect: a
	// rebalance branch that must produce trades produced none
	ErrNoRebalanceTrades = errors.New("rebalance branch produced no trades")
)

// Model captures the alpha weighting state for one strategy cycle.
//
// Each strategy cycle creates its own Model, populates it, consumes it
// into rebalancing trades and discards it. Instances are never shared
// across cycles; previous-cycle state is read back from the portfolio,
// not from the previous model.
//
// The model is serialisable as JSON so the calculations of every cycle
// can be stored and audited later.
type Model struct {
	// Timestamp of the strategy cycle this model was calculated for
	Timestamp time.Time `json:"timestamp"`

	// All signals registered this cycle, keyed by pair internal id
	RawSignals map[int64]*Signal `json:"raw_signals"`

	// The selected subset that will be rebalanced. May contain
	// zero-signal records for held assets with no new signal, so they
	// can still be closed.
	Signals map[int64]*Signal `json:"signals"`

	// How much USD we can afford to invest this cycle
	InvestableEquity float64 `json:"investable_equity"`

	// Positions whose normalised weight falls below this are always
	// explicitly closed, cleaning up dust
	ClosePositionWeightEpsilon float64 `json:"close_position_weight_epsilon"`

	// Allow rebalancing to override a stop loss set earlier on the position
	OverrideStopLoss bool `json:"override_stop_loss,omitempty"`

	weighted bool
	log      zerolog.Logger
}

// NewModel creates a fresh model for one strategy cycle
func NewModel(timestamp time.Time, log zerolog.Logger) *Model {
	return &Model{
		Timestamp:                  timestamp,
		RawSignals:                 make(map[int64]*Signal),
		Signals:                    make(map[int64]*Signal),
		ClosePositionWeightEpsilon: DefaultClosePositionWeightEpsilon,
		log:                        log.With().Str("service", "alpha").Logger(),
	}
}

// SignalOptions carries the optional parameters of SetSignal
type SignalOptions struct {
	StopLoss         *float64
	TakeProfit       *float64
	TrailingStopLoss *float64
	Leverage         *float64
}

// SetSignal sets the alpha value for a trading pair.
//
// The pair must be the underlying spot pair. A zero alpha removes any
// existing signal for the pair, e.g. after a risk assessment discards
// it. Calling again for the same pair overwrites the earlier value.
// Negative alpha requires a positive leverage multiplier.
func (m *Model) SetSignal(pair *domain.TradingPairIdentifier, alpha float64, opts SignalOptions) error {
	if pair == nil || !pair.IsSpot() {
		return fmt.Errorf("%w: got %v", ErrNotSpotPair, pair)
	}

	if alpha < 0 {
		if opts.Leverage == nil || *opts.Leverage <= 0 {
			return fmt.Errorf("%w: signal %f for pair %s", ErrLeverageRequired, alpha, pair.Ticker())
		}
	}
	if opts.Leverage != nil && *opts.Leverage <= 0 {
		return fmt.Errorf("leverage must be positive, got %f for pair %s", *opts.Leverage, pair.Ticker())
	}

	if alpha == 0 {
		// Drop the pair so it gets no further computations
		delete(m.RawSignals, pair.InternalID)
		return nil
	}

	m.RawSignals[pair.InternalID] = &Signal{
		Pair:             pair,
		Alpha:            alpha,
		StopLoss:         opts.StopLoss,
		TakeProfit:       opts.TakeProfit,
		TrailingStopLoss: opts.TrailingStopLoss,
		Leverage:         opts.Leverage,
	}
	return nil
}

// GetSignalByPairID returns the selected signal for a pair id, or nil
func (m *Model) GetSignalByPairID(pairID int64) *Signal {
	return m.Signals[pairID]
}

// GetSignalByPair returns the selected signal for a pair, or nil
func (m *Model) GetSignalByPair(pair *domain.TradingPairIdentifier) *Signal {
	if pair == nil {
		return nil
	}
	return m.GetSignalByPairID(pair.InternalID)
}

// IterateSignals returns all selected signals in deterministic order
// (ascending pair internal id).
func (m *Model) IterateSignals() []*Signal {
	signals := make([]*Signal, 0, len(m.Signals))
	for _, s := range m.Signals {
		signals = append(signals, s)
	}
	sort.Slice(signals, func(i, j int) bool {
		return signals[i].Pair.InternalID < signals[j].Pair.InternalID
	})
	return signals
}

// GetSignalsSortedByWeight returns the selected signals, highest raw
// weight first.
func (m *Model) GetSignalsSortedByWeight() []*Signal {
	signals := m.IterateSignals()
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].RawWeight > signals[j].RawWeight
	})
	return signals
}

// AssignWeights converts raw signals to raw portfolio weights using the
// given weighting method. Must be called before SelectTopSignals so
// selection has meaningful weights to rank by.
func (m *Model) AssignWeights(method WeightingMethod) {
	rawSignals := make(map[int64]float64, len(m.RawSignals))
	for pairID, s := range m.RawSignals {
		rawSignals[pairID] = s.Alpha
	}

	weights := method(rawSignals)
	for pairID, rawWeight := range weights {
		if s, ok := m.RawSignals[pairID]; ok {
			s.RawWeight = rawWeight
		}
	}
	m.weighted = true
}

// SelectTopSignals chooses the top signals for the rebalance.
//
// Pairs whose |signal| is below the threshold (inclusive cutoff) are
// filtered out, then the count highest raw weights win. Ties on raw
// weight break deterministically by |signal| and then pair id, so the
// chosen subset never depends on map iteration order.
//
// AssignWeights must run first; ranking unweighted signals would make
// the selection arbitrary.
func (m *Model) SelectTopSignals(count int, threshold float64) error {
	if !m.weighted {
		return ErrWeightsNotAssigned
	}

	filtered := make([]*Signal, 0, len(m.RawSignals))
	for _, s := range m.RawSignals {
		if math.Abs(s.Alpha) >= threshold {
			filtered = append(filtered, s)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].RawWeight != filtered[j].RawWeight {
			return filtered[i].RawWeight > filtered[j].RawWeight
		}
		if math.Abs(filtered[i].Alpha) != math.Abs(filtered[j].Alpha) {
			return math.Abs(filtered[i].Alpha) > math.Abs(filtered[j].Alpha)
		}
		return filtered[i].Pair.InternalID < filtered[j].Pair.InternalID
	})

	if count < len(filtered) {
		filtered = filtered[:count]
	}

	m.Signals = make(map[int64]*Signal, len(filtered))
	for _, s := range filtered {
		m.Signals[s.Pair.InternalID] = s
	}
	return nil
}

// NormaliseWeights rescales the raw weights of the selected set so they
// sum to one, or stay all zero when nothing is selected.
func (m *Model) NormaliseWeights() {
	rawWeights := make(map[int64]float64, len(m.Signals))
	for pairID, s := range m.Signals {
		rawWeights[pairID] = s.RawWeight
	}
	normalised := NormaliseWeights(rawWeights)
	for pairID, weight := range normalised {
		m.Signals[pairID].NormalisedWeight = weight
	}
}

// SetOldWeight records the previous-cycle allocation of one asset.
//
// If the asset has no signal this cycle a zero-signal record is created
// so the position is still eligible to be closed.
func (m *Model) SetOldWeight(pair *domain.TradingPairIdentifier, oldWeight, oldValue float64, oldSyntheticPair *domain.TradingPairIdentifier) error {
	if pair == nil || !pair.IsSpot() {
		return fmt.Errorf("%w: old weights are tracked by spot pairs, got %v", ErrNotSpotPair, pair)
	}

	if s, ok := m.Signals[pair.InternalID]; ok {
		s.OldWeight = oldWeight
		s.OldValue = oldValue
		s.OldPair = oldSyntheticPair
		return nil
	}

	m.Signals[pair.InternalID] = &Signal{
		Pair:      pair,
		Alpha:     0,
		OldWeight: oldWeight,
		OldValue:  oldValue,
		OldPair:   oldSyntheticPair,
	}
	return nil
}

// UpdateOldWeights merges the previous cycle allocation into the model
// from the currently open positions.
func (m *Model) UpdateOldWeights(view PortfolioView) error {
	total := view.EquityAndLoanNAV()
	if total == 0 {
		return nil
	}
	for _, position := range view.OpenPositions() {
		value := position.Value
		weight := value / total
		if err := m.SetOldWeight(position.Pair.PricingPair(), weight, value, position.Pair); err != nil {
			return err
		}
	}
	return nil
}

// CalculateWeightDiffs tells how much each asset's weight changed
// between cycles. Assets held before but absent from the new set yield
// a diff of minus their old weight (sell all).
func (m *Model) CalculateWeightDiffs() (map[int64]float64, error) {
	newWeights := make(map[int64]float64, len(m.Signals))
	existingWeights := make(map[int64]float64, len(m.Signals))
	for pairID, s := range m.Signals {
		newWeights[pairID] = s.NormalisedWeight
		if s.OldWeight != 0 {
			existingWeights[pairID] = s.OldWeight
		}
	}

	if err := CheckNormalisedWeights(newWeights); err != nil {
		return nil, fmt.Errorf("new weights: %w", err)
	}
	if err := CheckNormalisedWeights(existingWeights); err != nil {
		return nil, fmt.Errorf("existing weights: %w", err)
	}

	diffs := make(map[int64]float64, len(newWeights))
	for pairID, newWeight := range newWeights {
		diffs[pairID] = newWeight - existingWeights[pairID]
	}

	// Refill gaps of old assets missing from the new portfolio
	for pairID, oldWeight := range existingWeights {
		if _, ok := diffs[pairID]; !ok {
			diffs[pairID] = -oldWeight
		}
	}

	return diffs, nil
}

// MapPairForSignal resolves the instrument a signal will actually trade:
// the spot pair itself for long, the short market for short. A zero
// signal maps to the underlying, used only for bookkeeping a position
// about to be closed.
func (m *Model) MapPairForSignal(resolver ShortingPairResolver, s *Signal) (*domain.TradingPairIdentifier, error) {
	if s.Alpha < 0 {
		short, err := resolver.GetShortingPair(s.Pair)
		if err != nil {
			return nil, err
		}
		return short, nil
	}
	return s.Pair, nil
}

// CalculateTargetPositions computes the dollar target and adjust delta
// of every selected signal, and resolves the instrument each signal
// trades with.
//
// A flipping signal is treated as a fresh full-size entry: the old
// position will be closed first, so the adjust is the whole target, not
// target minus old value.
func (m *Model) CalculateTargetPositions(pm PositionManager, resolver ShortingPairResolver, investableEquity float64) error {
	m.InvestableEquity = investableEquity

	for _, s := range m.IterateSignals() {
		s.PositionTarget = s.NormalisedWeight * investableEquity

		synthetic, err := m.MapPairForSignal(resolver, s)
		if err != nil {
			return fmt.Errorf("mapping pair for signal %s: %w", s.Pair.Ticker(), err)
		}
		s.SyntheticPair = synthetic

		if s.IsFlipping() {
			s.PositionAdjustUSD = s.PositionTarget
			continue
		}

		s.PositionAdjustUSD = s.PositionTarget - s.OldValue

		if s.PositionAdjustUSD < 0 {
			// Decreasing by selling the asset. Minor size skew is
			// possible because fees are not included here.
			quantity, err := pm.EstimateAssetQuantity(s.Pair, s.PositionAdjustUSD)
			if err != nil {
				return fmt.Errorf("estimating sell quantity for %s: %w", s.Pair.Ticker(), err)
			}
			s.PositionAdjustQuantity = quantity
		}
	}
	return nil
}
