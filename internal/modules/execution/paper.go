package execution

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/alpha-trader/internal/domain"
	"github.com/aristath/alpha-trader/internal/modules/portfolio"
	"github.com/aristath/alpha-trader/internal/modules/trading"
	"github.com/aristath/alpha-trader/internal/modules/universe"
)

// PaperPositionManager fills position operations against an in-memory
// book at caller-provided prices. It lets the whole signal-to-trade
// pipeline run in tests and backtests with no chain connectivity.
type PaperPositionManager struct {
	book     *portfolio.Book
	universe *universe.Universe
	prices   map[string]float64 // spot pair identifier -> base asset USD price
	nextID   int64
	log      zerolog.Logger
}

// NewPaperPositionManager creates a paper manager over the given book
// and universe
func NewPaperPositionManager(book *portfolio.Book, u *universe.Universe, log zerolog.Logger) *PaperPositionManager {
	return &PaperPositionManager{
		book:     book,
		universe: u,
		prices:   make(map[string]float64),
		nextID:   1,
		log:      log.With().Str("service", "paper_execution").Logger(),
	}
}

// Book returns the underlying portfolio book
func (p *PaperPositionManager) Book() *portfolio.Book {
	return p.book
}

// SetPrice sets the USD price of the base asset of a spot pair
func (p *PaperPositionManager) SetPrice(pair *domain.TradingPairIdentifier, price float64) {
	p.prices[pair.PricingPair().Identifier()] = price
}

func (p *PaperPositionManager) price(pair *domain.TradingPairIdentifier) (float64, error) {
	price, ok := p.prices[pair.PricingPair().Identifier()]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no price available for %s", pair.Ticker())
	}
	return price, nil
}

func (p *PaperPositionManager) allocatePositionID() int64 {
	id := p.nextID
	p.nextID++
	return id
}

// GetCurrentPositionForPair returns the open position trading the given
// instrument, or nil
func (p *PaperPositionManager) GetCurrentPositionForPair(pair *domain.TradingPairIdentifier) *portfolio.Position {
	return p.book.GetByPair(pair)
}

// EstimateAssetQuantity converts a dollar amount to asset units at the
// current price, preserving sign
func (p *PaperPositionManager) EstimateAssetQuantity(pair *domain.TradingPairIdentifier, dollarAmount float64) (float64, error) {
	price, err := p.price(pair)
	if err != nil {
		return 0, err
	}
	return dollarAmount / price, nil
}

// ClosePosition fully closes an open position
func (p *PaperPositionManager) ClosePosition(position *portfolio.Position, note string) ([]*trading.TradeIntent, error) {
	if position == nil {
		return nil, fmt.Errorf("cannot close a nil position")
	}
	if p.book.GetByID(position.ID) == nil {
		return nil, fmt.Errorf("position %d is not open", position.ID)
	}

	p.book.Remove(position.ID)
	p.book.AdjustCash(position.Value)

	intent := &trading.TradeIntent{
		PositionID:  position.ID,
		Pair:        position.Pair,
		Kind:        trading.TradeKindClose,
		Side:        trading.TradeSideSell,
		NotionalUSD: position.Value,
		Quantity:    -position.Quantity,
		Note:        note,
	}
	return []*trading.TradeIntent{intent}, nil
}

// OpenShort opens a short position over the spot underlying
func (p *PaperPositionManager) OpenShort(underlying *domain.TradingPairIdentifier, value, leverage float64, risk trading.RiskParameters, note string) ([]*trading.TradeIntent, error) {
	shortPair, err := p.universe.GetShortingPair(underlying)
	if err != nil {
		return nil, err
	}
	price, err := p.price(underlying)
	if err != nil {
		return nil, err
	}

	position := &portfolio.Position{
		ID:        p.allocatePositionID(),
		Pair:      shortPair,
		Quantity:  -(value * leverage) / price,
		Value:     value,
		CostBasis: value,
		Loan:      value * (leverage - 1),
		Leverage:  leverage,
	}
	p.book.Add(position)
	p.book.AdjustCash(-value)

	intent := &trading.TradeIntent{
		PositionID:  position.ID,
		Pair:        shortPair,
		Kind:        trading.TradeKindOpenShort,
		Side:        trading.TradeSideSell,
		NotionalUSD: value,
		Quantity:    position.Quantity,
		Leverage:    leverage,
		Risk:        risk,
		Note:        note,
	}
	return []*trading.TradeIntent{intent}, nil
}

// AdjustShort moves an existing short position to a new notional value
func (p *PaperPositionManager) AdjustShort(position *portfolio.Position, newValue float64, note string) ([]*trading.TradeIntent, error) {
	if position == nil {
		return nil, fmt.Errorf("cannot adjust a nil short position")
	}
	if !position.Pair.IsShort() {
		return nil, fmt.Errorf("position %d is not a short", position.ID)
	}

	delta := newValue - position.Value
	price, err := p.price(position.Pair)
	if err != nil {
		return nil, err
	}

	side := trading.TradeSideSell // increasing a short sells more
	if delta < 0 {
		side = trading.TradeSideBuy // decreasing buys back
	}

	position.Value = newValue
	position.CostBasis += delta
	position.Quantity -= (delta * position.Leverage) / price
	p.book.AdjustCash(-delta)

	intent := &trading.TradeIntent{
		PositionID:  position.ID,
		Pair:        position.Pair,
		Kind:        trading.TradeKindAdjustShort,
		Side:        side,
		NotionalUSD: abs(delta),
		Leverage:    position.Leverage,
		Note:        note,
	}
	return []*trading.TradeIntent{intent}, nil
}

// AdjustPosition increases or decreases a spot position, opening a new
// one when no position exists for the pair
func (p *PaperPositionManager) AdjustPosition(pair *domain.TradingPairIdentifier, dollarDelta, quantityDelta, targetWeight float64, risk trading.RiskParameters, overrideStopLoss bool, note string) ([]*trading.TradeIntent, error) {
	price, err := p.price(pair)
	if err != nil {
		return nil, err
	}

	position := p.book.GetByPair(pair)
	if position == nil {
		if dollarDelta <= 0 {
			return nil, fmt.Errorf("cannot open %s with non-positive delta %.2f", pair.Ticker(), dollarDelta)
		}
		position = &portfolio.Position{
			ID:        p.allocatePositionID(),
			Pair:      pair,
			Quantity:  dollarDelta / price,
			Value:     dollarDelta,
			CostBasis: dollarDelta,
		}
		p.book.Add(position)
		p.book.AdjustCash(-dollarDelta)

		intent := &trading.TradeIntent{
			PositionID:   position.ID,
			Pair:         pair,
			Kind:         trading.TradeKindOpenSpot,
			Side:         trading.TradeSideBuy,
			NotionalUSD:  dollarDelta,
			Quantity:     position.Quantity,
			Risk:         risk,
			TargetWeight: targetWeight,
			Note:         note,
		}
		return []*trading.TradeIntent{intent}, nil
	}

	side := trading.TradeSideBuy
	quantity := dollarDelta / price
	if dollarDelta < 0 {
		side = trading.TradeSideSell
		if quantityDelta != 0 {
			quantity = quantityDelta
		}
	}

	position.Value += dollarDelta
	position.CostBasis += dollarDelta
	position.Quantity += quantity
	p.book.AdjustCash(-dollarDelta)

	intent := &trading.TradeIntent{
		PositionID:   position.ID,
		Pair:         pair,
		Kind:         trading.TradeKindAdjustSpot,
		Side:         side,
		NotionalUSD:  abs(dollarDelta),
		Quantity:     quantity,
		Risk:         risk,
		TargetWeight: targetWeight,
		Note:         note,
	}
	return []*trading.TradeIntent{intent}, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
