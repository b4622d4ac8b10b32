package alpha

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aristath/alpha-trader/internal/domain"
	"github.com/aristath/alpha-trader/internal/modules/portfolio"
	"github.com/aristath/alpha-trader/internal/modules/trading"
)

func addr(n int64) string {
	return fmt.Sprintf("0x%040x", n)
}

func spotPair(t *testing.T, id int64, symbol string) *domain.TradingPairIdentifier {
	t.Helper()
	base, err := domain.NewAssetIdentifier(1, addr(id*10+1), symbol, 18)
	require.NoError(t, err)
	quote, err := domain.NewAssetIdentifier(1, addr(2), "USDC", 6)
	require.NoError(t, err)
	pair, err := domain.NewSpotPair(id, base, quote, addr(id*10+3))
	require.NoError(t, err)
	return pair
}

func shortPairFor(t *testing.T, id int64, underlying *domain.TradingPairIdentifier) *domain.TradingPairIdentifier {
	t.Helper()
	pair, err := domain.NewShortPair(id, underlying, addr(id*10+4))
	require.NoError(t, err)
	return pair
}

// fakeResolver maps spot underlyings to scripted short markets
type fakeResolver struct {
	shorts map[int64]*domain.TradingPairIdentifier
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{shorts: make(map[int64]*domain.TradingPairIdentifier)}
}

func (f *fakeResolver) addShort(underlying, short *domain.TradingPairIdentifier) {
	f.shorts[underlying.InternalID] = short
}

func (f *fakeResolver) GetShortingPair(underlying *domain.TradingPairIdentifier) (*domain.TradingPairIdentifier, error) {
	short, ok := f.shorts[underlying.InternalID]
	if !ok {
		return nil, fmt.Errorf("no shorting pair for %s", underlying.Ticker())
	}
	return short, nil
}

// fakePositionManager scripts position manager behavior and records the
// operations the trade generator asked for
type fakePositionManager struct {
	positions map[string]*portfolio.Position // by pair identifier
	prices    map[string]float64             // by spot pair identifier
	nextID    int64
	calls     []string
}

func newFakePM() *fakePositionManager {
	return &fakePositionManager{
		positions: make(map[string]*portfolio.Position),
		prices:    make(map[string]float64),
		nextID:    100,
	}
}

func (f *fakePositionManager) setPosition(pos *portfolio.Position) {
	f.positions[pos.Pair.Identifier()] = pos
}

func (f *fakePositionManager) setPrice(pair *domain.TradingPairIdentifier, price float64) {
	f.prices[pair.PricingPair().Identifier()] = price
}

func (f *fakePositionManager) priceFor(pair *domain.TradingPairIdentifier) float64 {
	if price, ok := f.prices[pair.PricingPair().Identifier()]; ok {
		return price
	}
	return 1.0
}

func (f *fakePositionManager) GetCurrentPositionForPair(pair *domain.TradingPairIdentifier) *portfolio.Position {
	if pair == nil {
		return nil
	}
	return f.positions[pair.Identifier()]
}

func (f *fakePositionManager) EstimateAssetQuantity(pair *domain.TradingPairIdentifier, dollarAmount float64) (float64, error) {
	return dollarAmount / f.priceFor(pair), nil
}

func (f *fakePositionManager) ClosePosition(position *portfolio.Position, note string) ([]*trading.TradeIntent, error) {
	f.calls = append(f.calls, "close:"+position.Pair.Ticker())
	delete(f.positions, position.Pair.Identifier())
	return []*trading.TradeIntent{{
		PositionID:  position.ID,
		Pair:        position.Pair,
		Kind:        trading.TradeKindClose,
		Side:        trading.TradeSideSell,
		NotionalUSD: position.Value,
		Note:        note,
	}}, nil
}

func (f *fakePositionManager) OpenShort(underlying *domain.TradingPairIdentifier, value, leverage float64, risk trading.RiskParameters, note string) ([]*trading.TradeIntent, error) {
	f.calls = append(f.calls, "open_short:"+underlying.Ticker())
	id := f.nextID
	f.nextID++
	return []*trading.TradeIntent{{
		PositionID:  id,
		Pair:        underlying,
		Kind:        trading.TradeKindOpenShort,
		Side:        trading.TradeSideSell,
		NotionalUSD: value,
		Leverage:    leverage,
		Risk:        risk,
		Note:        note,
	}}, nil
}

func (f *fakePositionManager) AdjustShort(position *portfolio.Position, newValue float64, note string) ([]*trading.TradeIntent, error) {
	f.calls = append(f.calls, "adjust_short:"+position.Pair.Ticker())
	delta := newValue - position.Value
	side := trading.TradeSideSell
	if delta < 0 {
		side = trading.TradeSideBuy
		delta = -delta
	}
	return []*trading.TradeIntent{{
		PositionID:  position.ID,
		Pair:        position.Pair,
		Kind:        trading.TradeKindAdjustShort,
		Side:        side,
		NotionalUSD: delta,
		Leverage:    position.Leverage,
		Note:        note,
	}}, nil
}

func (f *fakePositionManager) AdjustPosition(pair *domain.TradingPairIdentifier, dollarDelta, quantityDelta, targetWeight float64, risk trading.RiskParameters, overrideStopLoss bool, note string) ([]*trading.TradeIntent, error) {
	f.calls = append(f.calls, "adjust_position:"+pair.Ticker())

	kind := trading.TradeKindAdjustSpot
	id := f.nextID
	if existing, ok := f.positions[pair.Identifier()]; ok {
		id = existing.ID
	} else {
		kind = trading.TradeKindOpenSpot
		f.nextID++
	}

	side := trading.TradeSideBuy
	notional := dollarDelta
	if dollarDelta < 0 {
		side = trading.TradeSideSell
		notional = -dollarDelta
	}

	return []*trading.TradeIntent{{
		PositionID:   id,
		Pair:         pair,
		Kind:         kind,
		Side:         side,
		NotionalUSD:  notional,
		Quantity:     quantityDelta,
		Risk:         risk,
		TargetWeight: targetWeight,
		Note:         note,
	}}, nil
}
