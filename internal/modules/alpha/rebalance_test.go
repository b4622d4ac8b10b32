package alpha

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/alpha-trader/internal/modules/portfolio"
	"github.com/aristath/alpha-trader/internal/modules/trading"
)

func TestGenerateRebalanceTrades_FreshTwoAssetPortfolio(t *testing.T) {
	m := newTestModel(t)
	a := spotPair(t, 1, "WETH")
	b := spotPair(t, 2, "WBTC")
	bShort := shortPairFor(t, 12, b)

	require.NoError(t, m.SetSignal(a, 1.0, SignalOptions{StopLoss: ptr(0.95)}))
	require.NoError(t, m.SetSignal(b, -1.0, SignalOptions{Leverage: ptr(2.0)}))

	m.AssignWeights(WeightBy1SlashN)
	require.NoError(t, m.SelectTopSignals(2, 0))
	m.NormaliseWeights()

	book := portfolio.NewBook(1000)
	require.NoError(t, m.UpdateOldWeights(book))

	resolver := newFakeResolver()
	resolver.addShort(b, bShort)

	pm := newFakePM()
	require.NoError(t, m.CalculateTargetPositions(pm, resolver, 1000))

	trades, err := m.GenerateRebalanceTrades(pm, DefaultMinTradeThreshold)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// Sells execute before buys so the freed capital is available
	short := trades[0]
	assert.Equal(t, trading.TradeKindOpenShort, short.Kind)
	assert.Equal(t, trading.TradeSideSell, short.Side)
	assert.InDelta(t, 500.0, short.NotionalUSD, 1e-9)
	assert.InDelta(t, 2.0, short.Leverage, 1e-9)

	buy := trades[1]
	assert.Equal(t, trading.TradeKindOpenSpot, buy.Kind)
	assert.Equal(t, trading.TradeSideBuy, buy.Side)
	assert.InDelta(t, 500.0, buy.NotionalUSD, 1e-9)
	require.NotNil(t, buy.Risk.StopLoss)
	assert.InDelta(t, 0.95, *buy.Risk.StopLoss, 1e-9)

	// Signals remember the positions they now control
	assert.NotZero(t, m.GetSignalByPairID(1).PositionID)
	assert.NotZero(t, m.GetSignalByPairID(2).PositionID)
}

func TestGenerateRebalanceTrades_FlipClosesBeforeOpening(t *testing.T) {
	m := newTestModel(t)
	a := spotPair(t, 1, "WETH")
	aShort := shortPairFor(t, 11, a)

	require.NoError(t, m.SetSignal(a, -0.8, SignalOptions{Leverage: ptr(3.0)}))
	m.AssignWeights(WeightBy1SlashN)
	require.NoError(t, m.SelectTopSignals(1, 0))
	m.NormaliseWeights()

	held := &portfolio.Position{ID: 7, Pair: a, Value: 600, CostBasis: 500}
	book := portfolio.NewBook(400)
	book.Add(held)
	require.NoError(t, m.UpdateOldWeights(book))

	resolver := newFakeResolver()
	resolver.addShort(a, aShort)

	pm := newFakePM()
	pm.setPosition(held)
	require.NoError(t, m.CalculateTargetPositions(pm, resolver, 1000))

	trades, err := m.GenerateRebalanceTrades(pm, DefaultMinTradeThreshold)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, []string{"close:WETH-USDC", "open_short:WETH-USDC"}, pm.calls)

	assert.Equal(t, trading.TradeKindClose, trades[0].Kind)
	assert.InDelta(t, 600.0, trades[0].NotionalUSD, 1e-9)

	assert.Equal(t, trading.TradeKindOpenShort, trades[1].Kind)
	assert.InDelta(t, 1000.0, trades[1].NotionalUSD, 1e-9, "flip opens at the full target, not the delta")
	assert.InDelta(t, 3.0, trades[1].Leverage, 1e-9)

	// Profit of the closed position is captured before any trades run
	s := m.GetSignalByPairID(1)
	assert.InDelta(t, 100.0, s.ProfitBeforeTrades, 1e-9)
	assert.InDelta(t, 0.2, s.ProfitBeforeTradesPct, 1e-9)
}

func TestGenerateRebalanceTrades_AdjustsExistingShort(t *testing.T) {
	m := newTestModel(t)
	a := spotPair(t, 1, "WETH")
	aShort := shortPairFor(t, 11, a)

	require.NoError(t, m.SetSignal(a, -1.0, SignalOptions{Leverage: ptr(2.0)}))
	m.AssignWeights(WeightBy1SlashN)
	require.NoError(t, m.SelectTopSignals(1, 0))
	m.NormaliseWeights()

	held := &portfolio.Position{ID: 3, Pair: aShort, Value: 400, Leverage: 2}
	book := portfolio.NewBook(600)
	book.Add(held)
	require.NoError(t, m.UpdateOldWeights(book))

	resolver := newFakeResolver()
	resolver.addShort(a, aShort)

	pm := newFakePM()
	pm.setPosition(held)
	require.NoError(t, m.CalculateTargetPositions(pm, resolver, 1000))

	trades, err := m.GenerateRebalanceTrades(pm, DefaultMinTradeThreshold)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	assert.Equal(t, []string{"adjust_short:WETH-USDC short"}, pm.calls)
	assert.Equal(t, trading.TradeKindAdjustShort, trades[0].Kind)
	assert.InDelta(t, 600.0, trades[0].NotionalUSD, 1e-9, "short grows from 400 to the 1000 target")
	assert.Equal(t, int64(3), m.GetSignalByPairID(1).PositionID)
}

func TestGenerateRebalanceTrades_DustDeltaIgnored(t *testing.T) {
	m := newTestModel(t)
	a := spotPair(t, 1, "WETH")

	require.NoError(t, m.SetSignal(a, 1.0, SignalOptions{}))
	m.AssignWeights(WeightBy1SlashN)
	require.NoError(t, m.SelectTopSignals(1, 0))
	m.NormaliseWeights()

	held := &portfolio.Position{ID: 1, Pair: a, Value: 995}
	book := portfolio.NewBook(5)
	book.Add(held)
	require.NoError(t, m.UpdateOldWeights(book))

	pm := newFakePM()
	pm.setPosition(held)
	require.NoError(t, m.CalculateTargetPositions(pm, newFakeResolver(), 1000))

	trades, err := m.GenerateRebalanceTrades(pm, DefaultMinTradeThreshold)
	require.NoError(t, err)
	assert.Empty(t, trades, "a 5 USD delta is under the 10 USD threshold")
	assert.Empty(t, pm.calls)

	s := m.GetSignalByPairID(1)
	assert.True(t, s.PositionAdjustIgnored)
	assert.False(t, s.HasTrades())
	assert.InDelta(t, 5.0, s.PositionAdjustUSD, 1e-9, "computed delta is retained for audit")
}

func TestGenerateRebalanceTrades_EpsilonForcesClose(t *testing.T) {
	m := newTestModel(t)
	a := spotPair(t, 1, "WETH")
	b := spotPair(t, 2, "WBTC")

	require.NoError(t, m.SetSignal(a, 0.997, SignalOptions{}))
	require.NoError(t, m.SetSignal(b, 0.003, SignalOptions{}))
	m.AssignWeights(WeightPassthrough)
	require.NoError(t, m.SelectTopSignals(2, 0))
	m.NormaliseWeights()

	heldB := &portfolio.Position{ID: 9, Pair: b, Value: 50}
	book := portfolio.NewBook(950)
	book.Add(heldB)
	require.NoError(t, m.UpdateOldWeights(book))

	pm := newFakePM()
	pm.setPosition(heldB)
	pm.setPrice(b, 1)
	require.NoError(t, m.CalculateTargetPositions(pm, newFakeResolver(), 1000))

	sb := m.GetSignalByPairID(2)
	require.InDelta(t, 0.003, sb.NormalisedWeight, 1e-9)

	trades, err := m.GenerateRebalanceTrades(pm, DefaultMinTradeThreshold)
	require.NoError(t, err)

	var closeTrade *trading.TradeIntent
	for _, trade := range trades {
		if trade.Kind == trading.TradeKindClose {
			closeTrade = trade
		}
	}
	require.NotNil(t, closeTrade, "weight under the close epsilon forces a full close")
	assert.InDelta(t, 50.0, closeTrade.NotionalUSD, 1e-9)
	assert.Nil(t, pm.GetCurrentPositionForPair(b))

	// The epsilon close path does not bind the signal to a position
	assert.Zero(t, sb.PositionID)
}

func TestGenerateRebalanceTrades_EpsilonWithoutPosition(t *testing.T) {
	m := newTestModel(t)
	a := spotPair(t, 1, "WETH")
	b := spotPair(t, 2, "WBTC")

	require.NoError(t, m.SetSignal(a, 0.997, SignalOptions{}))
	require.NoError(t, m.SetSignal(b, 0.003, SignalOptions{}))
	m.AssignWeights(WeightPassthrough)
	require.NoError(t, m.SelectTopSignals(2, 0))
	m.NormaliseWeights()

	// B was never held, nothing to close. Raise B's adjust above the
	// trade threshold so the epsilon branch is what suppresses it.
	book := portfolio.NewBook(10000)
	require.NoError(t, m.UpdateOldWeights(book))

	pm := newFakePM()
	require.NoError(t, m.CalculateTargetPositions(pm, newFakeResolver(), 10000))

	trades, err := m.GenerateRebalanceTrades(pm, DefaultMinTradeThreshold)
	require.NoError(t, err, "an empty epsilon close is not an internal consistency error")

	for _, trade := range trades {
		assert.NotEqual(t, "WBTC-USDC", trade.Pair.Ticker())
	}
}

func TestGenerateRebalanceTrades_ClosesDroppedAsset(t *testing.T) {
	m := newTestModel(t)
	a := spotPair(t, 1, "WETH")
	b := spotPair(t, 2, "WBTC")

	// Only A has a signal this cycle; B is held from the previous cycle
	require.NoError(t, m.SetSignal(a, 1.0, SignalOptions{}))
	m.AssignWeights(WeightBy1SlashN)
	require.NoError(t, m.SelectTopSignals(5, 0))
	m.NormaliseWeights()

	heldA := &portfolio.Position{ID: 1, Pair: a, Value: 500}
	heldB := &portfolio.Position{ID: 2, Pair: b, Value: 500}
	book := portfolio.NewBook(0)
	book.Add(heldA)
	book.Add(heldB)
	require.NoError(t, m.UpdateOldWeights(book))

	pm := newFakePM()
	pm.setPosition(heldA)
	pm.setPosition(heldB)
	require.NoError(t, m.CalculateTargetPositions(pm, newFakeResolver(), 1000))

	trades, err := m.GenerateRebalanceTrades(pm, DefaultMinTradeThreshold)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, trading.TradeKindClose, trades[0].Kind)
	assert.Equal(t, "WBTC-USDC", trades[0].Pair.Ticker())
	assert.Equal(t, trading.TradeKindAdjustSpot, trades[1].Kind)
	assert.Equal(t, "WETH-USDC", trades[1].Pair.Ticker())
	assert.InDelta(t, 500.0, trades[1].NotionalUSD, 1e-9, "A grows from 500 to the full equity")
}

func TestGenerateRebalanceTrades_LeveragedLongFails(t *testing.T) {
	m := newTestModel(t)
	a := spotPair(t, 1, "WETH")

	require.NoError(t, m.SetSignal(a, 0.8, SignalOptions{Leverage: ptr(2.0)}))
	m.AssignWeights(WeightBy1SlashN)
	require.NoError(t, m.SelectTopSignals(1, 0))
	m.NormaliseWeights()
	require.NoError(t, m.UpdateOldWeights(portfolio.NewBook(1000)))

	pm := newFakePM()
	require.NoError(t, m.CalculateTargetPositions(pm, newFakeResolver(), 1000))

	_, err := m.GenerateRebalanceTrades(pm, DefaultMinTradeThreshold)
	assert.True(t, errors.Is(err, ErrLeveragedLongUnsupported))
}

func TestGenerateRebalanceTrades_SellsSortedFirst(t *testing.T) {
	m := newTestModel(t)
	a := spotPair(t, 1, "A")
	b := spotPair(t, 2, "B")
	c := spotPair(t, 3, "C")

	require.NoError(t, m.SetSignal(a, 0.5, SignalOptions{}))
	require.NoError(t, m.SetSignal(b, 0.3, SignalOptions{}))
	require.NoError(t, m.SetSignal(c, 0.2, SignalOptions{}))
	m.AssignWeights(WeightPassthrough)
	require.NoError(t, m.SelectTopSignals(3, 0))
	m.NormaliseWeights()

	// C is heavily overweight and must shrink while A and B grow
	heldC := &portfolio.Position{ID: 1, Pair: c, Value: 800}
	book := portfolio.NewBook(200)
	book.Add(heldC)
	require.NoError(t, m.UpdateOldWeights(book))

	pm := newFakePM()
	pm.setPosition(heldC)
	pm.setPrice(c, 2)
	require.NoError(t, m.CalculateTargetPositions(pm, newFakeResolver(), 1000))

	trades, err := m.GenerateRebalanceTrades(pm, DefaultMinTradeThreshold)
	require.NoError(t, err)
	require.Len(t, trades, 3)

	assert.Equal(t, trading.TradeSideSell, trades[0].Side, "the shrink frees capital first")
	assert.Equal(t, "C-USDC", trades[0].Pair.Ticker())
	assert.InDelta(t, 600.0, trades[0].NotionalUSD, 1e-9)
	assert.InDelta(t, -300.0, trades[0].Quantity, 1e-9, "units at 2 USD per unit")

	assert.Equal(t, trading.TradeSideBuy, trades[1].Side)
	assert.Equal(t, trading.TradeSideBuy, trades[2].Side)
}
