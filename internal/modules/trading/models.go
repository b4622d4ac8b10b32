package trading

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/alpha-trader/internal/domain"
)

// TradeSide represents the trade direction (BUY or SELL)
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// IsValid checks if the trade side is valid
func (ts TradeSide) IsValid() bool {
	return ts == TradeSideBuy || ts == TradeSideSell
}

// IsBuy returns true if this is a BUY trade
func (ts TradeSide) IsBuy() bool {
	return ts == TradeSideBuy
}

// IsSell returns true if this is a SELL trade
func (ts TradeSide) IsSell() bool {
	return ts == TradeSideSell
}

// TradeSideFromString creates TradeSide from string (case-insensitive)
func TradeSideFromString(value string) (TradeSide, error) {
	switch strings.ToUpper(value) {
	case "BUY":
		return TradeSideBuy, nil
	case "SELL":
		return TradeSideSell, nil
	default:
		return "", fmt.Errorf("invalid trade side: %q", value)
	}
}

// TradeKind tells what kind of position operation an intent performs
type TradeKind string

const (
	TradeKindOpenSpot    TradeKind = "open_spot"
	TradeKindAdjustSpot  TradeKind = "adjust_spot"
	TradeKindOpenShort   TradeKind = "open_short"
	TradeKindAdjustShort TradeKind = "adjust_short"
	TradeKindClose       TradeKind = "close"
)

// RiskParameters carries the optional risk triggers attached to a trade.
//
// Values are fractions over the entry price: 0.98 means a 2% stop loss,
// 1.02 a 2% take profit. Nil disables the trigger.
type RiskParameters struct {
	StopLoss         *float64 `json:"stop_loss,omitempty"`
	TakeProfit       *float64 `json:"take_profit,omitempty"`
	TrailingStopLoss *float64 `json:"trailing_stop_loss,omitempty"`
}

// TradeIntent is one rebalancing trade ready for submission to the
// execution layer.
type TradeIntent struct {
	PositionID int64                         `json:"position_id"`
	Pair       *domain.TradingPairIdentifier `json:"pair"`
	Kind       TradeKind                     `json:"kind"`
	Side       TradeSide                     `json:"side"`

	// Notional USD amount of the trade, always positive
	NotionalUSD float64 `json:"notional_usd"`

	// Asset units to trade when known, signed
	Quantity float64 `json:"quantity,omitempty"`

	Leverage float64        `json:"leverage,omitempty"`
	Risk     RiskParameters `json:"risk,omitempty"`

	// Target portfolio weight this trade drives towards
	TargetWeight float64 `json:"target_weight,omitempty"`

	Note string `json:"note,omitempty"`
}

// ShortLabel returns a compact human readable description of the trade
func (t *TradeIntent) ShortLabel() string {
	return fmt.Sprintf("%s %s %s $%.2f", t.Side, t.Kind, t.Pair.Ticker(), t.NotionalUSD)
}

// ExecutionSortKey returns the total-order key used to sequence trades
// for execution. Closes and sells come before opens and buys so that
// capital freed by sells is available before buys are attempted.
func (t *TradeIntent) ExecutionSortKey() int {
	if t.Kind == TradeKindClose || t.Side.IsSell() {
		return 0
	}
	return 1
}

// SortForExecution orders trades in place: sells first, then buys,
// stable within each phase.
func SortForExecution(trades []*TradeIntent) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ExecutionSortKey() < trades[j].ExecutionSortKey()
	})
}
