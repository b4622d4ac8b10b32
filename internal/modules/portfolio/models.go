package portfolio

import (
	"time"

	"github.com/aristath/alpha-trader/internal/domain"
)

// Position represents one open trading position
type Position struct {
	ID   int64                         `json:"id"`
	Pair *domain.TradingPairIdentifier `json:"pair"`

	// Asset units held. Negative for shorts.
	Quantity float64 `json:"quantity"`

	// Current USD value of the position
	Value float64 `json:"value"`

	// USD spent to build the position
	CostBasis float64 `json:"cost_basis"`

	// Borrowed capital for leveraged positions
	Loan float64 `json:"loan,omitempty"`

	Leverage float64 `json:"leverage,omitempty"`

	OpenedAt    time.Time `json:"opened_at"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// TotalProfitUSD returns the position profit in dollars
func (p *Position) TotalProfitUSD() float64 {
	return p.Value - p.CostBasis
}

// TotalProfitPercent returns the position profit as a fraction of cost basis
func (p *Position) TotalProfitPercent() float64 {
	if p.CostBasis == 0 {
		return 0
	}
	return (p.Value - p.CostBasis) / p.CostBasis
}

// View is the read side of the portfolio the rebalancing core consumes.
//
// The execution layer owns the portfolio; this core only reads current
// holdings out of it at the start of a cycle.
type View interface {
	// OpenPositions returns all currently open positions
	OpenPositions() []*Position

	// EquityAndLoanNAV returns total equity plus loaned capital in USD
	EquityAndLoanNAV() float64
}
