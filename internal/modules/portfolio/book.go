package portfolio

import (
	"sort"

	"github.com/aristath/alpha-trader/internal/domain"
)

// Book is an in-memory portfolio used by backtests and the paper
// position manager. Implements View.
type Book struct {
	positions map[int64]*Position // by position id
	cash      float64
}

// NewBook creates an empty portfolio book with starting cash
func NewBook(cash float64) *Book {
	return &Book{
		positions: make(map[int64]*Position),
		cash:      cash,
	}
}

// OpenPositions returns open positions sorted by id
func (b *Book) OpenPositions() []*Position {
	positions := make([]*Position, 0, len(b.positions))
	for _, p := range b.positions {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	return positions
}

// EquityAndLoanNAV returns cash plus the value of all open positions
func (b *Book) EquityAndLoanNAV() float64 {
	total := b.cash
	for _, p := range b.positions {
		total += p.Value
	}
	return total
}

// Cash returns the free cash balance
func (b *Book) Cash() float64 {
	return b.cash
}

// AdjustCash moves cash in or out of the book
func (b *Book) AdjustCash(delta float64) {
	b.cash += delta
}

// Add records a new open position
func (b *Book) Add(p *Position) {
	b.positions[p.ID] = p
}

// Remove deletes a closed position
func (b *Book) Remove(id int64) {
	delete(b.positions, id)
}

// GetByID returns a position by id, or nil
func (b *Book) GetByID(id int64) *Position {
	return b.positions[id]
}

// GetByPair returns the open position trading the given instrument, or nil.
// Instruments are matched by their canonical identifier.
func (b *Book) GetByPair(pair *domain.TradingPairIdentifier) *Position {
	if pair == nil {
		return nil
	}
	for _, p := range b.OpenPositions() {
		if p.Pair.Identifier() == pair.Identifier() {
			return p
		}
	}
	return nil
}
