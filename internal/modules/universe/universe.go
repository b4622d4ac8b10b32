package universe

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/alpha-trader/internal/domain"
)

// ErrNoShortingPair is returned when a spot underlying has no short market
var ErrNoShortingPair = fmt.Errorf("no shorting pair available for underlying")

// Universe holds the tradable instruments known to the strategy.
//
// It answers the one question the rebalancing core needs: which
// short-market instrument expresses a negative signal for a given
// spot underlying.
type Universe struct {
	pairs  map[int64]*domain.TradingPairIdentifier // spot pairs by internal id
	shorts map[int64]*domain.TradingPairIdentifier // spot internal id -> short pair
	log    zerolog.Logger
}

// New creates an empty trading universe
func New(log zerolog.Logger) *Universe {
	return &Universe{
		pairs:  make(map[int64]*domain.TradingPairIdentifier),
		shorts: make(map[int64]*domain.TradingPairIdentifier),
		log:    log.With().Str("service", "universe").Logger(),
	}
}

// AddSpotPair registers a spot pair in the universe
func (u *Universe) AddSpotPair(pair *domain.TradingPairIdentifier) error {
	if pair == nil || !pair.IsSpot() {
		return fmt.Errorf("universe spot registry accepts spot pairs only, got %v", pair)
	}
	u.pairs[pair.InternalID] = pair
	return nil
}

// AddShortingPair registers a short market for a spot underlying
func (u *Universe) AddShortingPair(short *domain.TradingPairIdentifier) error {
	if short == nil || !short.IsShort() {
		return fmt.Errorf("shorting pair must be a short instrument, got %v", short)
	}
	underlying := short.PricingPair()
	if _, ok := u.pairs[underlying.InternalID]; !ok {
		return fmt.Errorf("short market %s references unknown underlying %s", short.Ticker(), underlying.Ticker())
	}
	u.shorts[underlying.InternalID] = short
	return nil
}

// GetPairByID returns a spot pair by its internal id, or nil
func (u *Universe) GetPairByID(internalID int64) *domain.TradingPairIdentifier {
	return u.pairs[internalID]
}

// GetShortingPair resolves the short-market instrument for a spot underlying.
//
// Returns ErrNoShortingPair when the underlying has no short market.
func (u *Universe) GetShortingPair(underlying *domain.TradingPairIdentifier) (*domain.TradingPairIdentifier, error) {
	if underlying == nil || !underlying.IsSpot() {
		return nil, fmt.Errorf("shorting pair lookup requires a spot underlying, got %v", underlying)
	}
	short, ok := u.shorts[underlying.InternalID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoShortingPair, underlying.Ticker())
	}
	return short, nil
}

// SpotPairs returns all registered spot pairs sorted by internal id
func (u *Universe) SpotPairs() []*domain.TradingPairIdentifier {
	pairs := make([]*domain.TradingPairIdentifier, 0, len(u.pairs))
	for _, p := range u.pairs {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].InternalID < pairs[j].InternalID })
	return pairs
}
