package domain

import (
	"fmt"
	"strings"
)

// PairKind tells how a trading pair expresses a position
type PairKind string

const (
	// PairKindSpot is a plain spot market pair
	PairKindSpot PairKind = "spot"
	// PairKindShort is a derived short-market instrument over a spot underlying
	PairKindShort PairKind = "short"
)

// AssetIdentifier identifies a blockchain asset for trade execution.
//
// Internal ids may be unstable across deployments, so assets are
// referred to by their contract addresses once a strategy decision
// moves towards execution.
type AssetIdentifier struct {
	ChainID     int    `json:"chain_id"`
	Address     string `json:"address"`
	TokenSymbol string `json:"token_symbol"`
	Decimals    int    `json:"decimals,omitempty"`
	InternalID  int64  `json:"internal_id,omitempty"`
}

// NewAssetIdentifier creates a validated asset identifier
func NewAssetIdentifier(chainID int, address, tokenSymbol string, decimals int) (AssetIdentifier, error) {
	if !strings.HasPrefix(address, "0x") {
		return AssetIdentifier{}, fmt.Errorf("asset address must be 0x-prefixed, got %q", address)
	}
	if tokenSymbol == "" {
		return AssetIdentifier{}, fmt.Errorf("asset token symbol cannot be empty")
	}
	return AssetIdentifier{
		ChainID:     chainID,
		Address:     address,
		TokenSymbol: tokenSymbol,
		Decimals:    decimals,
	}, nil
}

// Identifier returns the canonical identity of the asset.
// Addresses are lowercased, not checksummed.
func (a AssetIdentifier) Identifier() string {
	return strings.ToLower(a.Address)
}

func (a AssetIdentifier) String() string {
	return fmt.Sprintf("<%s at %s>", a.TokenSymbol, a.Address)
}

// TradingPairIdentifier identifies a tradable instrument.
//
// Spot pairs stand on their own. Short pairs are derived instruments
// whose Underlying points back at the spot pair that prices them.
type TradingPairIdentifier struct {
	Base        AssetIdentifier `json:"base"`
	Quote       AssetIdentifier `json:"quote"`
	PoolAddress string          `json:"pool_address"`
	InternalID  int64           `json:"internal_id"`
	Kind        PairKind        `json:"kind"`

	// Set only for short pairs
	Underlying *TradingPairIdentifier `json:"underlying,omitempty"`
}

// NewSpotPair creates a spot trading pair
func NewSpotPair(internalID int64, base, quote AssetIdentifier, poolAddress string) (*TradingPairIdentifier, error) {
	if !strings.HasPrefix(poolAddress, "0x") {
		return nil, fmt.Errorf("pool address must be 0x-prefixed, got %q", poolAddress)
	}
	return &TradingPairIdentifier{
		Base:        base,
		Quote:       quote,
		PoolAddress: poolAddress,
		InternalID:  internalID,
		Kind:        PairKindSpot,
	}, nil
}

// NewShortPair creates a short-market instrument over a spot underlying
func NewShortPair(internalID int64, underlying *TradingPairIdentifier, poolAddress string) (*TradingPairIdentifier, error) {
	if underlying == nil || !underlying.IsSpot() {
		return nil, fmt.Errorf("short pair underlying must be a spot pair, got %v", underlying)
	}
	if !strings.HasPrefix(poolAddress, "0x") {
		return nil, fmt.Errorf("pool address must be 0x-prefixed, got %q", poolAddress)
	}
	return &TradingPairIdentifier{
		Base:        underlying.Base,
		Quote:       underlying.Quote,
		PoolAddress: poolAddress,
		InternalID:  internalID,
		Kind:        PairKindShort,
		Underlying:  underlying,
	}, nil
}

// IsSpot returns true for plain spot pairs
func (p *TradingPairIdentifier) IsSpot() bool {
	return p.Kind == PairKindSpot
}

// IsShort returns true for derived short-market instruments
func (p *TradingPairIdentifier) IsShort() bool {
	return p.Kind == PairKindShort
}

// Identifier returns the canonical identity of the instrument.
// The pool contract address uniquely identifies trading positions.
func (p *TradingPairIdentifier) Identifier() string {
	return strings.ToLower(p.PoolAddress)
}

// Ticker returns a human readable pair label, e.g. "WETH-USDC"
func (p *TradingPairIdentifier) Ticker() string {
	if p.IsShort() {
		return fmt.Sprintf("%s-%s short", p.Base.TokenSymbol, p.Quote.TokenSymbol)
	}
	return fmt.Sprintf("%s-%s", p.Base.TokenSymbol, p.Quote.TokenSymbol)
}

// PricingPair returns the spot pair that prices this instrument.
// For spot pairs this is the pair itself.
func (p *TradingPairIdentifier) PricingPair() *TradingPairIdentifier {
	if p.IsShort() && p.Underlying != nil {
		return p.Underlying
	}
	return p
}

func (p *TradingPairIdentifier) String() string {
	return fmt.Sprintf("<Pair %s at %s>", p.Ticker(), p.PoolAddress)
}
