package universe

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aristath/alpha-trader/internal/domain"
)

// assetSpec describes one asset in a universe file
type assetSpec struct {
	ChainID  int    `yaml:"chain_id"`
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
}

// pairSpec describes one tradable spot pair in a universe file,
// optionally with a derived short market
type pairSpec struct {
	InternalID  int64     `yaml:"internal_id"`
	Base        assetSpec `yaml:"base"`
	Quote       assetSpec `yaml:"quote"`
	PoolAddress string    `yaml:"pool_address"`

	ShortMarket *struct {
		InternalID  int64  `yaml:"internal_id"`
		PoolAddress string `yaml:"pool_address"`
	} `yaml:"short_market,omitempty"`
}

type universeFile struct {
	Pairs []pairSpec `yaml:"pairs"`
}

// LoadFromYAML builds a trading universe from a static YAML definition.
//
// Used by backtests and tests. Live deployments populate the universe
// from the market data layer instead.
func LoadFromYAML(path string, log zerolog.Logger) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file %s: %w", path, err)
	}

	var file universeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse universe file %s: %w", path, err)
	}

	u := New(log)
	for _, spec := range file.Pairs {
		base, err := domain.NewAssetIdentifier(spec.Base.ChainID, spec.Base.Address, spec.Base.Symbol, spec.Base.Decimals)
		if err != nil {
			return nil, fmt.Errorf("pair %d base: %w", spec.InternalID, err)
		}
		quote, err := domain.NewAssetIdentifier(spec.Quote.ChainID, spec.Quote.Address, spec.Quote.Symbol, spec.Quote.Decimals)
		if err != nil {
			return nil, fmt.Errorf("pair %d quote: %w", spec.InternalID, err)
		}
		spot, err := domain.NewSpotPair(spec.InternalID, base, quote, spec.PoolAddress)
		if err != nil {
			return nil, fmt.Errorf("pair %d: %w", spec.InternalID, err)
		}
		if err := u.AddSpotPair(spot); err != nil {
			return nil, err
		}

		if spec.ShortMarket != nil {
			short, err := domain.NewShortPair(spec.ShortMarket.InternalID, spot, spec.ShortMarket.PoolAddress)
			if err != nil {
				return nil, fmt.Errorf("pair %d short market: %w", spec.InternalID, err)
			}
			if err := u.AddShortingPair(short); err != nil {
				return nil, err
			}
		}
	}

	log.Info().
		Int("pairs", len(file.Pairs)).
		Str("path", path).
		Msg("Universe loaded")

	return u, nil
}
