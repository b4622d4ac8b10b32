package strategy

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aristath/alpha-trader/internal/config"
	"github.com/aristath/alpha-trader/internal/modules/alpha"
	"github.com/aristath/alpha-trader/internal/modules/audit"
	"github.com/aristath/alpha-trader/internal/modules/execution"
	"github.com/aristath/alpha-trader/internal/modules/universe"
)

// SignalEntry is one row of the cycle signals file: the alpha value of
// one spot pair, with its current price and optional risk triggers.
// Signal generation itself lives outside this service; the file is the
// handoff point.
type SignalEntry struct {
	PairID           int64    `yaml:"pair_id"`
	Alpha            float64  `yaml:"signal"`
	PriceUSD         float64  `yaml:"price_usd"`
	Leverage         *float64 `yaml:"leverage,omitempty"`
	StopLoss         *float64 `yaml:"stop_loss,omitempty"`
	TakeProfit       *float64 `yaml:"take_profit,omitempty"`
	TrailingStopLoss *float64 `yaml:"trailing_stop_loss,omitempty"`
}

type signalsFile struct {
	Signals []SignalEntry `yaml:"signals"`
}

// LoadSignals reads the signal entries for one cycle from a YAML file
func LoadSignals(path string) ([]SignalEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signals file %s: %w", path, err)
	}

	var file signalsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse signals file %s: %w", path, err)
	}

	return file.Signals, nil
}

// Service runs the strategy decision cycle: signals in, weighted
// targets out, trades filled on the paper book, the whole model
// snapshotted for audit.
type Service struct {
	params      config.StrategyParams
	universe    *universe.Universe
	pm          *execution.PaperPositionManager
	store       *audit.Store
	signalsPath string
	log         zerolog.Logger
}

// New creates the strategy cycle service. The audit store may be nil,
// in which case cycles are not persisted.
func New(params config.StrategyParams, u *universe.Universe, pm *execution.PaperPositionManager, store *audit.Store, signalsPath string, log zerolog.Logger) *Service {
	return &Service{
		params:      params,
		universe:    u,
		pm:          pm,
		store:       store,
		signalsPath: signalsPath,
		log:         log.With().Str("service", "strategy").Logger(),
	}
}

// RunCycle executes one full strategy cycle for the given decision time
func (s *Service) RunCycle(at time.Time) error {
	entries, err := LoadSignals(s.signalsPath)
	if err != nil {
		return err
	}

	model := alpha.NewModel(at, s.log)
	model.ClosePositionWeightEpsilon = s.params.ClosePositionWeightEpsilon

	for _, entry := range entries {
		pair := s.universe.GetPairByID(entry.PairID)
		if pair == nil {
			return fmt.Errorf("signals file references unknown pair id %d", entry.PairID)
		}
		if entry.PriceUSD > 0 {
			s.pm.SetPrice(pair, entry.PriceUSD)
		}

		err := model.SetSignal(pair, entry.Alpha, alpha.SignalOptions{
			StopLoss:         entry.StopLoss,
			TakeProfit:       entry.TakeProfit,
			TrailingStopLoss: entry.TrailingStopLoss,
			Leverage:         entry.Leverage,
		})
		if err != nil {
			return fmt.Errorf("registering signal for pair %s: %w", pair.Ticker(), err)
		}
	}

	model.AssignWeights(alpha.WeightBy1SlashN)
	if err := model.SelectTopSignals(s.params.TopCount, s.params.SignalThreshold); err != nil {
		return err
	}
	model.NormaliseWeights()

	book := s.pm.Book()
	if err := model.UpdateOldWeights(book); err != nil {
		return err
	}
	if err := model.CalculateTargetPositions(s.pm, s.universe, book.EquityAndLoanNAV()); err != nil {
		return err
	}

	trades, err := model.GenerateRebalanceTrades(s.pm, s.params.MinTradeThreshold)
	if err != nil {
		return err
	}

	for _, trade := range trades {
		s.log.Info().Str("trade", trade.ShortLabel()).Msg("Filled paper trade")
	}

	s.log.Info().
		Time("cycle_at", at).
		Int("signals", len(entries)).
		Int("trades", len(trades)).
		Float64("nav", book.EquityAndLoanNAV()).
		Float64("cash", book.Cash()).
		Msg("Strategy cycle completed")

	if s.store != nil {
		id, err := s.store.Record(model)
		if err != nil {
			return err
		}
		s.log.Debug().Str("snapshot_id", id).Msg("Cycle model stored")
	}

	return nil
}
