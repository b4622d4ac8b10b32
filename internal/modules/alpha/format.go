package alpha

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
)

// GetDebugPrint presents the model in a format suitable for the console
func (m *Model) GetDebugPrint() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Alpha model for %s, investing USD %.2f\n", m.Timestamp.Format("2006-01-02 15:04"), m.InvestableEquity)
	for idx, signal := range m.GetSignalsSortedByWeight() {
		fmt.Fprintf(&buf, "   Signal #%d %s\n", idx+1, signal)
	}
	return buf.String()
}

// FormatSignals renders the selected signals as a fixed-width table,
// one row per signal. Diagnostics only, no compatibility guarantees.
func FormatSignals(m *Model) string {
	signals := m.IterateSignals()
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Pair.Base.TokenSymbol < signals[j].Pair.Base.TokenSymbol
	})

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Pair\tSignal\tValue adj\tNorm weight\tOld weight\tFlipping\tTrade as\tOld trade as")

	for _, s := range signals {
		tradeAs := "-"
		if s.SyntheticPair != nil {
			tradeAs = s.SyntheticPair.Ticker()
		}
		oldTradeAs := "-"
		if s.OldPair != nil {
			oldTradeAs = s.OldPair.Ticker()
		}
		fmt.Fprintf(w, "%s\t%.4f\t%.2f\t%.4f\t%.4f\t%s\t%s\t%s\n",
			s.Pair.Ticker(),
			s.Alpha,
			s.PositionAdjustUSD,
			s.NormalisedWeight,
			s.OldWeight,
			s.FlipLabel(),
			tradeAs,
			oldTradeAs,
		)
	}

	w.Flush()
	return buf.String()
}
