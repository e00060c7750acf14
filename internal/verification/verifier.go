// Package verification replays stored runs and compares the replayed
// outputs against the persisted records. A deterministic engine must
// reproduce every stored byte; any divergence is a defect in either
// the engine or the stored data.
package verification

import (
	"fmt"
	"math"

	"backtest-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 field comparisons.
// Digest comparisons are always exact.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name, trade fields prefixed with "trade[i]."
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationReport is the result of verifying one run.
type VerificationReport struct {
	RunID string

	RunHashMatch      bool
	TradesMatch       bool
	EquityDigestMatch bool

	// ValidationDigestMatch maps method name to whether the stored
	// distribution digest matched the replayed one.
	ValidationDigestMatch map[string]bool

	Divergences []FieldDivergence
}

// Match reports whether the replay reproduced the stored run exactly.
func (r *VerificationReport) Match() bool {
	return len(r.Divergences) == 0
}

// CompareTrades compares stored and replayed trade sequences.
func CompareTrades(stored, replayed []domain.Trade) []FieldDivergence {
	if len(stored) != len(replayed) {
		return []FieldDivergence{{
			Field:    "trades.len",
			Expected: len(stored),
			Actual:   len(replayed),
		}}
	}

	var divergences []FieldDivergence
	for i := range stored {
		divergences = append(divergences, compareTrade(i, &stored[i], &replayed[i])...)
	}
	return divergences
}

func compareTrade(i int, stored, replayed *domain.Trade) []FieldDivergence {
	var divergences []FieldDivergence

	add := func(field string, expected, actual interface{}) {
		divergences = append(divergences, FieldDivergence{
			Field:    fmt.Sprintf("trade[%d].%s", i, field),
			Expected: expected,
			Actual:   actual,
		})
	}

	if stored.Timestamp != replayed.Timestamp {
		add("Timestamp", stored.Timestamp, replayed.Timestamp)
	}
	if stored.BarIndex != replayed.BarIndex {
		add("BarIndex", stored.BarIndex, replayed.BarIndex)
	}
	if stored.Side != replayed.Side {
		add("Side", stored.Side, replayed.Side)
	}
	if !floatEquals(stored.Quantity, replayed.Quantity) {
		add("Quantity", stored.Quantity, replayed.Quantity)
	}
	if !floatEquals(stored.PreCostPrice, replayed.PreCostPrice) {
		add("PreCostPrice", stored.PreCostPrice, replayed.PreCostPrice)
	}
	if !floatEquals(stored.FillPrice, replayed.FillPrice) {
		add("FillPrice", stored.FillPrice, replayed.FillPrice)
	}
	if !floatEquals(stored.AdapterSlippage, replayed.AdapterSlippage) {
		add("AdapterSlippage", stored.AdapterSlippage, replayed.AdapterSlippage)
	}
	if !floatEquals(stored.FlatSlippage, replayed.FlatSlippage) {
		add("FlatSlippage", stored.FlatSlippage, replayed.FlatSlippage)
	}
	if !floatEquals(stored.Commission, replayed.Commission) {
		add("Commission", stored.Commission, replayed.Commission)
	}
	if !floatEquals(stored.BorrowAccrued, replayed.BorrowAccrued) {
		add("BorrowAccrued", stored.BorrowAccrued, replayed.BorrowAccrued)
	}
	if !floatEquals(stored.PositionAfter, replayed.PositionAfter) {
		add("PositionAfter", stored.PositionAfter, replayed.PositionAfter)
	}
	if !floatEquals(stored.CashAfter, replayed.CashAfter) {
		add("CashAfter", stored.CashAfter, replayed.CashAfter)
	}

	return divergences
}

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
