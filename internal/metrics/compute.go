// Package metrics computes performance statistics from the equity and
// trade sequences. All functions are pure, and every metric is defined
// for degenerate inputs via documented sentinels rather than raising:
//
//   - fewer than two equity bars: all metrics zero
//   - zero volatility: Sharpe = 0
//   - zero trades: Turnover = 0, WinRate = 0
package metrics

import (
	"math"

	"backtest-lab/internal/domain"
)

// barsPerYear converts the bar duration to an annualization factor.
func barsPerYear(barMinutes int) float64 {
	if barMinutes <= 0 {
		return 252
	}
	if barMinutes == 1440 {
		return 252 // trading days
	}
	return 252 * 1440 / float64(barMinutes)
}

// Compute derives the full metric set for one run.
func Compute(equity []domain.EquityBar, trades []domain.Trade, barMinutes int) *domain.MetricSet {
	m := &domain.MetricSet{TradeCount: len(trades)}
	if len(equity) < 2 {
		return m
	}

	first := equity[0].Equity
	last := equity[len(equity)-1].Equity
	if first != 0 {
		m.CumulativeReturn = last/first - 1
	}

	returns := BarReturns(equity)
	vol := stddev(returns)
	annual := math.Sqrt(barsPerYear(barMinutes))
	m.AnnualizedVol = vol * annual

	// Sharpe sentinel: zero when volatility is zero.
	if vol > 0 {
		m.Sharpe = mean(returns) / vol * annual
	}

	m.MaxDrawdown, m.MaxDrawdownDuration = maxDrawdown(equity)
	m.Turnover = turnover(equity, trades)
	m.ExposurePct = exposure(equity)
	m.WinRate = winRate(equity, trades)

	return m
}

// BarReturns computes simple per-bar equity returns. Bars following a
// zero-equity bar contribute a zero return.
func BarReturns(equity []domain.EquityBar) []float64 {
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, equity[i].Equity/prev-1)
	}
	return out
}

// maxDrawdown returns the deepest peak-to-trough loss fraction and the
// longest time (in bars) spent below a prior peak.
func maxDrawdown(equity []domain.EquityBar) (float64, int) {
	peak := equity[0].Equity
	peakIdx := 0
	var worst float64
	var longest int

	for i, bar := range equity {
		if bar.Equity > peak {
			peak = bar.Equity
			peakIdx = i
			continue
		}
		if peak > 0 {
			dd := (peak - bar.Equity) / peak
			if dd > worst {
				worst = dd
			}
		}
		if under := i - peakIdx; under > longest {
			longest = under
		}
	}
	return worst, longest
}

// turnover is total traded notional over mean equity.
func turnover(equity []domain.EquityBar, trades []domain.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	var notional float64
	for _, t := range trades {
		notional += t.Quantity * t.FillPrice
	}
	meanEq := 0.0
	for _, bar := range equity {
		meanEq += bar.Equity
	}
	meanEq /= float64(len(equity))
	if meanEq == 0 {
		return 0
	}
	return notional / meanEq
}

// exposure is the fraction of bars with a non-zero position.
func exposure(equity []domain.EquityBar) float64 {
	var exposed int
	for _, bar := range equity {
		if bar.Position != 0 {
			exposed++
		}
	}
	return float64(exposed) / float64(len(equity))
}

// winRate is the fraction of position-closing trades whose realized
// PnL delta is positive, read from the equity series at each closing
// trade's bar. With zero closing trades the sentinel is 0.
func winRate(equity []domain.EquityBar, trades []domain.Trade) float64 {
	var closed, wins int
	var prevRealized float64
	for _, t := range trades {
		signedQty := t.Quantity
		if t.Side == domain.SideSell {
			signedQty = -t.Quantity
		}
		posBefore := t.PositionAfter - signedQty
		if math.Abs(t.PositionAfter) >= math.Abs(posBefore) {
			continue // opening or adding, nothing realized
		}
		if t.BarIndex >= len(equity) {
			continue
		}
		realized := equity[t.BarIndex].RealizedPnL
		closed++
		if realized-prevRealized > 0 {
			wins++
		}
		prevRealized = realized
	}
	if closed == 0 {
		return 0
	}
	return float64(wins) / float64(closed)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mu := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
