package metrics

import (
	"math"
	"testing"

	"backtest-lab/internal/domain"
)

func equityFrom(values []float64) []domain.EquityBar {
	out := make([]domain.EquityBar, len(values))
	for i, v := range values {
		out[i] = domain.EquityBar{
			Timestamp: int64(i) * 86_400_000,
			BarIndex:  i,
			Equity:    v,
		}
	}
	return out
}

func TestCompute_DegenerateInputs(t *testing.T) {
	// Empty and single-bar inputs: everything zero, nothing raises.
	for _, equity := range [][]domain.EquityBar{nil, equityFrom([]float64{100})} {
		m := Compute(equity, nil, 1440)
		if m.CumulativeReturn != 0 || m.Sharpe != 0 || m.MaxDrawdown != 0 {
			t.Errorf("degenerate input must yield zero metrics, got %+v", m)
		}
	}
}

func TestCompute_ZeroVolatilitySharpeSentinel(t *testing.T) {
	m := Compute(equityFrom([]float64{100, 100, 100, 100}), nil, 1440)
	if m.AnnualizedVol != 0 {
		t.Errorf("flat equity has zero vol, got %g", m.AnnualizedVol)
	}
	if m.Sharpe != 0 {
		t.Errorf("documented sentinel: Sharpe = 0 when volatility = 0, got %g", m.Sharpe)
	}
}

func TestCompute_CumulativeReturn(t *testing.T) {
	m := Compute(equityFrom([]float64{100, 110, 121}), nil, 1440)
	if math.Abs(m.CumulativeReturn-0.21) > 1e-12 {
		t.Errorf("cumulative return = %g, want 0.21", m.CumulativeReturn)
	}
}

func TestMaxDrawdown_DepthAndDuration(t *testing.T) {
	// Peak 120 at bar 1, trough 90 at bar 3, recovery at bar 5.
	equity := equityFrom([]float64{100, 120, 100, 90, 110, 130})
	dd, duration := maxDrawdown(equity)

	want := (120.0 - 90.0) / 120.0
	if math.Abs(dd-want) > 1e-12 {
		t.Errorf("max drawdown = %g, want %g", dd, want)
	}
	if duration != 3 {
		t.Errorf("drawdown duration = %d bars, want 3", duration)
	}
}

func TestExposure(t *testing.T) {
	equity := equityFrom([]float64{100, 100, 100, 100})
	equity[1].Position = 5
	equity[2].Position = -5

	m := Compute(equity, nil, 1440)
	if m.ExposurePct != 0.5 {
		t.Errorf("exposure = %g, want 0.5", m.ExposurePct)
	}
}

func TestWinRate_ClosingTradesOnly(t *testing.T) {
	equity := equityFrom([]float64{100, 100, 100, 100, 100})
	equity[2].RealizedPnL = 50  // first close wins
	equity[3].RealizedPnL = 50  // carried
	equity[4].RealizedPnL = -20 // second close loses

	trades := []domain.Trade{
		{BarIndex: 0, Side: domain.SideBuy, Quantity: 10, PositionAfter: 10},  // open
		{BarIndex: 2, Side: domain.SideSell, Quantity: 10, PositionAfter: 0},  // close, +50
		{BarIndex: 3, Side: domain.SideSell, Quantity: 10, PositionAfter: -10}, // open short
		{BarIndex: 4, Side: domain.SideBuy, Quantity: 10, PositionAfter: 0},   // close, -70
	}

	m := Compute(equity, trades, 1440)
	if m.WinRate != 0.5 {
		t.Errorf("win rate = %g, want 0.5 (one win of two closes)", m.WinRate)
	}
	if m.TradeCount != 4 {
		t.Errorf("trade count = %d, want 4", m.TradeCount)
	}
}

func TestTurnover(t *testing.T) {
	equity := equityFrom([]float64{100, 100})
	trades := []domain.Trade{
		{BarIndex: 0, Side: domain.SideBuy, Quantity: 2, FillPrice: 25, PositionAfter: 2},
	}
	m := Compute(equity, trades, 1440)
	if m.Turnover != 0.5 {
		t.Errorf("turnover = %g, want 0.5 (50 notional / 100 mean equity)", m.Turnover)
	}
}

func TestStatisticSelection(t *testing.T) {
	m := &domain.MetricSet{CumulativeReturn: 0.3, Sharpe: 1.2}
	if m.Statistic(domain.StatisticSharpe) != 1.2 {
		t.Error("sharpe statistic not selected")
	}
	if m.Statistic(domain.StatisticTotalReturn) != 0.3 {
		t.Error("total return statistic not selected")
	}
}
