// Package execution converts a signal timeline into timed,
// cost-adjusted trades and the derived equity series. It is the only
// writer of the Trade ledger; the ledger is append-only.
package execution

import (
	"context"
	"fmt"
	"math"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/guard"
	"backtest-lab/internal/signal"
)

// Result is the simulator output for one run.
type Result struct {
	Trades []domain.Trade
	Equity []domain.EquityBar // exactly one bar per input bar

	// ZeroVolumeBars counts orders that arrived on a zero-volume bar
	// and were rejected. Counted explicitly, never silently skipped.
	ZeroVolumeBars int
}

// FinalEquity returns the equity of the last bar, or the initial cash
// when the series is empty.
func (r *Result) FinalEquity(initialCash float64) float64 {
	if len(r.Equity) == 0 {
		return initialCash
	}
	return r.Equity[len(r.Equity)-1].Equity
}

// Simulator executes orders against the bar series.
type Simulator struct {
	exec  domain.ExecutionConfig
	costs domain.CostModelConfig
}

// New creates a simulator. Both slippage adapters configured at once
// is a ConfigError (also caught at config validation).
func New(exec domain.ExecutionConfig, costs domain.CostModelConfig) (*Simulator, error) {
	if costs.SpreadPct != nil && costs.ParticipationRate != nil {
		return nil, domain.NewConfigError("Costs", "%v", domain.ErrBothAdaptersSet)
	}
	return &Simulator{exec: exec, costs: costs}, nil
}

// ledgerState is the mutable book during one simulation pass.
type ledgerState struct {
	cash     float64
	position float64
	avgCost  float64 // average entry price of the open position
	realized float64 // cumulative realized PnL net of per-trade costs
	costDrag float64 // cumulative slippage + fees + borrow
}

// Run replays the signal timeline over the series.
//
// A signal emitted at bar t becomes an order executable no earlier
// than bar t+1. Per order, the processing order is a correctness
// invariant:
//  1. lot-size rounding of the target quantity,
//  2. the configured slippage adapter on the fill price,
//  3. flat basis-point slippage keyed off the pre-adapter reference
//     price, then commission on the slipped notional,
//  4. borrow accrual for the bar if the resulting position is short.
//
// Price lookups go through the shared causality guard so execution
// observes the same fence already enforced on signal generation.
func (s *Simulator) Run(ctx context.Context, g *guard.Guard, series *domain.Series, timeline *signal.Timeline) (*Result, error) {
	n := series.Len()
	result := &Result{Equity: make([]domain.EquityBar, 0, n)}
	state := &ledgerState{cash: s.exec.InitialCash}

	openView := g.View("open", series.Open)
	closeView := g.View("close", series.Close)

	// pending maps fill bar -> accumulated delta awaiting execution.
	pending := make(map[int]float64, len(timeline.Points))
	for _, p := range timeline.Points {
		pending[p.BarIndex+1] += p.TargetDelta
	}

	for t := 0; t < n; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if delta, ok := pending[t]; ok && delta != 0 {
			if series.Volume[t] == 0 {
				result.ZeroVolumeBars++
			} else if err := s.fill(result, state, openView, closeView, series, t, delta); err != nil {
				return nil, err
			}
		}

		closePrice, err := closeView.At(t)
		if err != nil {
			return nil, fmt.Errorf("mark-to-market bar %d: %w", t, err)
		}

		// Final-bar auto-flatten closes any open position at the close
		// price with the full cost model. Explicit special case.
		if t == n-1 && s.exec.AutoFlatten && state.position != 0 {
			if series.Volume[t] == 0 {
				// The book must still close; the bar is counted and the
				// participation adapter, with no volume to key off,
				// applies no impact.
				result.ZeroVolumeBars++
			}
			if err := s.flatten(result, state, series, t, closePrice); err != nil {
				return nil, err
			}
		}

		// Borrow accrues on every bar the book is short, whether or
		// not a trade happened. Accrual on a fill bar is attributed to
		// that bar's trade record.
		if state.position < 0 && s.costs.BorrowBps > 0 {
			borrow := math.Abs(state.position) * closePrice * (s.costs.BorrowBps / 10_000) * series.BarDays()
			state.cash -= borrow
			state.costDrag += borrow
			if last := len(result.Trades) - 1; last >= 0 && result.Trades[last].BarIndex == t {
				result.Trades[last].BorrowAccrued += borrow
			}
		}

		result.Equity = append(result.Equity, domain.EquityBar{
			Timestamp:     series.Timestamps[t],
			BarIndex:      t,
			Equity:        state.cash + state.position*closePrice,
			RealizedPnL:   state.realized,
			UnrealizedPnL: state.position * (closePrice - state.avgCost),
			CostDrag:      state.costDrag,
			Position:      state.position,
		})
	}

	return result, nil
}

// fill executes one order at bar t.
func (s *Simulator) fill(result *Result, state *ledgerState, openView, closeView *guard.SeriesView, series *domain.Series, t int, delta float64) error {
	refPrice, err := s.fillPrice(openView, closeView, t)
	if err != nil {
		return fmt.Errorf("fill price bar %d: %w", t, err)
	}

	equity := state.cash + state.position*refPrice

	// (1) Lot rounding: quantize toward zero so an order never exceeds
	// its sized target.
	rawQty := delta * s.exec.SizingFraction * equity / refPrice
	qty := math.Trunc(rawQty/s.exec.LotSize) * s.exec.LotSize
	if qty == 0 {
		return nil
	}

	trade, err := s.priceOrder(state, series, t, refPrice, qty)
	if err != nil {
		return err
	}
	result.Trades = append(result.Trades, *trade)
	return nil
}

// flatten closes the open position at the final bar close.
func (s *Simulator) flatten(result *Result, state *ledgerState, series *domain.Series, t int, closePrice float64) error {
	trade, err := s.priceOrder(state, series, t, closePrice, -state.position)
	if err != nil {
		return err
	}
	result.Trades = append(result.Trades, *trade)
	return nil
}

// priceOrder applies the cost model in its documented order and
// mutates the ledger state. The adapter runs before flat bps/fee;
// swapping them changes the numbers and breaks replay compatibility.
func (s *Simulator) priceOrder(state *ledgerState, series *domain.Series, t int, refPrice, qty float64) (*domain.Trade, error) {
	sign := 1.0
	side := domain.SideBuy
	if qty < 0 {
		sign = -1.0
		side = domain.SideSell
	}

	// (2) Slippage adapter.
	adapterPrice := refPrice
	switch {
	case s.costs.SpreadPct != nil:
		adapterPrice = refPrice * (1 + sign*(*s.costs.SpreadPct)/100/2)
	case s.costs.ParticipationRate != nil:
		if v := series.Volume[t]; v > 0 {
			impact := *s.costs.ParticipationRate * (math.Abs(qty) / v)
			adapterPrice = refPrice * (1 + sign*impact)
		}
	}
	adapterSlippage := math.Abs(adapterPrice - refPrice)

	// (3) Flat basis-point slippage keyed off the pre-adapter reference
	// price, then commission on the slipped notional. Running the bps
	// step first would compound it through the adapter factor and
	// change every fill.
	fillPrice := adapterPrice + sign*refPrice*s.costs.SlippageBps/10_000
	flatSlippage := math.Abs(fillPrice - adapterPrice)
	notional := math.Abs(qty) * fillPrice
	commission := notional * s.costs.FeeBps / 10_000

	// Book the fill with average-cost accounting.
	prevPos := state.position
	state.cash -= qty * fillPrice
	state.cash -= commission
	state.costDrag += math.Abs(qty)*(adapterSlippage+flatSlippage) + commission
	state.position += qty

	switch {
	case prevPos == 0 || sameSign(prevPos, qty):
		// Opening or adding: blend the average cost.
		total := math.Abs(prevPos) + math.Abs(qty)
		state.avgCost = (math.Abs(prevPos)*state.avgCost + math.Abs(qty)*fillPrice) / total
	case math.Abs(qty) <= math.Abs(prevPos):
		// Reducing: realize PnL on the closed quantity.
		closed := math.Abs(qty)
		state.realized += closed * (fillPrice - state.avgCost) * signOf(prevPos)
		if state.position == 0 {
			state.avgCost = 0
		}
	default:
		// Reversing: realize the full old position, open the rest.
		closed := math.Abs(prevPos)
		state.realized += closed * (fillPrice - state.avgCost) * signOf(prevPos)
		state.avgCost = fillPrice
	}
	state.realized -= commission

	// (4) Borrow accrual for the bar is applied by the bar loop once
	// the close is known, and attributed back to this trade.
	return &domain.Trade{
		Timestamp:       series.Timestamps[t],
		BarIndex:        t,
		Side:            side,
		Quantity:        math.Abs(qty),
		PreCostPrice:    refPrice,
		FillPrice:       fillPrice,
		AdapterSlippage: adapterSlippage,
		FlatSlippage:    flatSlippage,
		FeeBps:          s.costs.FeeBps,
		Commission:      commission,
		PositionAfter:   state.position,
		CashAfter:       state.cash,
	}, nil
}

// fillPrice resolves the reference price per the fill policy.
func (s *Simulator) fillPrice(openView, closeView *guard.SeriesView, t int) (float64, error) {
	open, err := openView.At(t)
	if err != nil {
		return 0, err
	}
	if s.exec.FillPolicy == domain.FillNextBarOpen {
		return open, nil
	}
	// NextTickSurrogate: midpoint of the bar's open and close.
	close, err := closeView.At(t)
	if err != nil {
		return 0, err
	}
	return (open + close) / 2, nil
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
