package domain

// Side of a trade.
type Side string

// Side constants.
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is one executed order. Trades are created only by the
// execution simulator and are append-only; nothing rewrites a trade
// after it is recorded.
type Trade struct {
	Timestamp int64 // fill bar close timestamp (Unix ms)
	BarIndex  int   // fill bar index
	Side      Side
	Quantity  float64 // always a multiple of ExecutionConfig.LotSize

	PreCostPrice float64 // reference price before any cost adjustment
	FillPrice    float64 // execution price after adapter + flat slippage

	// Cost components, in price currency per unit unless noted.
	AdapterSlippage float64 // slippage applied by the configured adapter
	FlatSlippage    float64 // flat basis-point slippage
	FeeBps          float64 // commission rate applied
	Commission      float64 // commission charged on notional
	BorrowAccrued   float64 // borrow cost accrued on this bar (short only)

	// Resulting state after the fill.
	PositionAfter float64
	CashAfter     float64
}

// EquityBar is the mark-to-market state at one input bar. Exactly one
// EquityBar is derived per input bar, deterministically from the Trade
// sequence.
type EquityBar struct {
	Timestamp     int64
	BarIndex      int
	Equity        float64 // cash + position * close
	RealizedPnL   float64 // cumulative realized PnL net of costs
	UnrealizedPnL float64
	CostDrag      float64 // cumulative costs (slippage + fees + borrow)
	Position      float64
}
