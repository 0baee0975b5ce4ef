package backtest

import (
	"time"

	"github.com/newthinker/signalbench/internal/core"
)

// ExtractTrades reconstructs round trips from a position series. A flip
// closes the open trade and opens the opposite side at the same price. The
// trade still open after the last period is returned separately, marked to
// the last close.
func ExtractTrades(times []time.Time, closes []float64, positions []core.Position) ([]Trade, *Trade) {
	var trades []Trade
	var open *Trade

	for i := 1; i < len(positions) && i < len(closes) && i < len(times); i++ {
		if positions[i] == positions[i-1] {
			continue
		}

		if open != nil {
			open.ExitTime = times[i]
			open.ExitPrice = closes[i]
			open.PnLPct = pnlPct(open.Side, open.EntryPrice, open.ExitPrice)
			trades = append(trades, *open)
			open = nil
		}

		if positions[i] != core.Flat {
			open = &Trade{
				Side:       positions[i],
				EntryTime:  times[i],
				EntryPrice: closes[i],
			}
		}
	}

	if open != nil && len(closes) > 0 {
		open.ExitPrice = closes[len(closes)-1]
		open.PnLPct = pnlPct(open.Side, open.EntryPrice, open.ExitPrice)
	}

	return trades, open
}

func pnlPct(side core.Position, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	return side.Sign() * (exit - entry) / entry * 100
}
