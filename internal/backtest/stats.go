package backtest

import (
	"github.com/newthinker/btviz/internal/core"
	"github.com/shopspring/decimal"
)

// ComputeMetrics reduces a trade list into win/loss statistics.
// Break-even trades count toward TotalTrades only. Trades are not modified.
func ComputeMetrics(trades []core.Trade, startingBalance float64) Metrics {
	if len(trades) == 0 {
		return Metrics{
			FinalBalance: startingBalance,
		}
	}

	var winning, losing int
	winSum := decimal.Zero
	lossSum := decimal.Zero
	var largestWin, largestLoss float64

	for _, t := range trades {
		switch {
		case t.IsWin():
			if winning == 0 || t.ProfitNet > largestWin {
				largestWin = t.ProfitNet
			}
			winning++
			winSum = winSum.Add(decimal.NewFromFloat(t.ProfitNet))
		case t.IsLoss():
			if losing == 0 || t.ProfitNet < largestLoss {
				largestLoss = t.ProfitNet
			}
			losing++
			lossSum = lossSum.Add(decimal.NewFromFloat(t.ProfitNet))
		}
	}

	totalWin := winSum.InexactFloat64()
	totalLoss := lossSum.Abs().InexactFloat64()

	var avgProfit, avgLoss float64
	if winning > 0 {
		avgProfit = winSum.Div(decimal.NewFromInt(int64(winning))).InexactFloat64()
	}
	if losing > 0 {
		avgLoss = lossSum.Abs().Div(decimal.NewFromInt(int64(losing))).InexactFloat64()
	}

	finalBalance := trades[len(trades)-1].Balance

	return Metrics{
		TotalTrades:     len(trades),
		WinningTrades:   winning,
		LosingTrades:    losing,
		WinRate:         float64(winning) / float64(len(trades)) * 100,
		ProfitFactor:    profitFactor(totalWin, totalLoss),
		AverageProfit:   avgProfit,
		AverageLoss:     avgLoss,
		LargestWin:      largestWin,
		LargestLoss:     largestLoss,
		FinalBalance:    finalBalance,
		TotalProfitLoss: decimal.NewFromFloat(finalBalance).Sub(decimal.NewFromFloat(startingBalance)).InexactFloat64(),
		MaxDrawdown:     calculateMaxDrawdown(startingBalance, trades) * 100,
	}
}

// profitFactor is gross win over gross loss, +Inf with wins and no losses,
// and 0 with neither
func profitFactor(totalWin, totalLoss float64) Ratio {
	switch {
	case totalLoss > 0:
		return Ratio(totalWin / totalLoss)
	case totalWin > 0:
		return Inf
	default:
		return 0
	}
}

// calculateMaxDrawdown finds the largest peak-to-trough decline of the
// balance curve as a fraction of the peak
func calculateMaxDrawdown(startingBalance float64, trades []core.Trade) float64 {
	peak := startingBalance
	var maxDD float64

	for _, t := range trades {
		if t.Balance > peak {
			peak = t.Balance
		}
		if peak > 0 {
			dd := (peak - t.Balance) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}
