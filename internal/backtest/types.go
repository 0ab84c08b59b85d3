package backtest

import (
	"encoding/json"
	"math"
)

// Metrics holds performance statistics derived from a trade list
type Metrics struct {
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"` // Percentage of trades with positive net profit
	ProfitFactor    Ratio   `json:"profit_factor"`
	AverageProfit   float64 `json:"average_profit"`
	AverageLoss     float64 `json:"average_loss"` // Positive magnitude
	LargestWin      float64 `json:"largest_win"`
	LargestLoss     float64 `json:"largest_loss"` // Most negative net profit
	FinalBalance    float64 `json:"final_balance"`
	TotalProfitLoss float64 `json:"total_profit_loss"`
	MaxDrawdown     float64 `json:"max_drawdown"` // Largest peak-to-trough decline of the balance curve, percent
}

// Ratio is a float that may be +Inf. JSON has no infinity literal, so
// infinite values are encoded as the string "Infinity".
type Ratio float64

// Inf is the profit factor of a run with wins and no losses
var Inf = Ratio(math.Inf(1))

// IsInf reports whether the ratio is the +Inf sentinel
func (r Ratio) IsInf() bool {
	return math.IsInf(float64(r), 1)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	if r.IsInf() {
		return []byte(`"Infinity"`), nil
	}
	return json.Marshal(float64(r))
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == `"Infinity"` {
		*r = Inf
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}
