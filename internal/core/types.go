package core

// Side represents the direction of a trade
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OHLC is one sample of the backtest price history. The ETF series is the
// primary tradable instrument; bond and the two index series are reference data.
type OHLC struct {
	Time string `json:"time"`

	BondOpen   float64 `json:"bond_open"`
	BondHigh   float64 `json:"bond_high"`
	BondLow    float64 `json:"bond_low"`
	BondRate   float64 `json:"bond_rate"`
	BondVolume float64 `json:"bond_volume"`

	Index1Open   float64 `json:"index1_open"`
	Index1High   float64 `json:"index1_high"`
	Index1Low    float64 `json:"index1_low"`
	Index1Close  float64 `json:"index1_close"`
	Index1Volume float64 `json:"index1_volume"`

	Index2Open   float64 `json:"index2_open"`
	Index2High   float64 `json:"index2_high"`
	Index2Low    float64 `json:"index2_low"`
	Index2Close  float64 `json:"index2_close"`
	Index2Volume float64 `json:"index2_volume"`

	ETFOpen   float64 `json:"etf_open"`
	ETFHigh   float64 `json:"etf_high"`
	ETFLow    float64 `json:"etf_low"`
	ETFClose  float64 `json:"etf_close"`
	ETFVolume float64 `json:"etf_volume"`

	Signal *int `json:"signal"` // nil when absent or null
}

// Trade is a completed (or still open) position from the backtest
type Trade struct {
	State      string  `json:"state"`
	Symbol     string  `json:"symbol"`
	OrderType  Side    `json:"order_type"`
	Volume     float64 `json:"volume"`
	OpenTime   string  `json:"open_time"`
	OpenPrice  float64 `json:"open_price"`
	CloseTime  string  `json:"close_time"`
	ClosePrice float64 `json:"close_price"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	Profit     float64 `json:"profit"`
	Commission float64 `json:"commission"`
	ProfitNet  float64 `json:"profit_net"`
	Balance    float64 `json:"balance"` // account balance after this trade settles
}

// IsWin returns true if the trade made money after costs
func (t Trade) IsWin() bool {
	return t.ProfitNet > 0
}

// IsLoss returns true if the trade lost money after costs
func (t Trade) IsLoss() bool {
	return t.ProfitNet < 0
}

// IsClosed returns true if the trade has a close timestamp
func (t Trade) IsClosed() bool {
	return t.CloseTime != ""
}

// Dataset is a complete backtest export. It is loaded once and never mutated.
type Dataset struct {
	Symbol          string   `json:"symbol"`
	Indicators      []string `json:"indicators"`
	StartingBalance float64  `json:"starting_balance"`
	ExchangeRate    float64  `json:"exchange_rate"`
	OHLCHistory     []OHLC   `json:"ohlc_history"`
	TradeHistory    []Trade  `json:"trade_history"`
}

// Candle is the chart projection of an OHLC sample for the primary instrument
type Candle struct {
	Time   int64   `json:"time"` // unix seconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Bullish reports whether the candle closed at or above its open
func (c Candle) Bullish() bool {
	return c.Close >= c.Open
}

// BalancePoint is one point of the account balance curve
type BalancePoint struct {
	Time    int64   `json:"time"` // unix seconds
	Balance float64 `json:"balance"`
}
