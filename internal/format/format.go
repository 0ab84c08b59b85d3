// Package format renders prices and money amounts for display.
package format

import (
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// Price formats a price with fewer decimals the larger it is
func Price(price float64) string {
	return decimal.NewFromFloat(price).StringFixed(priceDecimals(price))
}

func priceDecimals(price float64) int32 {
	switch {
	case price > 1000:
		return 2
	case price > 100:
		return 3
	case price > 10:
		return 4
	case price > 1:
		return 5
	default:
		return 6
	}
}

// Currency formats a USD amount with grouping and two decimals, e.g. -$1,234.50
func Currency(value float64) string {
	switch {
	case math.IsNaN(value):
		return "NaN"
	case math.IsInf(value, 1):
		return "$∞"
	case math.IsInf(value, -1):
		return "-$∞"
	}
	rounded := decimal.NewFromFloat(value).Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	return sign + "$" + printer.Sprintf("%.2f", rounded.InexactFloat64())
}

// Percentage formats a value already expressed in percent, e.g. 62.5 -> 62.50%
func Percentage(value float64) string {
	if math.IsInf(value, 1) {
		return "∞%"
	}
	return printer.Sprintf("%.2f", value) + "%"
}
