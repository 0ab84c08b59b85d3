// Package dataset validates and decodes uploaded backtest files.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/newthinker/btviz/internal/core"
	"github.com/tidwall/gjson"
)

// FieldError names the field that failed validation and why
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return core.WrapError(core.ErrValidation, &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// Validator accepts or rejects raw backtest documents. The default checks
// only inspect the first element of each history; strict mode additionally
// validates every record against the embedded schema.
type Validator struct {
	strict bool
	schema *Schema
}

// NewValidator creates a validator. Strict mode compiles the record schema.
func NewValidator(strict bool) (*Validator, error) {
	v := &Validator{strict: strict}
	if strict {
		s, err := CompileSchema()
		if err != nil {
			return nil, err
		}
		v.schema = s
	}
	return v, nil
}

// Strict reports whether every record is validated
func (v *Validator) Strict() bool {
	return v.strict
}

// Validate runs the structural checks, stopping at the first failure
func (v *Validator) Validate(raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return invalid("", "malformed JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return invalid("", "document must be a JSON object")
	}

	if err := checkHeader(doc); err != nil {
		return err
	}

	ohlc := doc.Get("ohlc_history")
	if len(ohlc.Array()) == 0 {
		return invalid("ohlc_history", "must not be empty")
	}
	if err := checkFirstOHLC(ohlc.Get("0")); err != nil {
		return err
	}

	if trades := doc.Get("trade_history"); len(trades.Array()) > 0 {
		if err := checkFirstTrade(trades.Get("0")); err != nil {
			return err
		}
	}

	if v.strict {
		return v.schema.Validate(raw)
	}
	return nil
}

// Parse validates raw and decodes it into a Dataset
func (v *Validator) Parse(raw []byte) (*core.Dataset, error) {
	if err := v.Validate(raw); err != nil {
		return nil, err
	}

	var ds core.Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		// wrong value types past the first records
		return nil, invalid(jsonField(err), "%v", err)
	}
	return &ds, nil
}

// Load reads a whole document from r and parses it
func (v *Validator) Load(r io.Reader) (*core.Dataset, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, core.WrapError(core.ErrFileRead, err)
	}
	return v.Parse(raw)
}

var lenient = &Validator{}

// Parse validates and decodes raw with the default checks
func Parse(raw []byte) (*core.Dataset, error) {
	return lenient.Parse(raw)
}

// Load reads and parses a document with the default checks
func Load(r io.Reader) (*core.Dataset, error) {
	return lenient.Load(r)
}

func checkHeader(doc gjson.Result) error {
	symbol := doc.Get("symbol")
	if symbol.Type != gjson.String || strings.TrimSpace(symbol.String()) == "" {
		return invalid("symbol", "must be a non-empty string")
	}
	balance := doc.Get("starting_balance")
	if balance.Type != gjson.Number || balance.Float() <= 0 {
		return invalid("starting_balance", "must be a positive number")
	}
	for _, field := range []string{"ohlc_history", "trade_history"} {
		if !doc.Get(field).IsArray() {
			return invalid(field, "must be an array")
		}
	}
	return nil
}

func checkFirstOHLC(first gjson.Result) error {
	if !first.IsObject() {
		return invalid("ohlc_history[0]", "must be an object")
	}
	if t := first.Get("time"); t.Type != gjson.String || t.String() == "" {
		return invalid("ohlc_history[0].time", "is required")
	}
	for _, field := range []string{"etf_open", "etf_high", "etf_low", "etf_close"} {
		if !first.Get(field).Exists() {
			return invalid("ohlc_history[0]."+field, "is required")
		}
	}
	return nil
}

func checkFirstTrade(first gjson.Result) error {
	if !first.IsObject() {
		return invalid("trade_history[0]", "must be an object")
	}
	for _, field := range []string{"symbol", "order_type", "open_time", "close_time"} {
		if v := first.Get(field); v.Type != gjson.String || v.String() == "" {
			return invalid("trade_history[0]."+field, "is required")
		}
	}
	for _, field := range []string{"open_price", "close_price"} {
		if first.Get(field).Type != gjson.Number {
			return invalid("trade_history[0]."+field, "must be a number")
		}
	}
	return nil
}

func jsonField(err error) string {
	if te, ok := err.(*json.UnmarshalTypeError); ok {
		return te.Field
	}
	return ""
}
