package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimals kept for money.
const AmountScale = 2

// RoundAmount rounds half-up to AmountScale decimals.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// SumAmounts adds rows[i][key] and rounds the total half-up to two decimals.
// The raw values are summed first, so 100.004 + 50.001 is 150.01. Rows
// without the key count as zero.
func SumAmounts(rows []map[string]any, key string) (decimal.Decimal, error) {
	total := decimal.Zero
	for i, row := range rows {
		d, err := toDecimal(row[key])
		if err != nil {
			return decimal.Zero, fmt.Errorf("row %d %s: %w", i+1, key, err)
		}
		total = total.Add(d)
	}
	return RoundAmount(total), nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return t, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	default:
		return decimal.NewFromString(fmt.Sprint(t))
	}
}
