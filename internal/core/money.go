// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing signed monetary amounts from
// bank exports and converting them to integer cents.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var hundred = decimal.NewFromInt(100)

// ParseDecimalToCents converts a signed decimal string to cents.
//
// Dot and comma decimal separators are accepted. Thousands separators are not.
// Rounding is half away from zero on the third decimal place.
//
// Examples:
//
//	ParseDecimalToCents("12.34")   -> 1234, nil
//	ParseDecimalToCents("-12,345") -> -1235, nil
//	ParseDecimalToCents("+0.004")  -> 0, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return 0, ErrInvalidAmount
	}
	s = strings.TrimPrefix(s, "+")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Mul(hundred).Round(0)
	if !cents.IsInteger() || cents.Abs().GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// FormatCents renders cents as a plain decimal string, e.g. -1234 -> "-12.34".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
