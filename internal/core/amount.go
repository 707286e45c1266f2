// Package core provides the domain model of the expense ledger.
//
// This file contains amount parsing for user-submitted form values.
package core

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts user input into a whole-unit amount.
//
// Group separators (comma, underscore, space) are ignored and a fractional
// part is truncated toward zero, so "1,234.9" yields 1234 and "-7.5" yields -7.
// An optional leading sign is accepted. Empty or non-numeric input is rejected.
//
// Examples:
//
//	ParseAmount("1200")    -> 1200, nil
//	ParseAmount("1,200")   -> 1200, nil
//	ParseAmount("-300")    -> -300, nil
//	ParseAmount("12.99")   -> 12, nil
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	s = strings.Map(func(r rune) rune {
		if r == ',' || r == '_' || r == ' ' {
			return -1
		}
		return r
	}, s)

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if neg {
		v = -v
	}
	return v, nil
}
