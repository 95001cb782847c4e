// Package core holds the household ledger domain: members, expenses and amounts.
//
// This file contains amount parsing. Amounts are whole currency units. Data
// entry accepts numbers, so "1500", 1500 and "1500.0" are the
// same value while "12.5" is rejected.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// Amount is a whole number of currency units.
type Amount int64

// Int64 returns the amount as a plain integer.
func (a Amount) Int64() int64 {
	return int64(a)
}

// UnmarshalJSON accepts a JSON number or a string holding an integer-like value.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = Amount(v)
	return nil
}

// ParseAmount converts an integer-like string to an int64.
//
// A leading sign is accepted so that negative carry-over balances can be parsed;
// callers that need positive values validate afterwards. A fractional part is
// accepted only when it is all zeros.
//
// Examples:
//
//	ParseAmount("1500")   -> 1500, nil
//	ParseAmount("1500.0") -> 1500, nil
//	ParseAmount("-250")   -> -250, nil
//	ParseAmount("12.5")   -> 0, ErrInvalidAmount
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
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if intPart == "" {
		return 0, ErrInvalidAmount
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return 0, ErrInvalidAmount
		}
	}
	if hasFrac {
		if fracPart == "" {
			return 0, ErrInvalidAmount
		}
		for _, r := range fracPart {
			if r != '0' {
				return 0, ErrInvalidAmount
			}
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
