package reportparser

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// Decimal parses a money value, tolerating currency symbols and thousands
// separators. Empty or unparseable values are zero.
func (r Record) Decimal(field Field) decimal.Decimal {
	raw := strings.Map(func(c rune) rune {
		switch {
		case c >= '0' && c <= '9', c == '.', c == '-':
			return c
		default:
			return -1
		}
	}, r.Get(field))
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Int parses an integer value; empty or unparseable values are zero.
func (r Record) Int(field Field) int {
	v := strings.TrimSpace(r.Get(field))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if f, ferr := strconv.ParseFloat(v, 64); ferr == nil {
			return int(f)
		}
		return 0
	}
	return n
}

// Time parses a timestamp in any of the layouts vendor reports use.
func (r Record) Time(field Field) (time.Time, bool) {
	v := strings.TrimSpace(r.Get(field))
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
