// Package export turns a cycle summary into the files the household shares:
// a CSV sheet, a printable HTML page and a JSON backup of the whole ledger.
package export

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Renderer formats amounts and dates for one locale and currency.
type Renderer struct {
	Currency string
	Location *time.Location
	printer  *message.Printer
}

// NewRenderer builds a renderer for a BCP 47 locale such as "en-IN".
func NewRenderer(currency, locale string, loc *time.Location) (*Renderer, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{
		Currency: currency,
		Location: loc,
		printer:  message.NewPrinter(tag),
	}, nil
}

// Number groups the digits of n the way the locale does.
func (r *Renderer) Number(n int64) string {
	return r.printer.Sprintf("%d", n)
}

// FormatAmount prefixes the currency symbol, keeping the sign in front.
func (r *Renderer) FormatAmount(n int64) string {
	if n < 0 {
		return "-" + r.Currency + r.printer.Sprintf("%d", -n)
	}
	return r.Currency + r.printer.Sprintf("%d", n)
}

// Date formats t as "02 Jan 2006" in the renderer's location.
func (r *Renderer) Date(t time.Time) string {
	return t.In(r.Location).Format("02 Jan 2006")
}
