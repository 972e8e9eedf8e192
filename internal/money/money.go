// Package money formats whole-unit currency amounts for display.
package money

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/noah-isme/petlog-console/internal/common"
)

// Money represents a monetary value in whole currency units. The domain
// currency (VND) has no subunits, so amounts are never fractional.
type Money = int64

const (
	// DefaultLocale is the display locale used when none is configured.
	DefaultLocale = "vi"
	// DefaultSuffix is the glyph appended after the grouped amount.
	DefaultSuffix = "đ"
)

// Formatter renders amounts as locale-grouped integers followed by a currency suffix.
type Formatter struct {
	tag    language.Tag
	suffix string
}

// NewFormatter builds a formatter for the given BCP 47 locale and suffix.
// Unparseable locales fall back to DefaultLocale; an empty suffix falls back
// to DefaultSuffix.
func NewFormatter(locale, suffix string) Formatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil || strings.TrimSpace(locale) == "" {
		tag = language.Vietnamese
	}
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return Formatter{tag: tag, suffix: suffix}
}

// Default returns the vi/đ formatter.
func Default() Formatter {
	return NewFormatter(DefaultLocale, DefaultSuffix)
}

// Locale reports the configured display locale.
func (f Formatter) Locale() string {
	return f.resolved().tag.String()
}

// Format renders amount, e.g. 400000 -> "400.000đ" for the vi locale.
func (f Formatter) Format(amount Money) string {
	f = f.resolved()
	return message.NewPrinter(f.tag).Sprintf("%d", amount) + f.suffix
}

// FormatThousands renders the compact plan-card label, e.g. 60000 -> "60k".
// Amounts are rounded half-up to the nearest thousand.
func (f Formatter) FormatThousands(amount Money) string {
	f = f.resolved()
	if amount < 0 {
		amount = 0
	}
	k := amount / 1000
	if amount%1000 >= 500 && k < math.MaxInt64 {
		k++
	}
	return message.NewPrinter(f.tag).Sprintf("%d", k) + "k"
}

// Parse recovers the amount from a display string by keeping digits only.
// It inverts Format for every non-negative amount.
func (f Formatter) Parse(display string) Money {
	return common.ParseDigits(display)
}

func (f Formatter) resolved() Formatter {
	if f.suffix == "" {
		return Default()
	}
	return f
}
