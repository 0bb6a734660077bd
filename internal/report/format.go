package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// NotAvailable is printed for missing contacts and dates.
const NotAvailable = "N/A"

// DateLayout is the day-first layout used in every report.
const DateLayout = "02/01/2006"

// FormatContact formats Brazilian phone numbers with area code:
// 11 digits as "(84) 99695-2876" and 10 digits as "(84) 9695-2876".
// Anything else is returned unchanged; an empty contact becomes NotAvailable.
func FormatContact(contact string) string {
	if strings.TrimSpace(contact) == "" {
		return NotAvailable
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, contact)

	switch len(digits) {
	case 11:
		return fmt.Sprintf("(%s) %s-%s", digits[:2], digits[2:7], digits[7:])
	case 10:
		return fmt.Sprintf("(%s) %s-%s", digits[:2], digits[2:6], digits[6:])
	default:
		return contact
	}
}

// FormatBRL renders an amount in reais, e.g. "R$ 1.234,56". Amounts are
// rounded half away from zero to the cent.
func FormatBRL(d decimal.Decimal) string {
	rounded := d.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Neg()
	}

	whole := rounded.Truncate(0)
	cents := rounded.Sub(whole).Shift(2).IntPart()
	grouped := strings.ReplaceAll(humanize.BigComma(whole.BigInt()), ",", ".")
	return fmt.Sprintf("R$ %s%s,%02d", sign, grouped, cents)
}

// ParseBRL parses amounts written by FormatBRL as well as the plain
// "R$ 12.50" form of older exports.
func ParseBRL(s string) (decimal.Decimal, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimPrefix(v, "R$")
	v = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, v)
	if strings.Contains(v, ",") {
		v = strings.ReplaceAll(v, ".", "")
		v = strings.ReplaceAll(v, ",", ".")
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// FormatDate renders t as DateLayout, or NotAvailable for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}
	return t.Format(DateLayout)
}

// Filename returns "{prefix}_{YYYYMMDD_HHMMSS}.csv", placed in dir when dir
// is not empty.
func Filename(dir, prefix string, t time.Time) string {
	name := prefix + "_" + t.Format("20060102_150405") + ".csv"
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
