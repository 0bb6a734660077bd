// Package allowlist narrows debt records to the guardians an operator has
// authorized for billing.
package allowlist

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/mmynk/cantina/internal/models"
)

// nameColumns are the accepted headers of the name column, compared
// case-insensitively.
var nameColumns = []string{"nome", "name"}

var folder = cases.Fold()

// Normalize returns the comparison key of a person's name: NFC-composed,
// case-folded, with runs of whitespace collapsed to a single space.
func Normalize(name string) string {
	s := norm.NFC.String(name)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// EmptyAllowListError reports an allow-list with no usable names. Filtering
// against it is always a configuration mistake.
type EmptyAllowListError struct {
	// Source names where the list came from, e.g. a file path.
	Source string
}

func (e *EmptyAllowListError) Error() string {
	if e.Source == "" {
		return "allow-list is empty"
	}
	return fmt.Sprintf("allow-list %s is empty", e.Source)
}

// IsEmptyAllowList reports whether err is or wraps an *EmptyAllowListError.
func IsEmptyAllowList(err error) bool {
	var e *EmptyAllowListError
	return errors.As(err, &e)
}

// AllowList is a set of normalized guardian names.
type AllowList struct {
	source string
	names  map[string]string // normalized -> first spelling seen
	order  []string
}

// New builds an AllowList from raw names. Blank names are ignored.
func New(names []string) *AllowList {
	a := &AllowList{names: make(map[string]string)}
	for _, n := range names {
		a.add(n)
	}
	return a
}

func (a *AllowList) add(name string) {
	key := Normalize(name)
	if key == "" {
		return
	}
	if _, ok := a.names[key]; ok {
		return
	}
	a.names[key] = strings.TrimSpace(name)
	a.order = append(a.order, key)
}

// Load reads an allow-list CSV. The header must contain a "Nome" or "Name"
// column; every other column is ignored.
func Load(r io.Reader) (*AllowList, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read allow-list header: %w", err)
	}

	col := -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		for _, want := range nameColumns {
			if strings.EqualFold(h, want) {
				col = i
			}
		}
		if col >= 0 {
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("allow-list has no %q column (header: %v)", "Nome", header)
	}

	a := New(nil)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read allow-list: %w", err)
		}
		if col < len(rec) {
			a.add(rec[col])
		}
	}
	return a, nil
}

// LoadFile reads the allow-list CSV at path.
func LoadFile(path string) (*AllowList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open allow-list: %w", err)
	}
	defer f.Close()

	a, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.source = path
	return a, nil
}

// Source returns the file the list was loaded from, if any.
func (a *AllowList) Source() string {
	if a == nil {
		return ""
	}
	return a.source
}

// Len returns the number of distinct names.
func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return len(a.order)
}

// Contains reports whether name normalizes to a listed name.
func (a *AllowList) Contains(name string) bool {
	if a == nil {
		return false
	}
	_, ok := a.names[Normalize(name)]
	return ok
}

// Names returns the listed names as first spelled, in input order.
func (a *AllowList) Names() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.order))
	for i, key := range a.order {
		out[i] = a.names[key]
	}
	return out
}

// Check returns an *EmptyAllowListError when a has no names.
func (a *AllowList) Check() error {
	if a.Len() == 0 {
		return &EmptyAllowListError{Source: a.Source()}
	}
	return nil
}

// Filter keeps the records whose guardian is on the allow-list and returns
// the dropped ones separately. records is not modified.
func Filter(records []models.DebtRecord, allow *AllowList, logger *slog.Logger) (kept, skipped []models.DebtRecord, err error) {
	if err := allow.Check(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	kept = make([]models.DebtRecord, 0, len(records))
	for _, rec := range records {
		name := rec.Guardian.FullName()
		if allow.Contains(name) {
			kept = append(kept, rec)
			continue
		}
		logger.Info("Guardian skipped: not authorized",
			"guardian_id", rec.Guardian.ID,
			"guardian", name,
			"total_owed", rec.TotalOwed.StringFixed(2),
		)
		skipped = append(skipped, rec)
	}
	return kept, skipped, nil
}

// Unmatched returns the listed names that match none of the records, in
// list order.
func (a *AllowList) Unmatched(records []models.DebtRecord) []string {
	if a == nil {
		return nil
	}
	matched := make(map[string]bool, len(records))
	for _, rec := range records {
		matched[Normalize(rec.Guardian.FullName())] = true
	}

	var out []string
	for _, key := range a.order {
		if !matched[key] {
			out = append(out, a.names[key])
		}
	}
	return out
}
