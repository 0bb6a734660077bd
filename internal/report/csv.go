package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ContactsHeader is the header of the contacts export consumed by the
// invoicing tool.
var ContactsHeader = []string{"Nome", "Telefone", "CPF/CNPJ", "e-mail"}

// DetailedHeader is the header of the detailed debt export.
var DetailedHeader = []string{
	"Responsável",
	"Telefone",
	"Aluno",
	"Data Compra",
	"Valor Item (R$)",
	"Descrição/Observações",
	"Total Aluno (R$)",
	"Total Responsável (R$)",
}

const (
	colGuardian = iota
	colContact
	colDependent
	colDate
	colValue
	colDescription
	colDependentTotal
	colGuardianTotal
)

// WriteContactsCSV writes one row per guardian. Tax id and e-mail are not
// part of the guardian record and are left blank for the operator.
func WriteContactsCSV(w io.Writer, summaries []GuardianSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ContactsHeader); err != nil {
		return err
	}
	for _, s := range summaries {
		if err := cw.Write([]string{s.Name, s.Contact, "", ""}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDetailedCSV writes one row per purchase. Guardian cells are filled on
// the guardian's first row only, dependent cells on the dependent's first row
// only.
func WriteDetailedCSV(w io.Writer, summaries []GuardianSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DetailedHeader); err != nil {
		return err
	}

	for _, s := range summaries {
		firstGuardianRow := true
		for _, d := range s.Dependents {
			firstDependentRow := true
			for _, p := range d.Purchases {
				row := make([]string, len(DetailedHeader))
				if firstGuardianRow {
					row[colGuardian] = s.Name
					row[colContact] = s.Contact
					row[colGuardianTotal] = FormatBRL(s.TotalOwed)
				}
				if firstDependentRow {
					row[colDependent] = d.Name
					row[colDependentTotal] = FormatBRL(d.TotalOwed)
				}
				row[colDate] = FormatDate(p.Date)
				row[colValue] = FormatBRL(p.Value)
				row[colDescription] = p.Description

				if err := cw.Write(row); err != nil {
					return err
				}
				firstGuardianRow, firstDependentRow = false, false
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// carryForward remembers the last non-blank guardian and dependent cells
// while reading a detailed export.
type carryForward struct {
	guardian  *GuardianSummary
	dependent *DependentSummary
}

// ReadDetailedCSV parses a file written by WriteDetailedCSV back into
// summaries. Blank guardian and dependent cells continue the previous
// guardian or dependent. Rows without a date are ignored.
func ReadDetailedCSV(r io.Reader) ([]GuardianSummary, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < len(DetailedHeader) {
		return nil, fmt.Errorf("expected %d columns, header has %d", len(DetailedHeader), len(header))
	}

	var (
		out   []*GuardianSummary
		state carryForward
		line  = 1
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for len(row) < len(DetailedHeader) {
			row = append(row, "")
		}
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}

		if name := row[colGuardian]; name != "" {
			total, err := parseOptionalBRL(row[colGuardianTotal])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			state.guardian = &GuardianSummary{Name: name, Contact: row[colContact], TotalOwed: total}
			state.dependent = nil
			out = append(out, state.guardian)
		}
		if state.guardian == nil {
			return nil, fmt.Errorf("line %d: purchase before any guardian", line)
		}

		if name := row[colDependent]; name != "" {
			total, err := parseOptionalBRL(row[colDependentTotal])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			state.guardian.Dependents = append(state.guardian.Dependents, DependentSummary{Name: name, TotalOwed: total})
			state.dependent = &state.guardian.Dependents[len(state.guardian.Dependents)-1]
			state.guardian.DependentCount = len(state.guardian.Dependents)
		}
		if state.dependent == nil {
			return nil, fmt.Errorf("line %d: purchase before any dependent", line)
		}

		if row[colDate] == "" {
			continue
		}
		var date time.Time
		if row[colDate] != NotAvailable {
			date, err = time.Parse(DateLayout, row[colDate])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid date %q", line, row[colDate])
			}
		}
		value, err := ParseBRL(row[colValue])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		state.dependent.Purchases = append(state.dependent.Purchases, PurchaseLine{
			Date:        date,
			Value:       value,
			Description: row[colDescription],
		})
	}

	summaries := make([]GuardianSummary, len(out))
	for i, s := range out {
		summaries[i] = *s
	}
	return summaries, nil
}

func parseOptionalBRL(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return ParseBRL(s)
}
