package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize/english"
)

// WriteConsole prints summaries as an indented listing followed by a total
// line.
func WriteConsole(w io.Writer, summaries []GuardianSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for i, s := range summaries {
		fmt.Fprintf(tw, "%d. %s\t%s\t%s\t%s\n",
			i+1, s.Name, s.Contact, FormatBRL(s.TotalOwed),
			english.Plural(s.DependentCount, "aluno", "alunos"))
		for _, d := range s.Dependents {
			fmt.Fprintf(tw, "   %s\t\t%s\t%s\n",
				d.Name, FormatBRL(d.TotalOwed),
				english.Plural(len(d.Purchases), "compra", "compras"))
			for _, p := range d.Purchases {
				fmt.Fprintf(tw, "      %s\t%s\t%s\t\n", FormatDate(p.Date), FormatBRL(p.Value), p.Description)
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nTotal: %s (%s)\n",
		FormatBRL(Total(summaries)),
		english.Plural(len(summaries), "responsável", "responsáveis"))
	return err
}
