// Package report renders simulation results as human-readable text for the
// CLI. All rendering works from stored run records so archived runs report
// identically to fresh ones.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/defirisk/lendvar/internal/persistence"
)

// WriteRun renders the full summary of one run.
func WriteRun(w io.Writer, rec *persistence.RunRecord) error {
	var b strings.Builder

	line := strings.Repeat("=", 64)
	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "MONTE CARLO VALUE-AT-RISK REPORT")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Run ID:      %s\n", rec.RunID)
	fmt.Fprintf(&b, "State:       %s\n", rec.State)
	fmt.Fprintf(&b, "Scenarios:   %d\n", rec.NScenarios)
	fmt.Fprintf(&b, "Users:       %d\n", rec.NUsers)
	fmt.Fprintf(&b, "Seed:        %d\n", rec.Seed)
	fmt.Fprintf(&b, "Started:     %s\n", rec.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if !rec.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Finished:    %s (%.1fs)\n",
			rec.FinishedAt.Format("2006-01-02 15:04:05 MST"),
			rec.FinishedAt.Sub(rec.StartedAt).Seconds())
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "LOSS DISTRIBUTION (protocol bad debt, USD)")
	fmt.Fprintln(&b, strings.Repeat("-", 64))
	fmt.Fprintf(&b, "  Mean:           %s\n", usd(rec.MeanLoss))
	fmt.Fprintf(&b, "  Median:         %s\n", usd(rec.MedianLoss))
	fmt.Fprintf(&b, "  Std deviation:  %s\n", usd(rec.StdLoss))
	fmt.Fprintf(&b, "  Maximum:        %s\n", usd(rec.MaxLoss))
	fmt.Fprintf(&b, "  P(loss > 0):    %.1f%%\n", rec.ProbOfLoss*100)

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "TAIL RISK")
	fmt.Fprintln(&b, strings.Repeat("-", 64))
	fmt.Fprintf(&b, "  VaR 95%%:        %s   (ES %s)\n", usd(rec.VaR95), usd(rec.ES95))
	fmt.Fprintf(&b, "  VaR 99%%:        %s   (ES %s)\n", usd(rec.VaR99), usd(rec.ES99))
	fmt.Fprintf(&b, "  VaR 99.9%%:      %s\n", usd(rec.VaR999))
	fmt.Fprintln(&b, line)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteRunList renders a one-line-per-run table, newest first.
func WriteRunList(w io.Writer, recs []persistence.RunRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATE\tSCENARIOS\tUSERS\tVAR 99%\tFINISHED")
	for i := range recs {
		r := &recs[i]
		finished := "-"
		if !r.FinishedAt.IsZero() {
			finished = r.FinishedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.RunID, r.State, r.NScenarios, r.NUsers, usd(r.VaR99), finished)
	}
	return tw.Flush()
}

// usd formats a dollar amount with thousands separators.
func usd(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.2f", v)
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]

	var parts []string
	for len(intPart) > 3 {
		parts = append([]string{intPart[len(intPart)-3:]}, parts...)
		intPart = intPart[:len(intPart)-3]
	}
	parts = append([]string{intPart}, parts...)

	out := "$" + strings.Join(parts, ",") + frac
	if neg {
		out = "-" + out
	}
	return out
}
