package main

import (
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-risk/internal/investigate"
	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/internal/report"
)

var (
	assessNPI      string
	assessFormat   string
	assessNoReport bool
	assessSave     bool
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Investigate a single provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(assessFormat); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "assess")
		if err != nil {
			return err
		}
		defer env.Close()

		inv, err := env.Investigator.Run(ctx, assessNPI, investigate.RunOptions{
			Report: !assessNoReport,
			Save:   assessSave,
		})
		if err != nil {
			return eris.Wrap(err, "assess")
		}
		return writeInvestigation(cmd.OutOrStdout(), inv, assessFormat)
	},
}

func init() {
	assessCmd.Flags().StringVar(&assessNPI, "npi", "", "provider NPI (required)")
	assessCmd.Flags().StringVar(&assessFormat, "format", "text", "output format: text, json or markdown")
	assessCmd.Flags().BoolVar(&assessNoReport, "no-report", false, "skip the written report")
	assessCmd.Flags().BoolVar(&assessSave, "save", false, "persist the investigation")
	_ = assessCmd.MarkFlagRequired("npi")
	rootCmd.AddCommand(assessCmd)
}

func checkFormat(f string) error {
	switch f {
	case "text", "json", "markdown":
		return nil
	default:
		return eris.Errorf("unknown format %q (want text, json or markdown)", f)
	}
}

func writeInvestigation(w io.Writer, inv *model.Investigation, format string) error {
	switch format {
	case "json":
		return report.WriteJSON(w, inv)
	case "markdown":
		_, err := io.WriteString(w, report.RenderMarkdown(inv))
		return err
	default:
		formatText(w, inv)
		return nil
	}
}

// formatText writes a terminal summary of an investigation.
func formatText(out io.Writer, inv *model.Investigation) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	a := inv.Assessment

	name := ""
	if inv.Profile != nil {
		name = inv.Profile.Identity.Name
	}
	_, _ = fmt.Fprintf(w, "NPI:\t%s\n", inv.NPI)
	if name != "" {
		_, _ = fmt.Fprintf(w, "Provider:\t%s\n", name)
	}
	if a != nil {
		_, _ = fmt.Fprintf(w, "Risk score:\t%d/100\n", a.RiskScore)
		_, _ = fmt.Fprintf(w, "Priority:\t%s\n", strings.ToUpper(string(a.Priority)))
		_, _ = fmt.Fprintf(w, "Data quality:\t%.2f\n", a.QualityScore)
	}
	if f := inv.Financial; f != nil {
		_, _ = fmt.Fprintf(w, "Financial impact:\t$%s (%d)\n", f.TotalImpact().StringFixed(2), f.InvestigationYear)
	}
	_, _ = fmt.Fprintf(w, "Investigation:\t%s\n", inv.ID)
	_ = w.Flush()

	if a != nil && len(a.Evidence) > 0 {
		_, _ = fmt.Fprintln(out, "\nEvidence:")
		for _, e := range a.Evidence {
			_, _ = fmt.Fprintf(out, "  [%s] %s (%s)\n", strings.ToUpper(string(e.Severity)), e.Description, e.Source)
		}
	}

	if len(inv.SourceErrors) > 0 {
		srcs := make([]string, 0, len(inv.SourceErrors))
		for s := range inv.SourceErrors {
			srcs = append(srcs, string(s))
		}
		sort.Strings(srcs)
		_, _ = fmt.Fprintf(out, "\nUnavailable sources: %s\n", strings.Join(srcs, ", "))
	}

	if r := inv.Report; r != nil {
		_, _ = fmt.Fprintf(out, "\n%s\n", r.Summary)
		if len(r.Recommendations) > 0 {
			_, _ = fmt.Fprintln(out, "\nRecommendations:")
			for i, rec := range r.Recommendations {
				_, _ = fmt.Fprintf(out, "  %d. %s\n", i+1, rec)
			}
		}
	}
}
