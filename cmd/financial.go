package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provider-risk/internal/model"
)

var financialCmd = &cobra.Command{
	Use:   "financial",
	Short: "Record and query the financial impact of fraud investigations",
}

var financialSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Append a financial impact record for a provider",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		npi, _ := cmd.Flags().GetString("npi")
		estimated, _ := cmd.Flags().GetString("estimated")
		settlement, _ := cmd.Flags().GetString("settlement")
		restitution, _ := cmd.Flags().GetString("restitution")
		year, _ := cmd.Flags().GetInt("year")
		source, _ := cmd.Flags().GetString("source")
		notes, _ := cmd.Flags().GetString("notes")

		f, err := buildFinancial(npi, estimated, settlement, restitution, year, source, notes)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, "financial")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveFinancial(ctx, f); err != nil {
			return eris.Wrap(err, "financial set")
		}
		zap.L().Info("financial record saved",
			zap.String("npi", f.NPI),
			zap.Int("year", f.InvestigationYear),
			zap.String("total_impact", f.TotalImpact().StringFixed(2)),
		)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Recorded $%s total impact for %s.\n", f.TotalImpact().StringFixed(2), f.NPI)
		return nil
	},
}

var financialGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the financial impact recorded for a provider",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		npi, _ := cmd.Flags().GetString("npi")
		all, _ := cmd.Flags().GetBool("all")
		format, _ := cmd.Flags().GetString("format")
		if format != "text" && format != "json" {
			return eris.Errorf("unknown format %q (want text or json)", format)
		}

		st, err := initStore(ctx, "financial")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var records []model.FraudFinancialData
		if all {
			records, err = st.ListFinancial(ctx, npi)
		} else {
			var f *model.FraudFinancialData
			f, err = st.LatestFinancial(ctx, npi)
			if f != nil {
				records = []model.FraudFinancialData{*f}
			}
		}
		if err != nil {
			return eris.Wrap(err, "financial get")
		}
		return writeFinancial(cmd.OutOrStdout(), records, format)
	},
}

var financialTotalCmd = &cobra.Command{
	Use:   "total",
	Short: "Sum the financial impact recorded for an investigation year",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		year, _ := cmd.Flags().GetInt("year")

		st, err := initStore(ctx, "financial")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		total, err := st.AnnualFinancialTotal(ctx, year)
		if err != nil {
			return eris.Wrap(err, "financial total")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d total fraud impact: $%s\n", year, total.StringFixed(2))
		return nil
	},
}

func init() {
	financialSetCmd.Flags().String("npi", "", "provider NPI (required)")
	financialSetCmd.Flags().String("estimated", "", "estimated fraud amount")
	financialSetCmd.Flags().String("settlement", "", "settlement amount")
	financialSetCmd.Flags().String("restitution", "", "restitution amount")
	financialSetCmd.Flags().Int("year", 0, "investigation year (required)")
	financialSetCmd.Flags().String("source", "", "where the figures come from")
	financialSetCmd.Flags().String("notes", "", "free-form notes")
	_ = financialSetCmd.MarkFlagRequired("npi")
	_ = financialSetCmd.MarkFlagRequired("year")

	financialGetCmd.Flags().String("npi", "", "provider NPI (required)")
	financialGetCmd.Flags().Bool("all", false, "show every record instead of the latest")
	financialGetCmd.Flags().String("format", "text", "output format: text or json")
	_ = financialGetCmd.MarkFlagRequired("npi")

	financialTotalCmd.Flags().Int("year", 0, "investigation year (required)")
	_ = financialTotalCmd.MarkFlagRequired("year")

	financialCmd.AddCommand(financialSetCmd, financialGetCmd, financialTotalCmd)
	rootCmd.AddCommand(financialCmd)
}

// buildFinancial parses the amount flags and validates the resulting record.
func buildFinancial(npi, estimated, settlement, restitution string, year int, source, notes string) (*model.FraudFinancialData, error) {
	f := &model.FraudFinancialData{
		NPI:               strings.TrimSpace(npi),
		InvestigationYear: year,
		Source:            source,
		Notes:             notes,
	}
	var err error
	if f.EstimatedFraud, err = parseAmount("estimated_fraud_amount", estimated); err != nil {
		return nil, err
	}
	if f.Settlement, err = parseAmount("settlement_amount", settlement); err != nil {
		return nil, err
	}
	if f.Restitution, err = parseAmount("restitution_amount", restitution); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func parseAmount(field, s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(s, "$"))
	if err != nil {
		return nil, model.NewStructuralError(field, "not a number: %q", s)
	}
	return &d, nil
}

func writeFinancial(out io.Writer, records []model.FraudFinancialData, format string) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(records), "financial: encode json")
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NPI\tYEAR\tESTIMATED\tSETTLEMENT\tRESTITUTION\tTOTAL\tSOURCE")
	_, _ = fmt.Fprintln(w, "---\t----\t---------\t----------\t-----------\t-----\t------")
	for i := range records {
		f := &records[i]
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			f.NPI,
			f.InvestigationYear,
			formatAmount(f.EstimatedFraud),
			formatAmount(f.Settlement),
			formatAmount(f.Restitution),
			f.TotalImpact().StringFixed(2),
			f.Source,
		)
	}
	return eris.Wrap(w.Flush(), "financial: flush")
}

func formatAmount(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}
