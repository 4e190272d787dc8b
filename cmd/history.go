package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored investigations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, "history")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		npi, _ := cmd.Flags().GetString("npi")
		priority, _ := cmd.Flags().GetString("priority")
		limit, _ := cmd.Flags().GetInt("limit")

		invs, err := st.ListInvestigations(ctx, store.InvestigationFilter{
			NPI:      npi,
			Priority: model.Priority(priority),
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "history")
		}

		if len(invs) == 0 {
			fmt.Fprintln(os.Stderr, "No investigations found.")
			return nil
		}

		formatHistory(cmd.OutOrStdout(), invs)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <investigation-id>",
	Short: "Show a stored investigation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}

		st, err := initStore(ctx, "history")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		inv, err := st.GetInvestigation(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "history show")
		}
		return writeInvestigation(cmd.OutOrStdout(), inv, format)
	},
}

func init() {
	historyCmd.Flags().String("npi", "", "filter by provider NPI")
	historyCmd.Flags().String("priority", "", "filter by priority (low, medium, high)")
	historyCmd.Flags().Int("limit", 50, "max number of investigations to display")

	historyShowCmd.Flags().String("format", "json", "output format: text, json or markdown")

	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

// formatHistory writes a tabular list of investigations to out.
func formatHistory(out io.Writer, invs []model.Investigation) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNPI\tPROVIDER\tSCORE\tPRIORITY\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t---\t--------\t-----\t--------\t-------")

	for _, inv := range invs {
		name := ""
		if inv.Profile != nil {
			name = inv.Profile.Identity.Name
		}
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		score, priority := 0, ""
		if inv.Assessment != nil {
			score = inv.Assessment.RiskScore
			priority = string(inv.Assessment.Priority)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(inv.ID),
			inv.NPI,
			name,
			score,
			priority,
			inv.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
