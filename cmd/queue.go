package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lakeside-health/triage-api/internal/model"
	"github.com/lakeside-health/triage-api/internal/triage"
)

var (
	queueSearch string
	queueRisk   string
	queueLimit  int
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Print the prioritized triage queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		filter := triage.QueueFilter{Search: queueSearch}
		if queueRisk != "" {
			tier, ok := model.ParseRiskLevel(queueRisk)
			if !ok {
				return fmt.Errorf("risk must be one of LOW, MEDIUM, HIGH: %q", queueRisk)
			}
			filter.Risk = &tier
		}

		entries, err := initQueue(st).List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if queueLimit > 0 && len(entries) > queueLimit {
			entries = entries[:queueLimit]
		}

		formatQueue(cmd.OutOrStdout(), entries)
		return nil
	},
}

// formatQueue writes a tabular queue listing to w.
func formatQueue(out io.Writer, entries []model.QueueEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "queue is empty")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VISIT\tPATIENT\tCOMPLAINT\tTIER\tRISK\tVISIT_TIME")
	_, _ = fmt.Fprintln(w, "-----\t-------\t---------\t----\t----\t----------")

	for _, e := range entries {
		complaint := ""
		if e.ChiefComplaint != nil {
			complaint = *e.ChiefComplaint
		}
		risk := ""
		if e.RiskLevel != nil {
			risk = *e.RiskLevel
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.VisitID, e.Patient, complaint, e.Tier, risk, e.VisitTime.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func init() {
	queueCmd.Flags().StringVar(&queueSearch, "search", "", "filter by patient name or chief complaint")
	queueCmd.Flags().StringVar(&queueRisk, "risk", "", "filter by risk tier (LOW, MEDIUM, HIGH)")
	queueCmd.Flags().IntVar(&queueLimit, "limit", 0, "max entries to print (0 = all)")
	rootCmd.AddCommand(queueCmd)
}
