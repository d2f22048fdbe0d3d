package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgehub-net/edgehub/pkg/audit"
	"github.com/edgehub-net/edgehub/pkg/cli"
)

var auditFlags struct {
	action    string
	requestID string
	connector string
	failures  bool
	limit     int
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the command audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := audit.Query(audit.Filter{
			Action:      auditFlags.action,
			RequestID:   auditFlags.requestID,
			Connector:   auditFlags.connector,
			FailureOnly: auditFlags.failures,
			Limit:       auditFlags.limit,
		})
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("no matching audit events")
			return nil
		}

		table := cli.NewTable("TIME", "ACTION", "TARGET", "REQUEST", "RESULT")
		for _, ev := range events {
			target := ev.Connector
			if ev.Category != "" {
				target = ev.Category + "/" + ev.Connector
			}
			result := cli.Green("ok")
			if !ev.Success {
				result = cli.Red(ev.Error)
			}
			table.Row(ev.Timestamp.Format(time.RFC3339), ev.Action, target, ev.RequestID, result)
		}
		table.Flush()
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditFlags.action, "action", "", "Filter by action")
	auditCmd.Flags().StringVar(&auditFlags.requestID, "request", "", "Filter by request id")
	auditCmd.Flags().StringVar(&auditFlags.connector, "connector", "", "Filter by connector id")
	auditCmd.Flags().BoolVar(&auditFlags.failures, "failures", false, "Only failed commands")
	auditCmd.Flags().IntVar(&auditFlags.limit, "limit", 50, "Maximum events to show")
}
