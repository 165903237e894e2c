package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessiongate/api"
	"github.com/jmcleod/sessiongate/storage"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the persisted audit trail",
}

var (
	auditMemberID   string
	auditLimit      int
	auditJSONOutput bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repo, closeRepo, err := openPersistentStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeRepo()
		return listAudit(ctx, repo, api.AuditFilter{MemberID: auditMemberID, Limit: auditLimit}, auditJSONOutput, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditListCmd.Flags().StringVar(&auditMemberID, "member", "", "Only show events for this member id")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events; 0 shows all")
	auditListCmd.Flags().BoolVar(&auditJSONOutput, "json", false, "Output results as JSON")
}

func listAudit(ctx context.Context, repo storage.Repository, f api.AuditFilter, asJSON bool, out io.Writer) error {
	entries, err := api.ListAuditEntries(ctx, repo, f)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tMEMBER\tLOGIN ID\tCLIENT IP\tREASON")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339), e.Event, dash(e.MemberID), dash(e.LoginID), dash(e.ClientIP), dash(e.Reason))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
