package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hattiebot/toolpilot/internal/store"
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent tool invocations",
		Args:  cobra.NoArgs,
		RunE:  runLog,
	}
	cmd.Flags().IntP("limit", "n", 20, "number of invocations to show")
	cmd.Flags().String("tool", "", "only show this tool (full name, e.g. gcal.list_events)")
	cmd.Flags().Bool("failed", false, "only show failed invocations")
	cmd.Flags().Bool("prune", false, "apply the retention policy before listing")
	return cmd
}

func runLog(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if prune, _ := cmd.Flags().GetBool("prune"); prune {
		removed, err := a.db.Cleanup(ctx, a.cfg.Retention.MaxAge, a.cfg.Retention.MaxEntries)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pruned %d invocations\n", removed)
	}

	var f store.InvocationFilter
	f.Limit, _ = cmd.Flags().GetInt("limit")
	f.Tool, _ = cmd.Flags().GetString("tool")
	f.FailedOnly, _ = cmd.Flags().GetBool("failed")
	invs, err := a.db.RecentInvocations(ctx, f)
	if err != nil {
		return err
	}
	if len(invs) == 0 {
		fmt.Fprintln(out, "No invocations logged.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTOOL\tOK\tDURATION\tARGS\tERROR")
	for _, inv := range invs {
		args := ""
		if len(inv.Args) > 0 {
			raw, _ := json.Marshal(inv.Args)
			args = string(raw)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n",
			inv.StartedAt.Local().Format(time.DateTime), inv.Tool, inv.OK,
			inv.Duration.Round(time.Millisecond), args, inv.Error)
	}
	return w.Flush()
}
