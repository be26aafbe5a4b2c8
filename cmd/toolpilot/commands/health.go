package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hattiebot/toolpilot/internal/core"
)

var pingMessages = []core.Message{{Role: core.RoleUser, Content: "ping - respond with one word"}}

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report the health of the catalog, the store and the model client",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}
	cmd.Flags().Bool("json", false, "print the report as JSON")
	cmd.Flags().Bool("ping", false, "send a one-word prompt to verify model access")
	return cmd
}

func runHealth(cmd *cobra.Command, _ []string) error {
	ping, _ := cmd.Flags().GetBool("ping")
	a, err := newApp(cmd, ping)
	if err != nil {
		return err
	}
	defer a.Close()

	if ping {
		if _, err := a.client.ChatCompletion(cmd.Context(), pingMessages); err != nil {
			a.log.Warn().Err(err).Str("model", a.cfg.Model).Msg("model failed validation")
		}
	}

	report := a.health.Check()
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(out, "overall: %s\n\n", report.Status)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tSTATUS\tMESSAGE")
	for _, c := range report.Components {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Status, c.Message)
	}
	if a.client != nil {
		ok, failed := a.client.Health().Counts()
		fmt.Fprintf(w, "model calls\t-\t%d ok, %d failed\n", ok, failed)
	}
	if running := a.manager.Running(); len(running) > 0 {
		fmt.Fprintf(w, "connectors\tok\t%v\n", running)
	}
	return w.Flush()
}
