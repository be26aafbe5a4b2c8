package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hattiebot/toolpilot/internal/store"
	"github.com/hattiebot/toolpilot/internal/toolname"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools of every started connector with their health",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}
}

func runTools(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()
	out := cmd.OutOrStdout()
	if a.startErr != nil {
		fmt.Fprintf(out, "warning: %v\n\n", a.startErr)
	}

	rows, err := a.db.AllToolHealth(cmd.Context())
	if err != nil {
		return err
	}
	byTool := make(map[string]store.ToolHealth, len(rows))
	for _, r := range rows {
		byTool[r.Tool] = r
	}

	named, mapping := toolname.Sanitize(a.catalog.List())
	if len(named) == 0 {
		fmt.Fprintln(out, "No tools. Add connectors to config.yaml.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL NAME\tTOOL\tCONNECTOR\tSTATUS\tFAILURES\tUI\tDESCRIPTION")
	for _, n := range named {
		h, ok := byTool[n.Descriptor.FullName()]
		status, failures := "unused", "-"
		if ok {
			status, failures = h.Status, fmt.Sprint(h.FailureCount)
		}
		ui := "-"
		if n.Descriptor.SupportsUI {
			ui = strings.Join(append([]string{"yes"}, n.Descriptor.UICapabilities...), ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			n.Name, n.Descriptor.FullName(), a.manager.Label(n.Descriptor.ConnectorID),
			status, failures, ui, n.Descriptor.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, c := range mapping.Collisions() {
		fmt.Fprintf(out, "\nnote: %q is exposed by several connectors: %v\n", c.Base, c.FullNames)
	}
	return nil
}
