package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hattiebot/toolpilot/internal/agent"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Handle one request and print the reply",
		Long: `Runs a single selection round for the message and prints the reply.

Examples:
  toolpilot ask "what's on my calendar on August 25th?"
  toolpilot ask --json "cancel my 3pm meeting tomorrow"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}
	cmd.Flags().Bool("json", false, "print the full result as JSON")
	cmd.Flags().String("user", "", "user id passed to the prompt (default from config)")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	user, _ := cmd.Flags().GetString("user")
	res := a.ask(cmd.Context(), strings.Join(args, " "), agent.Request{UserID: user})

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(out, res.Response)
	return nil
}
