package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hattiebot/toolpilot/internal/agent"
	"github.com/hattiebot/toolpilot/internal/core"
	"github.com/hattiebot/toolpilot/internal/scheduler"
	"github.com/hattiebot/toolpilot/internal/store"
	"github.com/hattiebot/toolpilot/internal/tui"
)

const chatHistoryTurns = 20

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation",
		Long: `Starts a REPL. Earlier turns are sent along so follow-ups like
"delete it" resolve against the previous reply. Invocation log retention
and broken-tool checks run in the background while the session is open.`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}
	cmd.Flags().String("escalation", "@every 5m", "cron schedule for the broken-tool check")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()
	out := cmd.OutOrStdout()
	if a.startErr != nil {
		fmt.Fprintf(out, "warning: some connectors did not start: %v\n", a.startErr)
	}

	runner := scheduler.NewRunner(a.db, scheduler.Retention{
		MaxAge:     a.cfg.Retention.MaxAge,
		MaxEntries: a.cfg.Retention.MaxEntries,
	}, a.log)
	if a.cfg.Retention.Schedule != "" {
		if err := runner.ScheduleCleanup(a.cfg.Retention.Schedule); err != nil {
			return err
		}
	}
	runner.Monitor = scheduler.NewEscalationMonitor(a.db, func(t store.ToolHealth) {
		fmt.Fprintf(out, "\n[notice] %s is failing repeatedly (%s)\n", t.Tool, t.LastError)
	}, a.log)
	if schedule, _ := cmd.Flags().GetString("escalation"); schedule != "" {
		if err := runner.ScheduleEscalation(schedule); err != nil {
			return err
		}
	}
	runner.RunCleanup(cmd.Context())
	runner.Start()
	defer runner.Stop()

	rl, err := tui.NewReadline(filepath.Join(a.cfg.ConfigDir, "chat_history"))
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	conv := tui.NewConversation(chatHistoryTurns)
	return tui.RunChat(rl, out, "toolpilot", conv, func(line string, history []core.Turn) (tui.Reply, error) {
		res := a.ask(cmd.Context(), line, agent.Request{History: history})
		return tui.Reply{Text: res.Response, Record: res.Transcript()}, nil
	})
}
