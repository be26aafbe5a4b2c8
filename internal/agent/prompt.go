package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/hattiebot/toolpilot/internal/intent"
	"github.com/hattiebot/toolpilot/internal/timeexpr"
	"github.com/hattiebot/toolpilot/internal/toolname"
)

// StaticInstructions are appended to every selection prompt.
const StaticInstructions = `
You pick which of the listed tools satisfy the user's request and call them with correct arguments.
Call several tools in the same response when several services can answer (for example every
calendar you have access to). If no tool fits, answer directly.

Intent rules:
- Creation requests ("schedule", "add", "book", "send", "post") use a create tool.
- Questions about existing things ("what", "show", "do I have") use list/search/get tools.
- Change requests use update tools; removal requests ("delete", "cancel", "remove") use delete tools.
- Never answer a delete or cancel request with only a list or read tool. If you need an id, use the
  one from the conversation.

Arguments:
- Never invent email addresses. When the user names a person without an email, put the name where
  the tool allows it or ask for the address.
- Times are 24-hour ISO 8601 (YYYY-MM-DDTHH:MM:SS). Convert 12-hour times with this table:
  12am=00:00, 1am=01:00, 2am=02:00, 3am=03:00, 4am=04:00, 5am=05:00, 6am=06:00, 7am=07:00,
  8am=08:00, 9am=09:00, 10am=10:00, 11am=11:00, 12pm=12:00, 1pm=13:00, 2pm=14:00, 3pm=15:00,
  4pm=16:00, 5pm=17:00, 6pm=18:00, 7pm=19:00, 8pm=20:00, 9pm=21:00, 10pm=22:00, 11pm=23:00.
- Relative dates are counted from the current date below. "Tomorrow" is current date + 1 day,
  "next <weekday>" is the first such weekday after today, "the 25th" is that day of the current month.
  When resolved values are listed below, use them exactly.
- Events without an end time last one hour.
`

// PromptInput is everything the selection prompt depends on.
type PromptInput struct {
	Now         time.Time
	UserID      string
	Tools       []toolname.Named
	Utterance   string
	Intent      intent.Class
	// BrokenTools are sanitized names, as the model sees them.
	BrokenTools []string
}

// BuildSystemPrompt renders the selection prompt. Output depends only on in.
func BuildSystemPrompt(in PromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "== RUNTIME ==\nCurrent date/time: %s (%s)\nCurrent date: %s\nUser ID: %s\n",
		in.Now.Format(time.RFC1123), in.Now.Weekday(), in.Now.Format("2006-01-02"), in.UserID)

	b.WriteString("\n== TOOLS ==\n")
	for _, t := range in.Tools {
		desc := strings.TrimSpace(t.Descriptor.Description)
		if desc == "" {
			desc = t.Descriptor.Title
		}
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, desc)
	}

	if len(in.BrokenTools) > 0 {
		b.WriteString("\n== UNRELIABLE TOOLS ==\nThese failed repeatedly; prefer alternatives when one exists:\n")
		for _, name := range in.BrokenTools {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}

	if in.Intent != intent.None {
		fmt.Fprintf(&b, "\n== DETECTED INTENT ==\nThe user wants to %s (%s).\n", in.Intent.Describe(), in.Intent)
	}

	if rs := timeexpr.Resolve(in.Now, in.Utterance); len(rs) > 0 {
		b.WriteString("\n== RESOLVED DATES AND TIMES ==\n")
		for _, r := range rs {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(StaticInstructions))
	return b.String()
}
