package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/hattiebot/toolpilot/internal/core"
)

// LineReader is the part of *readline.Instance the REPL uses.
type LineReader interface {
	Readline() (string, error)
}

// NewReadline returns a line editor with persistent history in historyFile.
func NewReadline(historyFile string) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          "You: ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

// Reply is one answer from the assistant. Record, when set, is what the conversation
// keeps instead of Text (for example the text plus ids the user did not need to see).
type Reply struct {
	Text   string
	Record string
}

// RunChat runs a simple REPL: read a line, send it to onSubmit, print the reply.
// "/exit" or Ctrl+D quits, Ctrl+C on an empty line quits, "/reset" clears the history.
func RunChat(rl LineReader, out io.Writer, name string, conv *Conversation, onSubmit func(line string, history []core.Turn) (Reply, error)) error {
	fmt.Fprintf(out, "%s chat (Enter to send, /reset to forget, /exit to quit)\n\n", name)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			conv.Reset()
			fmt.Fprintln(out, "(history cleared)")
			continue
		}

		reply, err := onSubmit(line, conv.History())
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		record := reply.Record
		if record == "" {
			record = reply.Text
		}
		conv.Add(line, record)
		fmt.Fprintf(out, "%s: %s\n\n", name, reply.Text)
	}
}

// Conversation keeps the last MaxTurns user/assistant turns of a chat session.
type Conversation struct {
	MaxTurns int

	mu    sync.Mutex
	turns []core.Turn
}

func NewConversation(maxTurns int) *Conversation {
	return &Conversation{MaxTurns: maxTurns}
}

// Add appends one exchange and drops the oldest turns beyond MaxTurns.
func (c *Conversation) Add(user, assistant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns,
		core.Turn{Role: core.RoleUser, Content: user},
		core.Turn{Role: core.RoleAssistant, Content: assistant},
	)
	if c.MaxTurns > 0 && len(c.turns) > c.MaxTurns {
		c.turns = append([]core.Turn(nil), c.turns[len(c.turns)-c.MaxTurns:]...)
	}
}

// History returns a copy of the retained turns, oldest first.
func (c *Conversation) History() []core.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Turn(nil), c.turns...)
}

func (c *Conversation) Reset() {
	c.mu.Lock()
	c.turns = nil
	c.mu.Unlock()
}
