package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hattiebot/toolpilot/internal/catalog"
	"github.com/hattiebot/toolpilot/internal/core"
)

// DescribeTool is the reserved operation a process connector answers with its tool list.
const DescribeTool = "__describe"

// request is what a process connector reads from stdin.
type request struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ProcessConnector runs a binary per invocation: JSON request on stdin, JSON result on
// stdout. A non-zero exit is a failure unless stdout holds a JSON {"error": "..."}.
type ProcessConnector struct {
	id      string
	command string
	args    []string
	env     map[string]string
	dir     string
}

func NewProcessConnector(spec Spec) *ProcessConnector {
	return &ProcessConnector{id: spec.ID, command: spec.Command, args: spec.Args, env: spec.Env, dir: spec.Dir}
}

func (p *ProcessConnector) ID() string { return p.id }

func (p *ProcessConnector) Invoke(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	in, err := json.Marshal(request{Tool: tool, Args: args})
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, p.command, p.args...)
	cmd.Dir = p.dir
	cmd.Stdin = bytes.NewReader(in)
	cmd.Env = append(os.Environ(), "TOOLPILOT_CONNECTOR_ID="+p.id)
	for k, v := range p.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	runErr := cmd.Run()

	out := bytes.TrimSpace(outBuf.Bytes())
	if msg, ok := errorField(out); ok {
		return nil, errors.New(msg)
	}
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		stderr := strings.TrimSpace(errBuf.String())
		var exit *exec.ExitError
		if errors.As(runErr, &exit) {
			return nil, fmt.Errorf("exit code %d: %s", exit.ExitCode(), stderr)
		}
		return nil, runErr
	}
	if !ValidOutput(out) {
		return nil, fmt.Errorf("%w: connector %s returned non-JSON output", core.ErrParseFailed, p.id)
	}
	return json.RawMessage(out), nil
}

// Describe asks the binary for its tool descriptors.
func (p *ProcessConnector) Describe(ctx context.Context) ([]catalog.Descriptor, error) {
	out, err := p.Invoke(ctx, DescribeTool, nil)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", p.id, err)
	}
	var body struct {
		Tools []catalog.Descriptor `json:"tools"`
	}
	if err := json.Unmarshal(out, &body); err != nil {
		return nil, fmt.Errorf("%w: describe %s: %v", core.ErrParseFailed, p.id, err)
	}
	return body.Tools, nil
}

// ValidOutput reports whether out is non-empty valid JSON.
func ValidOutput(out []byte) bool {
	trimmed := bytes.TrimSpace(out)
	return len(trimmed) > 0 && json.Valid(trimmed)
}

// errorField returns the message of a {"error": "..."} object.
func errorField(out []byte) (string, bool) {
	if len(out) == 0 || out[0] != '{' {
		return "", false
	}
	var body map[string]json.RawMessage
	if json.Unmarshal(out, &body) != nil || len(body) != 1 {
		return "", false
	}
	raw, ok := body["error"]
	if !ok {
		return "", false
	}
	var msg string
	if json.Unmarshal(raw, &msg) != nil || msg == "" {
		return "", false
	}
	return msg, true
}
