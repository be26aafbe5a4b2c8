package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// FixtureConnector answers from canned responses keyed by tool name. A response of the
// form {"error": "..."} is returned as a failure.
type FixtureConnector struct {
	id        string
	responses map[string]json.RawMessage
}

func NewFixtureConnector(id string, responses map[string]any) (*FixtureConnector, error) {
	f := &FixtureConnector{id: id, responses: make(map[string]json.RawMessage, len(responses))}
	for tool, v := range responses {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("fixture %s.%s: %w", id, tool, err)
		}
		f.responses[tool] = raw
	}
	return f, nil
}

func (f *FixtureConnector) ID() string { return f.id }

func (f *FixtureConnector) Invoke(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, ok := f.responses[tool]
	if !ok {
		return nil, fmt.Errorf("no fixture response for %s", tool)
	}
	if msg, isErr := errorField(raw); isErr {
		return nil, errors.New(msg)
	}
	return raw, nil
}
