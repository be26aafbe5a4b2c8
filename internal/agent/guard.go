package agent

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/hattiebot/toolpilot/internal/core"
	"github.com/hattiebot/toolpilot/internal/enhancer"
	"github.com/hattiebot/toolpilot/internal/intent"
	"github.com/hattiebot/toolpilot/internal/toolname"
)

const defaultIDParam = "eventId"

// applyIntentGuard rewrites a read-only selection into a delete when the user asked to
// delete something, the connector has a delete tool and the analysis pinned down which
// entry the user meant. Without a resolved id the model's selection is kept.
func (o *Orchestrator) applyIntentGuard(a enhancer.Analysis, calls []core.ToolCall, named []toolname.Named) []core.ToolCall {
	if a.Intent != intent.Delete || a.ID == "" {
		return calls
	}
	byName := make(map[string]toolname.Named, len(named))
	for _, n := range named {
		byName[n.Name] = n
	}
	for _, c := range calls {
		n, ok := byName[c.Function.Name]
		if !ok || intent.ToolClass(n.Descriptor.LocalName) != intent.Read {
			return calls
		}
	}

	out := make([]core.ToolCall, 0, len(calls))
	rewritten := map[string]bool{}
	for _, c := range calls {
		connector := byName[c.Function.Name].Descriptor.ConnectorID
		del, ok := deleteTool(named, connector)
		if !ok {
			out = append(out, c)
			continue
		}
		if rewritten[connector] {
			continue
		}
		rewritten[connector] = true
		args, _ := json.Marshal(map[string]any{idParam(del.Descriptor.Parameters): a.ID})
		o.log.Info().
			Str("from", c.Function.Name).
			Str("to", del.Name).
			Str("id", a.ID).
			Msg("delete intent: replacing read-only selection")
		c.Function = core.FunctionCall{Name: del.Name, Arguments: string(args)}
		out = append(out, c)
	}
	return out
}

func deleteTool(named []toolname.Named, connectorID string) (toolname.Named, bool) {
	for _, n := range named {
		if n.Descriptor.ConnectorID == connectorID && intent.ToolClass(n.Descriptor.LocalName) == intent.Delete {
			return n, true
		}
	}
	return toolname.Named{}, false
}

// idParam picks the schema property that holds the id: a required one first, then any
// property whose name contains "id".
func idParam(schema map[string]any) string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return defaultIDParam
	}
	var required []string
	switch req := schema["required"].(type) {
	case []string:
		required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	}
	for _, r := range required {
		if strings.Contains(strings.ToLower(r), "id") {
			return r
		}
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(strings.ToLower(k), "id") {
			return k
		}
	}
	return defaultIDParam
}
