package connectors

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/hattiebot/toolpilot/internal/core"
)

// suffixReserve is runes kept back for the wrapper object around a truncated preview.
const suffixReserve = 80

// Truncating caps connector output at MaxRunes runes. Oversized output is replaced by
// a JSON object carrying a preview, so the result stays valid JSON.
type Truncating struct {
	core.Connector
	MaxRunes int
}

type truncated struct {
	Truncated  bool   `json:"truncated"`
	TotalRunes int    `json:"total_runes"`
	Preview    string `json:"preview"`
}

func (t Truncating) Invoke(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	out, err := t.Connector.Invoke(ctx, tool, args)
	if err != nil {
		return nil, err
	}
	return TruncateOutput(out, t.MaxRunes), nil
}

// TruncateOutput returns out unchanged when it fits in maxRunes (or maxRunes <= 0).
func TruncateOutput(out json.RawMessage, maxRunes int) json.RawMessage {
	if maxRunes <= 0 {
		return out
	}
	n := utf8.RuneCount(out)
	if n <= maxRunes {
		return out
	}
	keep := maxRunes - suffixReserve
	if keep <= 0 {
		keep = 1
	}
	r := []rune(string(out))
	raw, err := json.Marshal(truncated{Truncated: true, TotalRunes: n, Preview: string(r[:keep])})
	if err != nil {
		return out
	}
	return raw
}
