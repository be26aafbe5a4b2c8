package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hattiebot/toolpilot/internal/catalog"
	"github.com/hattiebot/toolpilot/internal/core"
	"github.com/hattiebot/toolpilot/internal/toolname"
)

// execute runs calls in parallel. Invocations run detached from ctx so dispatched side
// effects complete; if ctx ends first the results are dropped and ok is false.
func (o *Orchestrator) execute(ctx context.Context, calls []core.ToolCall, m *toolname.Mapping) (results []InvocationResult, ok bool) {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call_%d", i)
		}
	}

	results = make([]InvocationResult, len(calls))
	detached := context.WithoutCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		g := new(errgroup.Group)
		g.SetLimit(o.maxParallel)
		for i, call := range calls {
			i, call := i, call
			g.Go(func() error {
				results[i] = o.invokeOne(detached, call, m)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
		return results, true
	case <-ctx.Done():
		o.log.Warn().Err(ctx.Err()).Int("calls", len(calls)).Msg("caller gone, invocations continue in background")
		return nil, false
	}
}

// invokeOne never fails the round: every problem is recorded on the result.
func (o *Orchestrator) invokeOne(ctx context.Context, call core.ToolCall, m *toolname.Mapping) (res InvocationResult) {
	res = InvocationResult{ID: uuid.NewString(), CallID: call.ID, Name: call.Function.Name, Tool: call.Function.Name}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("panic: %v", r)
		}
		res.Duration = time.Since(start)
		ev := o.log.Debug()
		if res.Error != "" {
			ev = o.log.Warn().Str("error", res.Error)
		}
		ev.Str("tool", res.Tool).Str("invocation_id", res.ID).Dur("duration", res.Duration).Msg("invocation finished")
	}()

	fullName, found := m.Resolve(call.Function.Name)
	if !found {
		res.Error = fmt.Errorf("%w: %s", core.ErrToolNotFound, call.Function.Name).Error()
		return res
	}
	res.Tool = fullName
	if i := strings.Index(fullName, "."); i > 0 {
		res.ConnectorID = fullName[:i]
	}

	args, err := parseArguments(call.Function.Arguments)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Arguments = args

	tctx, cancel := context.WithTimeout(catalog.WithInvocationID(ctx, res.ID), o.toolTimeout)
	defer cancel()
	out, err := o.catalog.Invoke(tctx, fullName, args)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Output = out
	return res
}

func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
