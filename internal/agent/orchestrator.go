// Package agent selects tools for an utterance with the model, runs them and turns the
// results into a reply.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hattiebot/toolpilot/internal/aggregator"
	"github.com/hattiebot/toolpilot/internal/catalog"
	"github.com/hattiebot/toolpilot/internal/core"
	"github.com/hattiebot/toolpilot/internal/enhancer"
	"github.com/hattiebot/toolpilot/internal/intent"
	"github.com/hattiebot/toolpilot/internal/toolname"
)

// Outcome is how a round ended.
type Outcome string

const (
	OutcomeDirect   Outcome = "direct"
	OutcomeTool     Outcome = "tool"
	OutcomeCalendar Outcome = "calendar"
	OutcomeFailure  Outcome = "failure"
)

// ToolCatalog is the part of the catalog the orchestrator uses.
type ToolCatalog interface {
	List() []catalog.Descriptor
	Invoke(ctx context.Context, fullName string, args map[string]any) (json.RawMessage, error)
}

// ToolHealth reports tools that have been failing.
type ToolHealth interface {
	BrokenTools(ctx context.Context) ([]string, error)
}

// Request carries the caller's identity and conversation.
type Request struct {
	UserID  string
	History []core.Turn
}

// InvocationResult is one tool call made during a round.
type InvocationResult struct {
	ID          string          `json:"id"`
	CallID      string          `json:"call_id"`
	Tool        string          `json:"tool"`
	Name        string          `json:"name"`
	ConnectorID string          `json:"connector_id,omitempty"`
	Arguments   map[string]any  `json:"arguments,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	Duration    time.Duration   `json:"duration"`
}

// OK reports whether the invocation succeeded.
func (r InvocationResult) OK() bool { return r.Error == "" }

// Result is what SelectAndExecute returns. Response is never empty.
type Result struct {
	Response   string             `json:"response"`
	ToolCalled string             `json:"tool_called,omitempty"`
	AllResults []InvocationResult `json:"all_results,omitempty"`
	Error      string             `json:"error,omitempty"`
	Outcome    Outcome            `json:"outcome"`
	// Events are the calendar entries read this round, when calendar lookups ran.
	Events []aggregator.Event `json:"events,omitempty"`
}

// Transcript is Response plus the ids of listed events it does not mention, one per
// line, for storing in conversation history so a follow-up can point at them.
func (r Result) Transcript() string {
	var b strings.Builder
	b.WriteString(r.Response)
	for _, ev := range r.Events {
		if ev.ID == "" || strings.Contains(r.Response, ev.ID) {
			continue
		}
		fmt.Fprintf(&b, "\n- %s at %s (%s, id: %s)", ev.Title, ev.StartTime, ev.SourceService, ev.ID)
	}
	return b.String()
}

const (
	defaultMaxParallel = 4
	defaultToolTimeout = 30 * time.Second

	emptyCatalogReply = "I'm sorry, I don't have any connected services right now, so I can't do that yet. Connect a calendar, email or other account and try again."
	emptyModelReply   = "I'm not sure how to help with that. Could you rephrase?"
	internalErrReply  = "I'm sorry, something went wrong while handling that request. Please try again."
	cancelledReply    = "The request was cancelled before the results came back."
)

// Orchestrator runs one selection round per call. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	catalog    ToolCatalog
	client     core.LLMClient
	aggregator *aggregator.Aggregator
	health     ToolHealth

	log         zerolog.Logger
	now         func() time.Time
	maxParallel int
	toolTimeout time.Duration
	markers     []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l zerolog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

func WithToolTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.toolTimeout = d
		}
	}
}

func WithCalendarMarkers(markers []string) Option {
	return func(o *Orchestrator) {
		if len(markers) > 0 {
			o.markers = markers
		}
	}
}

// WithAggregator sets the calendar aggregator, typically one whose parser registry the
// connector manager fills.
func WithAggregator(a *aggregator.Aggregator) Option { return func(o *Orchestrator) { o.aggregator = a } }

func WithToolHealth(h ToolHealth) Option { return func(o *Orchestrator) { o.health = h } }

// New builds an orchestrator over cat and client.
func New(cat ToolCatalog, client core.LLMClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:     cat,
		client:      client,
		log:         zerolog.Nop(),
		now:         time.Now,
		maxParallel: defaultMaxParallel,
		toolTimeout: defaultToolTimeout,
		markers:     aggregator.DefaultCalendarMarkers,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With().Str("component", "agent").Logger()
	if o.aggregator == nil {
		o.aggregator = aggregator.New(client, nil, o.log)
	}
	return o
}

// SelectAndExecute answers userMessage: the model picks tools from the current catalog,
// they run in parallel and the results are summarised. It never returns an empty
// Response; failures are described in Error and Outcome.
func (o *Orchestrator) SelectAndExecute(ctx context.Context, userMessage string, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Msg("select and execute panicked")
			res = Result{Response: internalErrReply, Error: fmt.Sprintf("panic: %v", r), Outcome: OutcomeFailure}
		}
	}()

	analysis := enhancer.Analyze(userMessage, req.History)
	if analysis.Message != userMessage {
		o.log.Debug().Str("enhanced", analysis.Message).Msg("utterance enhanced")
	}

	descriptors := o.catalog.List()
	if len(descriptors) == 0 {
		return Result{Response: emptyCatalogReply, Error: core.ErrCatalogEmpty.Error(), Outcome: OutcomeFailure}
	}

	named, mapping := toolname.Sanitize(descriptors)
	for _, c := range mapping.Collisions() {
		o.log.Warn().Str("name", c.Base).Strs("tools", c.FullNames).Msg("tool name collision disambiguated")
	}

	var broken []string
	if o.health != nil {
		full, err := o.health.BrokenTools(ctx)
		if err != nil {
			o.log.Warn().Err(err).Msg("could not load tool health")
		}
		for _, f := range full {
			if name, ok := mapping.NameOf(f); ok {
				broken = append(broken, name)
			}
		}
	}

	system := BuildSystemPrompt(PromptInput{
		Now:         o.now(),
		UserID:      req.UserID,
		Tools:       named,
		Utterance:   userMessage,
		Intent:      analysis.Intent,
		BrokenTools: broken,
	})
	messages := make([]core.Message, 0, len(req.History)+2)
	messages = append(messages, core.Message{Role: core.RoleSystem, Content: system})
	messages = append(messages, core.TurnsToMessages(req.History)...)
	messages = append(messages, core.Message{Role: core.RoleUser, Content: analysis.Message})

	content, calls, err := o.client.ChatCompletionWithTools(ctx, messages, toolDefinitions(named))
	if err != nil {
		o.log.Error().Err(err).Msg("tool selection failed")
		return Result{Response: userFriendlyProviderError(err), Error: err.Error(), Outcome: OutcomeFailure}
	}
	if len(calls) == 0 {
		if strings.TrimSpace(content) == "" {
			content = emptyModelReply
		}
		return Result{Response: content, Outcome: OutcomeDirect}
	}

	calls = o.applyIntentGuard(analysis, calls, named)

	results, ok := o.execute(ctx, calls, mapping)
	if !ok {
		return Result{Response: cancelledReply, Error: ctx.Err().Error(), Outcome: OutcomeFailure}
	}
	return o.respond(ctx, userMessage, analysis.Intent, messages, content, calls, results)
}

func toolDefinitions(named []toolname.Named) []core.ToolDefinition {
	defs := make([]core.ToolDefinition, 0, len(named))
	for _, n := range named {
		params := any(n.Descriptor.Parameters)
		if n.Descriptor.Parameters == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		desc := n.Descriptor.Description
		if desc == "" {
			desc = n.Descriptor.Title
		}
		defs = append(defs, core.ToolDefinition{
			Type:     "function",
			Function: core.FunctionSpec{Name: n.Name, Description: desc, Parameters: params},
		})
	}
	return defs
}

// respond picks the reply path: calendar lookups go through the aggregator, everything
// else is summarised by the model with a deterministic fallback.
func (o *Orchestrator) respond(ctx context.Context, utterance string, in intent.Class, messages []core.Message, content string, calls []core.ToolCall, results []InvocationResult) Result {
	res := Result{AllResults: results, Outcome: OutcomeTool}
	if len(results) > 0 {
		res.ToolCalled = results[0].Tool
	}

	var calendar []aggregator.Call
	var other []InvocationResult
	for _, r := range results {
		if aggregator.IsCalendarTool(r.Tool, o.markers) && isLookup(r) {
			calendar = append(calendar, aggregator.Call{Tool: r.Tool, Service: r.ConnectorID, Output: r.Output, Err: r.Error})
			continue
		}
		other = append(other, r)
	}

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	if failed == len(results) {
		res.Outcome = OutcomeFailure
		res.Error = joinErrors(results)
	}

	if len(calendar) > 0 {
		text, summary := o.aggregator.Aggregate(ctx, utterance, in, calendar)
		o.log.Info().Int("services", summary.ServicesChecked).Int("events", summary.EventCount).Msg("calendar round")
		if len(other) > 0 {
			text += "\n\n" + deterministicSummary(other)
		}
		res.Response = text
		res.Events = summary.Events
		if res.Outcome != OutcomeFailure {
			res.Outcome = OutcomeCalendar
		}
		return res
	}

	res.Response = o.summarize(ctx, messages, content, calls, results)
	return res
}

func isLookup(r InvocationResult) bool {
	name := r.Tool
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	c := intent.ToolClass(name)
	return c == intent.Read || c == intent.None
}

// summarize asks the model to describe the tool results, falling back to a
// deterministic listing.
func (o *Orchestrator) summarize(ctx context.Context, messages []core.Message, content string, calls []core.ToolCall, results []InvocationResult) string {
	msgs := append([]core.Message{}, messages...)
	msgs = append(msgs, core.Message{Role: core.RoleAssistant, Content: content, ToolCalls: calls})
	for _, r := range results {
		body := string(r.Output)
		if !r.OK() {
			body = "Error: " + r.Error
		}
		msgs = append(msgs, core.Message{Role: core.RoleTool, ToolCallID: r.CallID, Content: body})
	}
	msgs = append(msgs, core.Message{Role: core.RoleUser, Content: "Summarise the tool results above for me in plain language. Mention anything that failed."})

	reply, err := o.client.ChatCompletion(ctx, msgs)
	if err != nil {
		o.log.Warn().Err(err).Msg("result summary failed, using fallback")
		return deterministicSummary(results)
	}
	if strings.TrimSpace(reply) == "" {
		return deterministicSummary(results)
	}
	return reply
}

const maxSummaryOutput = 500

func deterministicSummary(results []InvocationResult) string {
	var b strings.Builder
	ok := 0
	for _, r := range results {
		if r.OK() {
			ok++
		}
	}
	switch {
	case ok == 0:
		b.WriteString("I tried to help, but every action failed:")
	case ok == len(results):
		b.WriteString("Here is what I got back:")
	default:
		b.WriteString("Some actions worked and some failed:")
	}
	for _, r := range results {
		if r.OK() {
			out := strings.TrimSpace(string(r.Output))
			if len(out) > maxSummaryOutput {
				out = out[:maxSummaryOutput] + "..."
			}
			if out == "" {
				out = "done"
			}
			fmt.Fprintf(&b, "\n- %s: %s", r.Tool, out)
			continue
		}
		fmt.Fprintf(&b, "\n- %s failed: %s", r.Tool, r.Error)
	}
	return b.String()
}

func joinErrors(results []InvocationResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Error != "" {
			parts = append(parts, r.Tool+": "+r.Error)
		}
	}
	return strings.Join(parts, "; ")
}

// isProviderOrAPIError reports transient provider errors that should not be shown raw.
func isProviderOrAPIError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrModelUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "provider returned error") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "504") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "temporarily unavailable")
}

func userFriendlyProviderError(err error) string {
	if isProviderOrAPIError(err) {
		return "I'm sorry, the AI provider temporarily returned an error. Please try again in a moment."
	}
	return "I'm sorry, I couldn't work out which action to take for that. Please try again."
}
