// Package intent classifies utterances and tool names into create/read/update/delete.
package intent

import (
	"regexp"
	"strings"
)

// Class is an operation class.
type Class string

const (
	None   Class = ""
	Create Class = "create"
	Read   Class = "read"
	Update Class = "update"
	Delete Class = "delete"
)

// Rule maps a whole-word pattern to a class. Rules are checked in order; first match wins.
type Rule struct {
	Pattern *regexp.Regexp
	Class   Class
}

func words(ws ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(` + strings.Join(ws, "|") + `)\b`)
}

// UtteranceRules classify free text. Delete comes first so "cancel the meeting I created"
// is not read as a creation.
var UtteranceRules = []Rule{
	{words("delete", "remove", "cancel", "drop", "erase", "get rid of", "clear"), Delete},
	{words("update", "change", "edit", "modify", "reschedule", "move", "rename", "postpone"), Update},
	{words("create", "add", "schedule", "book", "set up", "make", "new", "send", "post", "write", "draft", "invite"), Create},
	{words("list", "show", "what", "when", "do i have", "find", "search", "get", "check", "any", "read", "view", "see"), Read},
}

// ToolRules classify connector-local tool names such as "list_events" or "deleteEvent".
var ToolRules = []Rule{
	{regexp.MustCompile(`(?i)(delete|remove|cancel|destroy)`), Delete},
	{regexp.MustCompile(`(?i)(update|edit|modify|patch|reschedule|move)`), Update},
	{regexp.MustCompile(`(?i)(create|add|insert|new|send|post|schedule|book)`), Create},
	{regexp.MustCompile(`(?i)(list|get|find|search|read|fetch|query|show|view)`), Read},
}

func match(rules []Rule, s string) Class {
	for _, r := range rules {
		if r.Pattern.MatchString(s) {
			return r.Class
		}
	}
	return None
}

// negation matches a negating word followed by at most two words, anchored at the end of
// the text that precedes a verb ("don't delete", "do not ever remove").
var negation = regexp.MustCompile(`(?i)\b(?:not|never|without|no need to|don[’']?t|doesn[’']?t|didn[’']?t|can[’']?t|cannot|won[’']?t|shouldn[’']?t)\s+(?:\w+\s+){0,2}$`)

// Classify returns the intent expressed by an utterance, or None. Negated verbs
// ("don't delete anything") do not count.
func Classify(utterance string) Class {
	for _, r := range UtteranceRules {
		for _, loc := range r.Pattern.FindAllStringIndex(utterance, -1) {
			if !negation.MatchString(utterance[:loc[0]]) {
				return r.Class
			}
		}
	}
	return None
}

// ToolClass returns the class of a tool from its local (or sanitized) name.
func ToolClass(name string) Class {
	return match(ToolRules, name)
}

// Describe renders a class for prompts.
func (c Class) Describe() string {
	switch c {
	case Create:
		return "create something new"
	case Read:
		return "look up existing information"
	case Update:
		return "change something that exists"
	case Delete:
		return "delete or cancel something that exists"
	default:
		return "unclear"
	}
}

// Mutating reports whether the class changes state.
func (c Class) Mutating() bool {
	return c == Create || c == Update || c == Delete
}
