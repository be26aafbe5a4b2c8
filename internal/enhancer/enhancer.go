// Package enhancer rewrites follow-up utterances ("delete it") so they name what the
// previous assistant answer was about.
package enhancer

import (
	"regexp"
	"strings"

	"github.com/hattiebot/toolpilot/internal/core"
	"github.com/hattiebot/toolpilot/internal/intent"
	"github.com/hattiebot/toolpilot/internal/timeexpr"
)

// Referent is what an anaphoric utterance points at.
type Referent string

const (
	ReferentNone     Referent = ""
	ReferentCalendar Referent = "calendar"
	ReferentLinkedIn Referent = "linkedin"
	ReferentEmail    Referent = "email"
	ReferentItem     Referent = "item"
)

// Analysis is the full result of looking at an utterance against the conversation.
type Analysis struct {
	Message  string
	Intent   intent.Class
	Referent Referent
	Date     string
	ID       string
}

var anaphora = regexp.MustCompile(`(?i)\b(it|them|those|these|they|that one|this one)\b`)

var (
	calendarWords = regexp.MustCompile(`(?i)\b(events?|calendar|meetings?|appointments?)\b`)
	linkedInWords = regexp.MustCompile(`(?i)\b(posts?|linkedin)\b`)
	emailWords    = regexp.MustCompile(`(?i)\b(e-?mails?|messages?|inbox)\b`)

	idWithSep = regexp.MustCompile(`(?i)"?\b(?:event_?)?id"?\s*[:=]\s*"?([A-Za-z0-9](?:[A-Za-z0-9_\-@.]*[A-Za-z0-9])?)`)
	idBare    = regexp.MustCompile(`\b(?:ID|Id|id)\s+([A-Za-z0-9_\-]*\d[A-Za-z0-9_\-]*)`)
)

// HasAnaphora reports whether the utterance refers back to something.
func HasAnaphora(s string) bool {
	return anaphora.MatchString(s)
}

// LastAssistant returns the content of the most recent assistant turn.
func LastAssistant(history []core.Turn) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == core.RoleAssistant && strings.TrimSpace(history[i].Content) != "" {
			return history[i].Content, true
		}
	}
	return "", false
}

// FindID extracts an identifier from text such as `id: abc`, `"id":"abc"` or `ID abc123`.
func FindID(text string) string {
	if ids := findIDs(text); len(ids) > 0 {
		return ids[0].id
	}
	return ""
}

type idMatch struct {
	id         string
	start, end int
}

// findIDs returns every identifier in text. Explicit `id: x` forms win over bare `ID x`.
func findIDs(text string) []idMatch {
	var out []idMatch
	for _, re := range []*regexp.Regexp{idWithSep, idBare} {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			out = append(out, idMatch{id: text[loc[2]:loc[3]], start: loc[0], end: loc[1]})
		}
		if len(out) > 0 {
			break
		}
	}
	return out
}

// ReferencedID returns the identifier in prev that userMessage points at, or "" when that
// is not clear. An id is chosen when the message names only its entry (a word or clock
// time leading up to it on the same line), or when the message refers back with a
// pronoun and prev holds exactly one id.
func ReferencedID(userMessage, prev string) string {
	ids := findIDs(prev)
	if len(ids) == 0 {
		return ""
	}
	if id, ok := namedID(userMessage, prev, ids); ok {
		return id
	}
	if !HasAnaphora(userMessage) {
		return ""
	}
	first := ids[0].id
	for _, m := range ids[1:] {
		if m.id != first {
			return ""
		}
	}
	return first
}

func namedID(userMessage, prev string, ids []idMatch) (string, bool) {
	keywords := significantWords(userMessage)
	clocks := timeexpr.Clocks(userMessage)
	if len(keywords) == 0 && len(clocks) == 0 {
		return "", false
	}
	matched := ""
	from := 0
	for _, m := range ids {
		start := from
		if nl := strings.LastIndex(prev[:m.start], "\n"); nl+1 > start {
			start = nl + 1
		}
		entry := prev[start:m.end]
		from = m.end
		if !mentions(entry, keywords, clocks) {
			continue
		}
		if matched != "" && matched != m.id {
			return "", false
		}
		matched = m.id
	}
	return matched, matched != ""
}

func mentions(entry string, keywords map[string]bool, clocks []string) bool {
	for w := range significantWords(entry) {
		if keywords[w] {
			return true
		}
	}
	for _, c := range timeexpr.Clocks(entry) {
		for _, want := range clocks {
			if c == want {
				return true
			}
		}
	}
	return false
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_-]+`)

// stopWords are too common in requests and listings to identify an entry.
var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`a an the my me i you your our we us it its them those these they that this
		one ones please can could would will just now so up off to for of on at in by with and or but
		is are was be do does did have has any anything all every everything some what which when
		delete remove cancel drop erase get rid clear update change edit modify reschedule move rename
		postpone create add schedule book set make new show list find see view check read
		event events meeting meetings appointment appointments calendar call calls item items entry
		today tonight tomorrow yesterday morning afternoon evening next week day am pm id`) {
		stopWords[w] = true
	}
}

// significantWords returns the lower-cased words of s that could name a specific entry.
func significantWords(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		if len(w) < 2 || stopWords[w] || strings.Trim(w, "0123456789") == "" {
			continue
		}
		out[w] = true
	}
	return out
}

// Enhance returns the utterance with a back-reference clause appended, or unchanged when
// there is nothing to resolve.
func Enhance(userMessage string, history []core.Turn) string {
	return Analyze(userMessage, history).Message
}

// Analyze is Enhance plus the facts it found, for callers that act on the referent.
func Analyze(userMessage string, history []core.Turn) Analysis {
	a := Analysis{Message: userMessage, Intent: intent.Classify(userMessage)}
	prev, ok := LastAssistant(history)
	if !ok {
		return a
	}
	a.ID = ReferencedID(userMessage, prev)
	if !HasAnaphora(userMessage) {
		return a
	}

	var clause string
	switch {
	case calendarWords.MatchString(prev):
		a.Referent = ReferentCalendar
		a.Date = timeexpr.FindDate(prev)
		if a.Date != "" {
			clause = "referring to the calendar events on " + a.Date + " that were just shown in the previous response"
		} else {
			clause = "referring to the calendar events that were just shown in the previous response"
		}
	case linkedInWords.MatchString(prev):
		a.Referent = ReferentLinkedIn
		clause = "referring to the LinkedIn post(s) from the previous response"
	case emailWords.MatchString(prev):
		a.Referent = ReferentEmail
		clause = "referring to the email(s) from the previous response"
	case a.ID != "":
		a.Referent = ReferentItem
		clause = "referring to the item from the previous response"
	default:
		return a
	}
	if a.ID != "" {
		clause += " [id: " + a.ID + "]"
	}
	a.Message = strings.TrimRight(userMessage, " ") + " (" + clause + ")"
	return a
}
