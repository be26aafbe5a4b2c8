// Package timeexpr turns relative date and 12-hour clock phrases into ISO values so the
// prompt can carry computed answers instead of asking the model to do arithmetic.
package timeexpr

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Kind says what a Resolution's Value holds.
type Kind string

const (
	KindDate  Kind = "date"
	KindClock Kind = "time"
)

// Resolution is one phrase found in the text and its computed value.
type Resolution struct {
	Phrase string
	Kind   Kind
	Value  string
}

func (r Resolution) String() string {
	return fmt.Sprintf("%q = %s", r.Phrase, r.Value)
}

var clockRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am\b|pm\b|a\.m\.|p\.m\.)`)

// isoClockRe matches the time part of an ISO 8601 date-time.
var isoClockRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[T ](\d{2}):(\d{2})`)

// Clock24 converts "3pm", "3:30 pm" or "12am" to "15:00:00", "15:30:00", "00:00:00".
func Clock24(s string) (string, bool) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	return clockValue(m)
}

func clockValue(m []string) (string, bool) {
	h, err := strconv.Atoi(m[1])
	if err != nil || h < 1 || h > 12 {
		return "", false
	}
	min := 0
	if m[2] != "" {
		min, _ = strconv.Atoi(m[2])
		if min > 59 {
			return "", false
		}
	}
	pm := strings.HasPrefix(strings.ToLower(m[3]), "p")
	switch {
	case h == 12 && !pm:
		h = 0
	case h != 12 && pm:
		h += 12
	}
	return fmt.Sprintf("%02d:%02d:00", h, min), true
}

func clockAt(text string, loc []int) (string, bool) {
	m := []string{text[loc[0]:loc[1]], text[loc[2]:loc[3]], "", text[loc[6]:loc[7]]}
	if loc[4] >= 0 {
		m[2] = text[loc[4]:loc[5]]
	}
	return clockValue(m)
}

// Clocks returns the 24-hour value ("15:00:00") of every 12-hour clock phrase and ISO
// date-time in text, in order of appearance.
func Clocks(text string) []string {
	type found struct {
		at int
		v  string
	}
	var all []found
	for _, loc := range clockRe.FindAllStringSubmatchIndex(text, -1) {
		if v, ok := clockAt(text, loc); ok {
			all = append(all, found{loc[0], v})
		}
	}
	for _, loc := range isoClockRe.FindAllStringSubmatchIndex(text, -1) {
		all = append(all, found{loc[0], text[loc[2]:loc[3]] + ":" + text[loc[4]:loc[5]] + ":00"})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].at < all[j].at })
	out := make([]string, len(all))
	for i, f := range all {
		out[i] = f.v
	}
	return out
}

var (
	relativeDayRe = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|yesterday)\b`)
	weekdayRe     = regexp.MustCompile(`(?i)\bnext\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	monthDayRe    = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayOfMonthRe  = regexp.MustCompile(`(?i)\b(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)(?:\s+of\s+this\s+month)?\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

type span struct{ start, end int }

func overlaps(taken []span, s span) bool {
	for _, t := range taken {
		if s.start < t.end && t.start < s.end {
			return true
		}
	}
	return false
}

// Resolve finds relative date phrases and 12-hour clock times in text, in order of
// appearance. Dates are computed against now's calendar day in now's location.
func Resolve(now time.Time, text string) []Resolution {
	type found struct {
		at int
		r  Resolution
	}
	var out []found
	var taken []span
	add := func(loc []int, r Resolution) {
		s := span{loc[0], loc[1]}
		if overlaps(taken, s) {
			return
		}
		taken = append(taken, s)
		out = append(out, found{at: loc[0], r: r})
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for _, loc := range monthDayRe.FindAllStringSubmatchIndex(text, -1) {
		name := strings.ToLower(text[loc[2]:loc[3]])
		day, _ := strconv.Atoi(text[loc[4]:loc[5]])
		d, ok := dateIn(today.Year(), months[name[:3]], day, now.Location())
		if !ok {
			continue
		}
		add(loc[:2], Resolution{Phrase: text[loc[0]:loc[1]], Kind: KindDate, Value: d.Format(dateLayout)})
	}

	for _, loc := range relativeDayRe.FindAllStringSubmatchIndex(text, -1) {
		d := today
		switch strings.ToLower(text[loc[2]:loc[3]]) {
		case "tomorrow":
			d = today.AddDate(0, 0, 1)
		case "yesterday":
			d = today.AddDate(0, 0, -1)
		}
		add(loc[:2], Resolution{Phrase: text[loc[0]:loc[1]], Kind: KindDate, Value: d.Format(dateLayout)})
	}

	for _, loc := range weekdayRe.FindAllStringSubmatchIndex(text, -1) {
		want := weekdays[strings.ToLower(text[loc[2]:loc[3]])]
		delta := (int(want) - int(today.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		add(loc[:2], Resolution{Phrase: text[loc[0]:loc[1]], Kind: KindDate, Value: today.AddDate(0, 0, delta).Format(dateLayout)})
	}

	for _, loc := range dayOfMonthRe.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[loc[2]:loc[3]])
		d, ok := dateIn(today.Year(), today.Month(), day, now.Location())
		if !ok {
			continue
		}
		add(loc[:2], Resolution{Phrase: text[loc[0]:loc[1]], Kind: KindDate, Value: d.Format(dateLayout)})
	}

	for _, loc := range clockRe.FindAllStringSubmatchIndex(text, -1) {
		v, ok := clockAt(text, loc)
		if !ok {
			continue
		}
		add(loc[:2], Resolution{Phrase: text[loc[0]:loc[1]], Kind: KindClock, Value: v})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].at < out[j].at })
	res := make([]Resolution, len(out))
	for i, f := range out {
		res[i] = f.r
	}
	return res
}

// dateIn rejects days that would roll over into the next month.
func dateIn(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if d.Month() != month {
		return time.Time{}, false
	}
	return d, true
}

// FindDate returns the first date-like phrase in text (month-day, day ordinal or ISO date).
// Used to quote the date an earlier answer was about.
func FindDate(text string) string {
	best, at := "", -1
	consider := func(loc []int) {
		if loc != nil && (at < 0 || loc[0] < at) {
			at = loc[0]
			best = strings.TrimSpace(text[loc[0]:loc[1]])
		}
	}
	consider(monthDayRe.FindStringIndex(text))
	consider(isoDateRe.FindStringIndex(text))
	if at < 0 {
		consider(dayOfMonthRe.FindStringIndex(text))
	}
	return best
}

var isoDateRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
