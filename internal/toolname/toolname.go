// Package toolname maps catalog full names to identifiers accepted by function-calling
// APIs and back.
package toolname

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hattiebot/toolpilot/internal/catalog"
)

// MaxLen is the longest identifier OpenAI-compatible providers accept.
const MaxLen = 64

var invalidChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Named pairs a descriptor with the identifier exposed to the model this round.
type Named struct {
	Name       string
	Descriptor catalog.Descriptor
}

// Collision records distinct full names that shared one base identifier.
type Collision struct {
	Base      string
	FullNames []string
}

// Mapping resolves sanitized identifiers back to full names. Built per round.
type Mapping struct {
	byName     map[string]string
	byFull     map[string]string
	collisions []Collision
}

// Resolve returns the full name for a sanitized identifier.
func (m *Mapping) Resolve(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	full, ok := m.byName[name]
	return full, ok
}

// NameOf returns the identifier a full name is exposed under this round.
func (m *Mapping) NameOf(fullName string) (string, bool) {
	if m == nil {
		return "", false
	}
	name, ok := m.byFull[fullName]
	return name, ok
}

// Collisions lists the base identifiers that had to be disambiguated.
func (m *Mapping) Collisions() []Collision {
	if m == nil {
		return nil
	}
	return m.collisions
}

// Len returns the number of mapped identifiers.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byName)
}

// Base strips everything up to and including the first "." and replaces characters
// outside [A-Za-z0-9_-] with "_".
func Base(fullName string) string {
	if i := strings.Index(fullName, "."); i >= 0 {
		fullName = fullName[i+1:]
	}
	return clean(fullName)
}

func clean(s string) string {
	s = invalidChars.ReplaceAllString(s, "_")
	if s == "" {
		s = "_"
	}
	if len(s) > MaxLen {
		s = s[:MaxLen]
	}
	return s
}

// Sanitize assigns each descriptor a unique identifier. Names stay short (connector
// prefix dropped) unless two connectors expose the same base name, in which case every
// colliding entry gets a connector tag; remaining clashes get a numeric suffix.
func Sanitize(descriptors []catalog.Descriptor) ([]Named, *Mapping) {
	sorted := make([]catalog.Descriptor, 0, len(descriptors))
	seenFull := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if seenFull[d.FullName()] {
			continue
		}
		seenFull[d.FullName()] = true
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FullName() < sorted[j].FullName() })

	groups := make(map[string][]int)
	for i, d := range sorted {
		b := Base(d.FullName())
		groups[b] = append(groups[b], i)
	}

	m := &Mapping{byName: make(map[string]string, len(sorted)), byFull: make(map[string]string, len(sorted))}
	candidates := make([]string, len(sorted))
	bases := make([]string, 0, len(groups))
	for b := range groups {
		bases = append(bases, b)
	}
	sort.Strings(bases)
	for _, b := range bases {
		idx := groups[b]
		if len(idx) == 1 {
			candidates[idx[0]] = b
			continue
		}
		c := Collision{Base: b}
		for _, i := range idx {
			c.FullNames = append(c.FullNames, sorted[i].FullName())
			candidates[i] = clean(sorted[i].ConnectorID + "_" + b)
		}
		m.collisions = append(m.collisions, c)
	}

	out := make([]Named, 0, len(sorted))
	for i, d := range sorted {
		name := candidates[i]
		for n := 2; ; n++ {
			if _, taken := m.byName[name]; !taken {
				break
			}
			suffix := "_" + strconv.Itoa(n)
			stem := candidates[i]
			if len(stem)+len(suffix) > MaxLen {
				stem = stem[:MaxLen-len(suffix)]
			}
			name = stem + suffix
		}
		m.byName[name] = d.FullName()
		m.byFull[d.FullName()] = name
		out = append(out, Named{Name: name, Descriptor: d})
	}
	return out, m
}
