package catalog

import (
	"sort"
	"time"
)

// Descriptor is the catalog metadata for one operation exposed by a connector.
type Descriptor struct {
	ConnectorID    string         `json:"connector_id" yaml:"-"`
	LocalName      string         `json:"name" yaml:"name"`
	Title          string         `json:"title,omitempty" yaml:"title"`
	Description    string         `json:"description" yaml:"description"`
	Parameters     map[string]any `json:"parameters,omitempty" yaml:"parameters"` // JSON Schema
	SupportsUI     bool           `json:"supports_ui,omitempty" yaml:"supports_ui"`
	UICapabilities []string       `json:"ui_capabilities,omitempty" yaml:"ui_capabilities"`
	RegisteredAt   time.Time      `json:"registered_at" yaml:"-"`
}

// FullName is the catalog-wide identity: connectorID + "." + localName.
func (d Descriptor) FullName() string {
	return FullName(d.ConnectorID, d.LocalName)
}

// FullName joins a connector id and a local operation name.
func FullName(connectorID, localName string) string {
	return connectorID + "." + localName
}

// clone copies the mutable parts so snapshots never alias catalog state.
func (d Descriptor) clone() Descriptor {
	if d.UICapabilities != nil {
		caps := make([]string, 0, len(d.UICapabilities))
		seen := make(map[string]bool, len(d.UICapabilities))
		for _, c := range d.UICapabilities {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			caps = append(caps, c)
		}
		sort.Strings(caps)
		d.UICapabilities = caps
	}
	if d.Parameters != nil {
		params := make(map[string]any, len(d.Parameters))
		for k, v := range d.Parameters {
			params[k] = v
		}
		d.Parameters = params
	}
	return d
}
