package health

import (
	"sort"
	"sync"
	"time"
)

// Status values, ordered from best to worst.
const (
	StatusOK       = "ok"
	StatusUnknown  = "unknown"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LastOK    time.Time `json:"last_ok"`
	LastError time.Time `json:"last_error,omitempty"`
}

// Report aggregates health from all components.
type Report struct {
	Timestamp  time.Time         `json:"timestamp"`
	Status     string            `json:"status"`
	Components []ComponentHealth `json:"components"`
}

// Checker is implemented by components that can report their health.
type Checker interface {
	HealthCheck() ComponentHealth
}

// Registry holds health checkers for all components.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewRegistry creates a new health registry.
func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register adds a component health checker, replacing one with the same name.
func (r *Registry) Register(name string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Check runs all health checks and returns a report sorted by component name.
func (r *Registry) Check() Report {
	r.mu.RLock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]Checker, len(r.checkers))
	for k, v := range r.checkers {
		checkers[k] = v
	}
	r.mu.RUnlock()
	sort.Strings(names)

	report := Report{Timestamp: time.Now(), Status: StatusOK}
	for _, name := range names {
		h := checkers[name].HealthCheck()
		if h.Name == "" {
			h.Name = name
		}
		report.Components = append(report.Components, h)
		if rank(h.Status) > rank(report.Status) {
			report.Status = h.Status
		}
	}
	return report
}

func rank(status string) int {
	switch status {
	case StatusOK:
		return 0
	case StatusUnknown:
		return 1
	case StatusDegraded:
		return 2
	default:
		return 3
	}
}
