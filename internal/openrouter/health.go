package openrouter

import (
	"sync"
	"time"

	"github.com/hattiebot/toolpilot/internal/health"
)

// Health tracks call outcomes for one client.
type Health struct {
	mu           sync.RWMutex
	lastSuccess  time.Time
	lastError    time.Time
	lastErrorMsg string
	successCount int64
	errorCount   int64
}

// RecordSuccess records a successful API call.
func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSuccess = time.Now()
	h.successCount++
}

// RecordError records a failed API call.
func (h *Health) RecordError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastError = time.Now()
	h.lastErrorMsg = err.Error()
	h.errorCount++
}

// Counts returns success and error totals.
func (h *Health) Counts() (success, errors int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.successCount, h.errorCount
}

// Health returns the client's tracker.
func (c *Client) Health() *Health { return c.health }

// HealthCheck returns the health status of the LLM client.
func (c *Client) HealthCheck() health.ComponentHealth {
	h := c.health
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := health.ComponentHealth{
		Name:   "llm_client",
		Status: health.StatusOK,
		LastOK: h.lastSuccess,
	}
	if !h.lastError.IsZero() {
		if h.lastError.After(h.lastSuccess) {
			out.Status = health.StatusError
			out.Message = h.lastErrorMsg
			out.LastError = h.lastError
		} else if time.Since(h.lastError) < 5*time.Minute {
			out.Status = health.StatusDegraded
			out.Message = "recent error: " + h.lastErrorMsg
			out.LastError = h.lastError
		}
	}
	if h.lastSuccess.IsZero() && h.lastError.IsZero() {
		out.Status = health.StatusUnknown
		out.Message = "no API calls yet"
	}
	return out
}
