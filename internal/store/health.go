package store

import (
	"fmt"
	"time"

	"github.com/hattiebot/toolpilot/internal/health"
)

// HealthCheck returns the health status of the database.
func (db *DB) HealthCheck() health.ComponentHealth {
	h := health.ComponentHealth{
		Name:   "store",
		Status: health.StatusOK,
	}
	if err := db.Ping(); err != nil {
		h.Status = health.StatusError
		h.Message = err.Error()
		h.LastError = time.Now()
		return h
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM invocations").Scan(&count); err != nil {
		h.Status = health.StatusDegraded
		h.Message = "cannot query invocations: " + err.Error()
		h.LastError = time.Now()
		return h
	}
	h.Message = fmt.Sprintf("%d invocations logged", count)
	h.LastOK = time.Now()
	return h
}
