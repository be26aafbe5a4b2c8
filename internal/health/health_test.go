package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker ComponentHealth

func (s staticChecker) HealthCheck() ComponentHealth { return ComponentHealth(s) }

func TestRegistry_Check_WorstStatusWins(t *testing.T) {
	r := NewRegistry()
	r.Register("store", staticChecker{Name: "store", Status: StatusOK})
	r.Register("llm_client", staticChecker{Name: "llm_client", Status: StatusDegraded, Message: "recent error"})
	r.Register("catalog", staticChecker{Status: StatusOK})

	report := r.Check()
	require.Len(t, report.Components, 3)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "catalog", report.Components[0].Name, "empty names fall back to the registered name")
	assert.Equal(t, "llm_client", report.Components[1].Name)
}

func TestRegistry_Check_Empty(t *testing.T) {
	report := NewRegistry().Check()
	assert.Equal(t, StatusOK, report.Status)
	assert.Empty(t, report.Components)
}

func TestRegistry_Check_ErrorOutranksDegraded(t *testing.T) {
	r := NewRegistry()
	r.Register("a", staticChecker{Status: StatusDegraded})
	r.Register("b", staticChecker{Status: StatusError})
	r.Register("c", staticChecker{Status: StatusUnknown})
	assert.Equal(t, StatusError, r.Check().Status)
}
