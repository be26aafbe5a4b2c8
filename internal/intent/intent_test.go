package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want Class
	}{
		{"delete it", Delete},
		{"Cancel the meeting I created yesterday", Delete},
		{"please remove them", Delete},
		{"reschedule my 3pm to 4pm", Update},
		{"schedule a call with Sam tomorrow at 3pm", Create},
		{"Post this on LinkedIn", Create},
		{"do I have anything on the 25th?", Read},
		{"show my emails", Read},
		{"thanks!", None},
		{"undeleted", None},
		{"cancel my 3pm meeting today", Delete},
		{"show me my events but don't delete anything", Read},
		{"do not remove it, just list them", Read},
		{"no need to cancel, what's on tomorrow?", Read},
		{"I can't make it, cancel it", Delete},
		{"never delete anything", None},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}

func TestToolClass(t *testing.T) {
	tests := []struct {
		in   string
		want Class
	}{
		{"list_events", Read},
		{"google_calendar_find_event", Read},
		{"deleteEvent", Delete},
		{"cancel_booking", Delete},
		{"create_event", Create},
		{"send_email", Create},
		{"update_event", Update},
		{"ping", None},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ToolClass(tt.in))
		})
	}
}

func TestClassHelpers(t *testing.T) {
	assert.True(t, Delete.Mutating())
	assert.False(t, Read.Mutating())
	assert.False(t, None.Mutating())
	assert.Equal(t, "unclear", None.Describe())
	assert.Contains(t, Delete.Describe(), "delete")
}
