package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskJSONKeepsExtraAttributes(t *testing.T) {
	payload := []byte(`{
		"name": "write report",
		"deadline": "2026-09-01T00:00:00Z",
		"priority": 3,
		"labels": ["finance", "q3"]
	}`)

	var task Task
	require.NoError(t, json.Unmarshal(payload, &task))

	assert.Equal(t, "write report", task.Name)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), task.Deadline)
	require.Contains(t, task.Extra, "priority")
	require.Contains(t, task.Extra, "labels")
	assert.NotContains(t, task.Extra, "name")

	out, err := json.Marshal(task)
	require.NoError(t, err)

	doc := make(map[string]json.RawMessage)
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Contains(t, doc, "priority")
	assert.Contains(t, doc, "labels")
	assert.Contains(t, doc, "assignedUser")
	assert.NotContains(t, doc, "Version")
}

func TestTaskJSONRoundTrip(t *testing.T) {
	task := Task{
		ID:               "t1",
		Name:             "review pr",
		Deadline:         time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		Completed:        true,
		AssignedUser:     "u1",
		AssignedUserName: "Ada",
		DateCreated:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Extra:            map[string]json.RawMessage{"points": json.RawMessage("5")},
	}

	data, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Version never travels through the document.
	task.Version = 0
	assert.Equal(t, task, decoded)
}

func TestTaskIsAssigned(t *testing.T) {
	assert.False(t, (&Task{}).IsAssigned())
	assert.True(t, (&Task{AssignedUser: "u1"}).IsAssigned())

	var nilTask *Task
	assert.False(t, nilTask.IsAssigned())
}

func TestIsDomainError(t *testing.T) {
	err := NewError(ErrCodeInvalid, "bad input")
	assert.True(t, IsDomainError(err, ErrCodeInvalid))
	assert.False(t, IsDomainError(err, ErrCodeNotFound))
	assert.False(t, IsDomainError(nil, ErrCodeInvalid))

	wrapped := WrapError(ErrCodeBadQuery, "malformed where parameter", err)
	assert.True(t, IsDomainError(wrapped, ErrCodeBadQuery))
}
