package query

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/repository"
)

func sampleTask() domain.Task {
	return domain.Task{
		ID:               "t1",
		Name:             "write report",
		Description:      "quarterly numbers",
		Deadline:         time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		AssignedUserName: domain.UnassignedName,
	}
}

func TestProjectZeroIsPassThrough(t *testing.T) {
	task := sampleTask()
	out, err := Project(repository.Projection{}, task)
	require.NoError(t, err)
	assert.Equal(t, task, out)
}

func TestProjectIncludeKeepsID(t *testing.T) {
	out, err := Project(repository.Projection{Include: []string{"name"}}, sampleTask())
	require.NoError(t, err)

	doc, ok := out.(map[string]json.RawMessage)
	require.True(t, ok)
	assert.Contains(t, doc, "name")
	assert.Contains(t, doc, "id")
	assert.NotContains(t, doc, "description")
}

func TestProjectIncludeWithIDExcluded(t *testing.T) {
	p := repository.Projection{Include: []string{"name"}, Exclude: []string{"id"}}
	out, err := Project(p, sampleTask())
	require.NoError(t, err)

	doc, ok := out.(map[string]json.RawMessage)
	require.True(t, ok)
	assert.Contains(t, doc, "name")
	assert.NotContains(t, doc, "id")
}

func TestProjectExclude(t *testing.T) {
	out, err := Project(repository.Projection{Exclude: []string{"description"}}, sampleTask())
	require.NoError(t, err)

	doc, ok := out.(map[string]json.RawMessage)
	require.True(t, ok)
	assert.Contains(t, doc, "id")
	assert.Contains(t, doc, "name")
	assert.NotContains(t, doc, "description")
}

func TestProjectSlice(t *testing.T) {
	tasks := []domain.Task{sampleTask(), sampleTask()}
	out, err := Project(repository.Projection{Include: []string{"name"}}, tasks)
	require.NoError(t, err)

	docs, ok := out.([]map[string]json.RawMessage)
	require.True(t, ok)
	require.Len(t, docs, 2)
	for _, doc := range docs {
		assert.Contains(t, doc, "name")
		assert.NotContains(t, doc, "deadline")
	}
}
