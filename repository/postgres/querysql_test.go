package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/repository"
)

func TestBuildWhereEmpty(t *testing.T) {
	var args []interface{}
	clause, err := buildWhere(nil, &args)
	require.NoError(t, err)
	assert.Equal(t, "TRUE", clause)
	assert.Empty(t, args)
}

func TestBuildWhereString(t *testing.T) {
	var args []interface{}
	clause, err := buildWhere([]repository.Condition{
		{Field: "name", Op: repository.OpEq, Value: "alpha"},
	}, &args)
	require.NoError(t, err)
	assert.Equal(t, "doc->>'name' = $1", clause)
	assert.Equal(t, []interface{}{"alpha"}, args)
}

func TestBuildWhereNumeric(t *testing.T) {
	var args []interface{}
	clause, err := buildWhere([]repository.Condition{
		{Field: "priority", Op: repository.OpGte, Value: float64(3)},
	}, &args)
	require.NoError(t, err)
	assert.Equal(t, "(doc->>'priority')::numeric >= $1", clause)
}

func TestBuildWhereBool(t *testing.T) {
	var args []interface{}
	clause, err := buildWhere([]repository.Condition{
		{Field: "completed", Op: repository.OpEq, Value: true},
	}, &args)
	require.NoError(t, err)
	assert.Equal(t, "(doc->>'completed')::boolean = $1", clause)

	_, err = buildWhere([]repository.Condition{
		{Field: "completed", Op: repository.OpGt, Value: true},
	}, &args)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeBadQuery))
}

func TestBuildWhereIn(t *testing.T) {
	var args []interface{}
	clause, err := buildWhere([]repository.Condition{
		{Field: "name", Op: repository.OpIn, Value: []interface{}{"a", float64(2), true}},
	}, &args)
	require.NoError(t, err)
	assert.Equal(t, "doc->>'name' = ANY($1)", clause)
	require.Len(t, args, 1)
	assert.Equal(t, []string{"a", "2", "true"}, args[0])
}

func TestBuildWhereMultipleConditions(t *testing.T) {
	var args []interface{}
	clause, err := buildWhere([]repository.Condition{
		{Field: "completed", Op: repository.OpEq, Value: false},
		{Field: "name", Op: repository.OpNe, Value: "x"},
	}, &args)
	require.NoError(t, err)
	assert.Equal(t, "(doc->>'completed')::boolean = $1 AND doc->>'name' <> $2", clause)
	assert.Len(t, args, 2)
}

func TestBuildWhereRejectsBadField(t *testing.T) {
	var args []interface{}
	_, err := buildWhere([]repository.Condition{
		{Field: "name'; DROP TABLE tasks; --", Op: repository.OpEq, Value: "x"},
	}, &args)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeBadQuery))
}

func TestBuildOrderBy(t *testing.T) {
	clause, err := buildOrderBy([]repository.SortField{
		{Field: "deadline", Desc: true},
		{Field: "name"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY doc->>'deadline' DESC, doc->>'name' ASC", clause)

	clause, err = buildOrderBy(nil)
	require.NoError(t, err)
	assert.Empty(t, clause)
}

func TestBuildOrderByRejectsBadField(t *testing.T) {
	_, err := buildOrderBy([]repository.SortField{{Field: "a b"}})
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeBadQuery))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, repository.DefaultLimit, clampLimit(0))
	assert.Equal(t, repository.DefaultLimit, clampLimit(-1))
	assert.Equal(t, repository.DefaultLimit, clampLimit(repository.DefaultLimit+1))
	assert.Equal(t, 10, clampLimit(10))
}
