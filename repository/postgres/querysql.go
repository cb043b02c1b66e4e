package postgres

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/repository"
)

// The translator already restricts field names; this is the storage layer's
// own guard against anything reaching SQL text interpolation.
var fieldRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var sqlOps = map[repository.Op]string{
	repository.OpEq:  "=",
	repository.OpNe:  "<>",
	repository.OpGt:  ">",
	repository.OpGte: ">=",
	repository.OpLt:  "<",
	repository.OpLte: "<=",
}

// buildWhere renders the query conditions as a SQL predicate over the jsonb
// doc column, appending bind values to args. An empty condition list renders
// as TRUE so callers can splice the result unconditionally.
func buildWhere(conds []repository.Condition, args *[]interface{}) (string, error) {
	if len(conds) == 0 {
		return "TRUE", nil
	}

	clauses := make([]string, 0, len(conds))
	for _, cond := range conds {
		clause, err := buildCondition(cond, args)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), nil
}

func buildCondition(cond repository.Condition, args *[]interface{}) (string, error) {
	if !fieldRe.MatchString(cond.Field) {
		return "", domain.NewError(domain.ErrCodeBadQuery, fmt.Sprintf("unsupported field name %q", cond.Field))
	}
	accessor := fmt.Sprintf("doc->>'%s'", cond.Field)

	if cond.Op == repository.OpIn {
		values, ok := cond.Value.([]interface{})
		if !ok {
			return "", domain.NewError(domain.ErrCodeBadQuery, "$in needs an array operand")
		}
		texts := make([]string, len(values))
		for i, v := range values {
			texts[i] = textValue(v)
		}
		*args = append(*args, texts)
		return fmt.Sprintf("%s = ANY($%d)", accessor, len(*args)), nil
	}

	op, ok := sqlOps[cond.Op]
	if !ok {
		return "", domain.NewError(domain.ErrCodeBadQuery, fmt.Sprintf("unsupported operator %q", cond.Op))
	}

	switch v := cond.Value.(type) {
	case float64:
		*args = append(*args, v)
		return fmt.Sprintf("(%s)::numeric %s $%d", accessor, op, len(*args)), nil
	case bool:
		if op != "=" && op != "<>" {
			return "", domain.NewError(domain.ErrCodeBadQuery, fmt.Sprintf("operator %q not defined for booleans", cond.Op))
		}
		*args = append(*args, v)
		return fmt.Sprintf("(%s)::boolean %s $%d", accessor, op, len(*args)), nil
	case string:
		*args = append(*args, v)
		return fmt.Sprintf("%s %s $%d", accessor, op, len(*args)), nil
	default:
		return "", domain.NewError(domain.ErrCodeBadQuery, fmt.Sprintf("unsupported operand type %T", cond.Value))
	}
}

// buildOrderBy renders the sort spec; documents compare on the text form of
// each field, which orders RFC3339 timestamps correctly as well.
func buildOrderBy(sortSpec []repository.SortField) (string, error) {
	if len(sortSpec) == 0 {
		return "", nil
	}
	terms := make([]string, 0, len(sortSpec))
	for _, s := range sortSpec {
		if !fieldRe.MatchString(s.Field) {
			return "", domain.NewError(domain.ErrCodeBadQuery, fmt.Sprintf("unsupported field name %q", s.Field))
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		terms = append(terms, fmt.Sprintf("doc->>'%s' %s", s.Field, dir))
	}
	return "ORDER BY " + strings.Join(terms, ", "), nil
}

func textValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(v)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > repository.DefaultLimit {
		return repository.DefaultLimit
	}
	return limit
}
