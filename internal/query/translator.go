package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/repository"
)

// Params holds the raw list-endpoint query parameters before translation.
type Params struct {
	Where  string
	Sort   string
	Select string
	Skip   string
	Limit  string
	Count  string
}

var fieldRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var operators = map[string]repository.Op{
	"$eq":  repository.OpEq,
	"$ne":  repository.OpNe,
	"$gt":  repository.OpGt,
	"$gte": repository.OpGte,
	"$lt":  repository.OpLt,
	"$lte": repository.OpLte,
	"$in":  repository.OpIn,
}

// Translate converts caller-supplied filter, sort, projection and pagination
// parameters into a store-executable descriptor. Malformed structured input
// fails with a bad-query classification so it never surfaces as a server
// error.
func Translate(p Params) (repository.Query, error) {
	var q repository.Query

	where, err := parseWhere(p.Where)
	if err != nil {
		return q, err
	}
	q.Where = where

	sortSpec, err := parseSort(p.Sort)
	if err != nil {
		return q, err
	}
	q.Sort = sortSpec

	projection, err := parseSelect(p.Select)
	if err != nil {
		return q, err
	}
	q.Select = projection

	q.Skip = parseSkip(p.Skip)
	q.Limit = parseLimit(p.Limit)
	q.Count = p.Count == "true"

	return q, nil
}

func badQuery(what string, err error) error {
	return domain.WrapError(domain.ErrCodeBadQuery, fmt.Sprintf("malformed %s parameter", what), err)
}

func parseWhere(raw string) ([]repository.Condition, error) {
	if raw == "" {
		return nil, nil
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, badQuery("where", err)
	}

	conds := make([]repository.Condition, 0, len(fields))
	for field, value := range fields {
		if !fieldRe.MatchString(field) {
			return nil, badQuery("where", fmt.Errorf("unsupported field name %q", field))
		}
		fieldConds, err := parseFieldPredicate(field, value)
		if err != nil {
			return nil, err
		}
		conds = append(conds, fieldConds...)
	}

	// JSON object order is not observable through a map; conditions are
	// ANDed, so a stable order only matters for determinism.
	sort.Slice(conds, func(i, j int) bool {
		if conds[i].Field != conds[j].Field {
			return conds[i].Field < conds[j].Field
		}
		return conds[i].Op < conds[j].Op
	})
	return conds, nil
}

func parseFieldPredicate(field string, value json.RawMessage) ([]repository.Condition, error) {
	if scalar, ok, err := parseScalar(value); err != nil {
		return nil, badQuery("where", err)
	} else if ok {
		return []repository.Condition{{Field: field, Op: repository.OpEq, Value: scalar}}, nil
	}

	ops := make(map[string]json.RawMessage)
	if err := json.Unmarshal(value, &ops); err != nil {
		return nil, badQuery("where", fmt.Errorf("field %q: expected a scalar or an operator object", field))
	}
	if len(ops) == 0 {
		return nil, badQuery("where", fmt.Errorf("field %q: empty operator object", field))
	}

	conds := make([]repository.Condition, 0, len(ops))
	for name, operand := range ops {
		op, ok := operators[name]
		if !ok {
			return nil, badQuery("where", fmt.Errorf("field %q: unsupported operator %q", field, name))
		}
		if op == repository.OpIn {
			values, err := parseScalarList(operand)
			if err != nil {
				return nil, badQuery("where", fmt.Errorf("field %q: %w", field, err))
			}
			conds = append(conds, repository.Condition{Field: field, Op: op, Value: values})
			continue
		}
		scalar, ok, err := parseScalar(operand)
		if err != nil || !ok {
			return nil, badQuery("where", fmt.Errorf("field %q: operator %s needs a scalar operand", field, name))
		}
		conds = append(conds, repository.Condition{Field: field, Op: op, Value: scalar})
	}
	return conds, nil
}

func parseScalar(raw json.RawMessage) (interface{}, bool, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, err
	}
	switch v.(type) {
	case string, float64, bool:
		return v, true, nil
	default:
		return nil, false, nil
	}
}

func parseScalarList(raw json.RawMessage) ([]interface{}, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("$in needs an array operand")
	}
	values := make([]interface{}, 0, len(items))
	for _, item := range items {
		scalar, ok, err := parseScalar(item)
		if err != nil || !ok {
			return nil, fmt.Errorf("$in supports scalar elements only")
		}
		values = append(values, scalar)
	}
	return values, nil
}

// parseSort decodes a {"field": 1|-1} object preserving key order, which a
// plain map unmarshal would lose.
func parseSort(raw string) ([]repository.SortField, error) {
	if raw == "" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	tok, err := dec.Token()
	if err != nil {
		return nil, badQuery("sort", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, badQuery("sort", fmt.Errorf("expected a JSON object"))
	}

	var spec []repository.SortField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, badQuery("sort", err)
		}
		field, ok := keyTok.(string)
		if !ok || !fieldRe.MatchString(field) {
			return nil, badQuery("sort", fmt.Errorf("unsupported field name %v", keyTok))
		}
		valTok, err := dec.Token()
		if err != nil {
			return nil, badQuery("sort", err)
		}
		dir, ok := valTok.(float64)
		if !ok || (dir != 1 && dir != -1) {
			return nil, badQuery("sort", fmt.Errorf("field %q: direction must be 1 or -1", field))
		}
		spec = append(spec, repository.SortField{Field: field, Desc: dir == -1})
	}
	if _, err := dec.Token(); err != nil {
		return nil, badQuery("sort", err)
	}
	return spec, nil
}

func parseSelect(raw string) (repository.Projection, error) {
	var p repository.Projection
	if raw == "" {
		return p, nil
	}

	fields := make(map[string]float64)
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return p, badQuery("select", err)
	}

	for field, flag := range fields {
		if !fieldRe.MatchString(field) {
			return p, badQuery("select", fmt.Errorf("unsupported field name %q", field))
		}
		switch flag {
		case 1:
			p.Include = append(p.Include, field)
		case 0:
			p.Exclude = append(p.Exclude, field)
		default:
			return p, badQuery("select", fmt.Errorf("field %q: flag must be 0 or 1", field))
		}
	}
	sort.Strings(p.Include)
	sort.Strings(p.Exclude)

	if len(p.Include) > 0 {
		// Excluding the id while including other fields is the only
		// permitted mix.
		for _, field := range p.Exclude {
			if field != "id" {
				return repository.Projection{}, badQuery("select", fmt.Errorf("cannot mix included and excluded fields"))
			}
		}
	}
	return p, nil
}

func parseSkip(raw string) int {
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// parseLimit falls back to the default on anything unusable and clamps
// oversized values, so a caller can never page more than DefaultLimit at once.
func parseLimit(raw string) int {
	if raw == "" {
		return repository.DefaultLimit
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > repository.DefaultLimit {
		return repository.DefaultLimit
	}
	return v
}
