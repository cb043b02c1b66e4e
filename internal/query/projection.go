package query

import (
	"encoding/json"

	"github.com/taskboard/backend/repository"
)

// Project applies a field projection to a document or a slice of documents
// by round-tripping through JSON. The id field stays included in include
// mode unless the caller excluded it explicitly.
func Project(p repository.Projection, v interface{}) (interface{}, error) {
	if p.IsZero() || v == nil {
		return v, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	if len(data) > 0 && data[0] == '[' {
		var docs []map[string]json.RawMessage
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, err
		}
		out := make([]map[string]json.RawMessage, len(docs))
		for i, doc := range docs {
			out[i] = projectDoc(p, doc)
		}
		return out, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return projectDoc(p, doc), nil
}

func projectDoc(p repository.Projection, doc map[string]json.RawMessage) map[string]json.RawMessage {
	if len(p.Include) > 0 {
		keep := make(map[string]bool, len(p.Include)+1)
		for _, field := range p.Include {
			keep[field] = true
		}
		if !contains(p.Exclude, "id") {
			keep["id"] = true
		}
		out := make(map[string]json.RawMessage, len(keep))
		for field, value := range doc {
			if keep[field] {
				out[field] = value
			}
		}
		return out
	}

	out := make(map[string]json.RawMessage, len(doc))
	for field, value := range doc {
		if !contains(p.Exclude, field) {
			out[field] = value
		}
	}
	return out
}

func contains(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}
