package domain

import (
	"encoding/json"
	"time"
)

// UnassignedName is the denormalized display value for a task without an owner.
const UnassignedName = "unassigned"

// Task represents a single unit of work, optionally owned by a user.
type Task struct {
	ID               string
	Name             string
	Description      string
	Deadline         time.Time
	Completed        bool
	AssignedUser     string
	AssignedUserName string
	DateCreated      time.Time

	// Extra carries caller-supplied attributes that are persisted verbatim
	// but never interpreted by the service.
	Extra map[string]json.RawMessage

	// Version is the store revision used for optimistic concurrency checks.
	// It is not part of the document.
	Version int64
}

func (t *Task) IsAssigned() bool {
	return t != nil && t.AssignedUser != ""
}

// MarshalJSON flattens the known fields and the extra attributes into a
// single document.
func (t Task) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(t.Extra)+8)
	for k, v := range t.Extra {
		doc[k] = v
	}
	doc["id"] = t.ID
	doc["name"] = t.Name
	doc["description"] = t.Description
	doc["deadline"] = t.Deadline
	doc["completed"] = t.Completed
	doc["assignedUser"] = t.AssignedUser
	doc["assignedUserName"] = t.AssignedUserName
	doc["dateCreated"] = t.DateCreated
	return json.Marshal(doc)
}

// UnmarshalJSON splits a document into the known fields and the extra
// attribute map.
func (t *Task) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	take := func(key string, dst interface{}) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		return json.Unmarshal(v, dst)
	}

	*t = Task{}
	if err := take("id", &t.ID); err != nil {
		return err
	}
	if err := take("name", &t.Name); err != nil {
		return err
	}
	if err := take("description", &t.Description); err != nil {
		return err
	}
	if err := take("deadline", &t.Deadline); err != nil {
		return err
	}
	if err := take("completed", &t.Completed); err != nil {
		return err
	}
	if err := take("assignedUser", &t.AssignedUser); err != nil {
		return err
	}
	if err := take("assignedUserName", &t.AssignedUserName); err != nil {
		return err
	}
	if err := take("dateCreated", &t.DateCreated); err != nil {
		return err
	}
	if len(raw) > 0 {
		t.Extra = raw
	}
	return nil
}
