package domain

import "time"

// User represents an account that can own pending tasks.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PendingTasks []string  `json:"pendingTasks"`
	DateCreated  time.Time `json:"dateCreated"`

	// Version is the store revision used for optimistic concurrency checks.
	Version int64 `json:"-"`
}

func (u *User) HasPendingTask(taskID string) bool {
	if u == nil {
		return false
	}
	for _, id := range u.PendingTasks {
		if id == taskID {
			return true
		}
	}
	return false
}
