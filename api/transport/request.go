package transport

// UserRequest is the create/update body for users.
type UserRequest struct {
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	PendingTasks []string `json:"pendingTasks"`
}
