package relation

// Op kinds, one per coordinator operation.
const (
	OpAttach     = "attach"
	OpDetach     = "detach"
	OpReassign   = "reassign"
	OpBulkAttach = "bulk_attach"
	OpDetachAll  = "detach_all"
)

// Op describes one coordinator operation in a replayable form. Every
// operation is idempotent, so re-applying a journaled Op after a crash is
// always safe.
type Op struct {
	Kind      string   `json:"kind"`
	TaskID    string   `json:"task_id,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	OldUserID string   `json:"old_user_id,omitempty"`
	NewUserID string   `json:"new_user_id,omitempty"`
	TaskIDs   []string `json:"task_ids,omitempty"`
}

func (op Op) lockKeys() []string {
	keys := []string{op.TaskID, op.UserID, op.OldUserID, op.NewUserID}
	return append(keys, op.TaskIDs...)
}
