package journal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is one journaled relation operation awaiting completion. The payload
// is opaque to the journal; the replayer decodes it.
type Entry struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	Retries   int             `json:"retries"`
	Timestamp time.Time       `json:"timestamp"`

	bucketKey []byte
}

func (e *Entry) normalize() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
}
