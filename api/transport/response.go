package transport

import "encoding/json"

// Envelope is the wire shape shared by every endpoint: a human-readable
// message plus the result payload, which is null on errors and deletions.
type Envelope struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// New builds an envelope.
func New(message string, data interface{}) Envelope {
	return Envelope{Message: message, Data: data}
}

// String returns the JSON representation (best-effort) for logging purposes.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}
