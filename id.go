package conduit

import "github.com/google/uuid"

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Used for request ids and for synthesizing tool-call ids when a provider
// response omits them.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
