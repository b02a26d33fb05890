package bus

import "time"

// Event is a domain event published on the bus. Kind is a dot-separated
// name ("store.changes", "message.send_ack"); subscribers filter by prefix.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
