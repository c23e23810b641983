package types

// Event is the wire form of a lease or relay state transition. Type carries a
// dotted name such as "lease.started"; Attributes hold hex-encoded record
// fields for indexers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
