// Package trust manages the bidirectional server authorization registry:
// which partner servers may query this gateway, and which remote servers
// this gateway may query.
package trust

// Direction states which way requests flow for an authorization entry.
type Direction string

const (
	// DirectionIn authorizes a partner to send match requests to us.
	DirectionIn Direction = "in"
	// DirectionOut authorizes us to send match requests to a partner.
	DirectionOut Direction = "out"
)

func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Entry is one server authorization. BaseURL is only meaningful for
// outgoing entries.
type Entry struct {
	ServerID  string    `json:"server_id"`
	Label     string    `json:"server_label"`
	Key       string    `json:"server_key,omitempty"`
	Direction Direction `json:"direction"`
	BaseURL   string    `json:"base_url,omitempty"`
}
