package protocol

// Size limits for client messages. Oversized input is rejected before it is
// parsed.
const (
	// MaxMessageSize bounds one client message in bytes.
	MaxMessageSize = 64 * 1024

	// MaxKeyLength bounds a parameter key in bytes.
	MaxKeyLength = 256
)
