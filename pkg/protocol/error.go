package protocol

// ErrorCode identifies the type of error.
type ErrorCode string

const (
	ErrInvalidMessage ErrorCode = "InvalidMessage" // Malformed client message
	ErrNotFound       ErrorCode = "NotFound"       // Key not registered
	ErrConversion     ErrorCode = "Conversion"     // Value does not parse
	ErrSessionExpired ErrorCode = "SessionExpired" // Session no longer valid
	ErrServerError    ErrorCode = "ServerError"    // Internal server error
)

// ErrorMessage is sent when a client message is rejected.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Key     string      `json:"key,omitempty"`
	Fatal   bool        `json:"fatal,omitempty"` // If true, the server closes the connection
}

// NewError creates a new non-fatal ErrorMessage.
func NewError(code ErrorCode, message string) *ErrorMessage {
	return &ErrorMessage{Type: TypeError, Code: code, Message: message}
}

// NewFatalError creates a new fatal ErrorMessage.
func NewFatalError(code ErrorCode, message string) *ErrorMessage {
	return &ErrorMessage{Type: TypeError, Code: code, Message: message, Fatal: true}
}

// WithKey returns em annotated with the parameter key it concerns.
func (em *ErrorMessage) WithKey(key string) *ErrorMessage {
	em.Key = key
	return em
}

// Error implements the error interface.
func (em *ErrorMessage) Error() string {
	if em.Fatal {
		return "fatal: " + string(em.Code) + ": " + em.Message
	}
	return string(em.Code) + ": " + em.Message
}
