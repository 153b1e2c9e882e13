package web

// WebSocket event types
const (
	EventChannelDiscovered = "channel.discovered"
	EventMessageCollected  = "message.collected"
	EventAuthQR            = "tg_qr"
	EventAuthSuccess       = "tg_auth_success"
	EventError             = "error"
)

// WSEvent represents a structured WebSocket message
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewEvent wraps payload under an event type.
func NewEvent(eventType string, payload interface{}) WSEvent {
	return WSEvent{Type: eventType, Payload: payload}
}
