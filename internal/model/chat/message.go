package chat

import (
	"strings"
	"time"
)

// ErrorPlaceholder is displayed whenever a send fails.
const ErrorPlaceholder = "Error sending message"

// Request is the outbound payload for one send.
type Request struct {
	Message     string `json:"message"`
	AccessToken string `json:"access_token,omitempty"`
}

// Response is what the backend answers on success.
type Response struct {
	Response string `json:"response"`
}

// NormalizeMessage trims the composed text. An empty result means there is
// nothing to send.
func NormalizeMessage(message string) string {
	return strings.TrimSpace(message)
}

// ErrorKind classifies a failed send for display.
type ErrorKind string

const (
	ErrorNone      ErrorKind = ""
	ErrorTransport ErrorKind = "transport"
	ErrorTimeout   ErrorKind = "timeout"
	ErrorStatus    ErrorKind = "status"
	ErrorDecode    ErrorKind = "decode"
)

// Panel is the compose panel state of one browser.
type Panel struct {
	Busy      bool      `json:"busy"`
	Display   string    `json:"response"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}
