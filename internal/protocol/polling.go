package protocol

import "encoding/json"

// ConnectionIDHeader carries the polling connection id on every request
// after the handshake
const ConnectionIDHeader = "X-Connection-Id"

// ConnectResponse is returned by the polling handshake
type ConnectResponse struct {
	ConnectionID string `json:"connectionId"`
}

// MessagesResponse is returned by a poll. Each entry is an encoded
// server message.
type MessagesResponse struct {
	Messages []json.RawMessage `json:"messages"`
}

// ErrorBody describes a failed HTTP request
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse wraps an ErrorBody
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
