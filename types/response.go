package types

import "encoding/json"

// KuzzleResponse is the standardized result envelope shared by all API
// routes. Exactly one response (or a terminal failure) is produced per
// request; RequestID carries the correlation id of the request it answers.
type KuzzleResponse struct {
	RequestID  string          `json:"requestId,omitempty"`
	Status     int             `json:"status"`
	Error      *KuzzleError    `json:"error,omitempty"`
	Controller string          `json:"controller,omitempty"`
	Action     string          `json:"action,omitempty"`
	Collection string          `json:"collection,omitempty"`
	Index      string          `json:"index,omitempty"`
	Volatile   map[string]any  `json:"volatile,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`

	// RoomID and Channel are only set on realtime traffic: the subscribe
	// acknowledgment and the notifications delivered afterwards.
	RoomID  string `json:"room,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// Notification is a realtime message pushed by the backend on a subscription
// channel. It shares the response envelope but is never matched against a
// pending request: the dispatcher routes it by Channel.
type Notification KuzzleResponse
