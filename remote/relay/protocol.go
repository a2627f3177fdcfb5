// Package relay serves a memstore over websockets so several devices can share
// one document tree, and provides the matching remote.Store client.
package relay

import "encoding/json"

// Frame types.
const (
	FrameRequest  = "request"
	FrameResponse = "response"
	FrameEvent    = "event"
)

// Request ops.
const (
	OpRead               = "read"
	OpSet                = "set"
	OpUpdate             = "update"
	OpSubscribe          = "subscribe"
	OpUnsubscribe        = "unsubscribe"
	OpOnDisconnectRemove = "onDisconnectRemove"
)

// Frame is the single wire envelope. Requests carry ID, Op, Path and Value;
// responses echo ID with Exists/Value or Error; events carry SubID, Path, Exists and Value.
type Frame struct {
	Type   string          `json:"type"`
	ID     uint64          `json:"id,omitempty"`
	Op     string          `json:"op,omitempty"`
	Path   string          `json:"path,omitempty"`
	SubID  string          `json:"subId,omitempty"`
	Exists bool            `json:"exists,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
	Error  string          `json:"error,omitempty"`
}
