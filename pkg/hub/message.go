// Package hub fans JSON messages out to WebSocket clients using a single
// goroutine that owns the client set.
package hub

import "github.com/teslashibe/go-gaze/pkg/protocol"

// Message is one encoded message queued for clients
type Message struct {
	Data []byte
	// Sticky messages are replayed to clients that connect later, so a
	// display that joins mid-calibration still sees the current target.
	Sticky bool
}

// Encode encodes a protocol message for broadcast
func Encode(msg *protocol.Message, sticky bool) (Message, error) {
	data, err := msg.Bytes()
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data, Sticky: sticky}, nil
}
