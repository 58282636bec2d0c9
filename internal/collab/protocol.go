package collab

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameType names a collaboration channel message. The event vocabulary is
// shared by the hub and the editing client.
type FrameType string

const (
	// FrameSessionReady is pushed by the hub right after the handshake and
	// carries the session identifier in SenderID. Clients use it as the key
	// for echo suppression.
	FrameSessionReady FrameType = "session:ready"
	// FrameJoin requests membership in a note's room.
	FrameJoin FrameType = "note:join"
	// FrameLeave releases membership in a note's room.
	FrameLeave FrameType = "note:leave"
	// FrameUpdate carries a local edit from a client to the hub.
	FrameUpdate FrameType = "note:update"
	// FrameUpdated is the hub's rebroadcast of an edit to all room members,
	// the sender included, with SenderID intact.
	FrameUpdated FrameType = "note:updated"
	// FrameParticipants is the full replacement membership list pushed on
	// every join and leave.
	FrameParticipants FrameType = "note:users"
	// FrameError reports a rejected client frame. The connection stays open.
	FrameError FrameType = "error"
)

// Participant is one user-identity entry in a room's membership list.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Frame is the JSON envelope exchanged on the collaboration channel.
// Content intentionally lacks omitempty: an edit may legitimately clear a
// note to the empty string.
type Frame struct {
	Type         FrameType     `json:"type"`
	NoteID       string        `json:"noteId,omitempty"`
	Content      string        `json:"content"`
	SenderID     string        `json:"senderId,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// ErrMalformedFrame indicates a payload that could not be decoded or that
// lacks required fields for its type.
var ErrMalformedFrame = errors.New("collab: malformed frame")

// DecodeFrame parses and validates a raw channel payload.
func DecodeFrame(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch frame.Type {
	case FrameJoin, FrameLeave, FrameUpdate, FrameUpdated:
		if frame.NoteID == "" {
			return Frame{}, fmt.Errorf("%w: %s frame requires noteId", ErrMalformedFrame, frame.Type)
		}
	case FrameSessionReady, FrameParticipants, FrameError:
	default:
		return Frame{}, fmt.Errorf("%w: unknown frame type %q", ErrMalformedFrame, frame.Type)
	}
	return frame, nil
}
