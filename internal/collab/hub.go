package collab

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/inkwell-labs/inkwell/internal/notes"
)

const defaultWriteBuffer = 32

var errMissingPermissions = errors.New("collab: permission checker is required")

// PermissionChecker resolves a user's effective access level for a note. The
// hub consults it when a session joins a room and caches the result for the
// lifetime of the membership.
type PermissionChecker interface {
	EffectivePermission(ctx context.Context, noteID notes.NoteID, userID notes.UserID) (notes.Permission, error)
}

// HubConfig describes the dependencies of the room hub.
type HubConfig struct {
	Permissions PermissionChecker
	Logger      *zap.Logger
	WriteBuffer int
}

// Hub tracks rooms keyed by note identifier and rebroadcasts edits to room
// members. It is the server-side counterpart of the editing client: every
// update is forwarded to the whole room with the sender identifier intact so
// receivers can suppress their own echo.
type Hub struct {
	mu          sync.Mutex
	rooms       map[string]map[*memberSession]struct{}
	permissions PermissionChecker
	logger      *zap.Logger
	writeBuffer int
}

type memberSession struct {
	id         string
	user       Participant
	conn       *websocket.Conn
	send       chan Frame
	room       string
	permission notes.Permission
	closeOnce  sync.Once
}

// NewHub constructs a room hub.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Permissions == nil {
		return nil, errMissingPermissions
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	writeBuffer := cfg.WriteBuffer
	if writeBuffer <= 0 {
		writeBuffer = defaultWriteBuffer
	}
	return &Hub{
		rooms:       make(map[string]map[*memberSession]struct{}),
		permissions: cfg.Permissions,
		logger:      logger,
		writeBuffer: writeBuffer,
	}, nil
}

// Serve owns an upgraded connection until it closes: one reader loop here,
// one writer goroutine draining the send queue. Membership acquired by the
// session is released on every exit path.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, user Participant) {
	session := &memberSession{
		id:   uuid.NewString(),
		user: user,
		conn: conn,
		send: make(chan Frame, h.writeBuffer),
	}

	go h.writeLoop(session)
	defer func() {
		h.leaveCurrentRoom(session)
		session.closeSend()
	}()

	session.enqueue(Frame{Type: FrameSessionReady, SenderID: session.id})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.logger.Debug("collab read failed", zap.String("session_id", session.id), zap.Error(err))
			}
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			session.enqueue(Frame{Type: FrameError, Message: "malformed frame"})
			continue
		}

		switch frame.Type {
		case FrameJoin:
			h.handleJoin(ctx, session, frame.NoteID)
		case FrameLeave:
			h.handleLeave(session, frame.NoteID)
		case FrameUpdate:
			h.handleUpdate(session, frame)
		default:
			session.enqueue(Frame{Type: FrameError, Message: "unexpected frame type"})
		}
	}
}

func (h *Hub) handleJoin(ctx context.Context, session *memberSession, noteID string) {
	validNoteID, err := notes.NewNoteID(noteID)
	if err != nil {
		session.enqueue(Frame{Type: FrameError, NoteID: noteID, Message: "invalid note id"})
		return
	}
	validUserID, err := notes.NewUserID(session.user.ID)
	if err != nil {
		session.enqueue(Frame{Type: FrameError, NoteID: noteID, Message: "invalid user id"})
		return
	}

	permission, err := h.permissions.EffectivePermission(ctx, validNoteID, validUserID)
	if err != nil || !permission.CanView() {
		h.logger.Warn("room join rejected",
			zap.String("note_id", noteID),
			zap.String("user_id", session.user.ID),
			zap.Error(err))
		session.enqueue(Frame{Type: FrameError, NoteID: noteID, Message: "access denied"})
		return
	}

	h.leaveCurrentRoom(session)

	h.mu.Lock()
	members, ok := h.rooms[noteID]
	if !ok {
		members = make(map[*memberSession]struct{})
		h.rooms[noteID] = members
	}
	members[session] = struct{}{}
	session.room = noteID
	session.permission = permission
	recipients, roster := h.snapshotLocked(noteID)
	h.mu.Unlock()

	pushParticipants(recipients, noteID, roster)
}

func (h *Hub) handleLeave(session *memberSession, noteID string) {
	// Leaving a room the session is not in is a no-op.
	if session.room != noteID {
		return
	}
	h.leaveCurrentRoom(session)
}

func (h *Hub) handleUpdate(session *memberSession, frame Frame) {
	if session.room != frame.NoteID {
		session.enqueue(Frame{Type: FrameError, NoteID: frame.NoteID, Message: "not a room member"})
		return
	}
	if !session.permission.CanEdit() {
		session.enqueue(Frame{Type: FrameError, NoteID: frame.NoteID, Message: "edit permission required"})
		return
	}

	h.mu.Lock()
	recipients := make([]*memberSession, 0, len(h.rooms[frame.NoteID]))
	for member := range h.rooms[frame.NoteID] {
		recipients = append(recipients, member)
	}
	h.mu.Unlock()

	outbound := Frame{
		Type:     FrameUpdated,
		NoteID:   frame.NoteID,
		Content:  frame.Content,
		SenderID: session.id,
	}
	for _, member := range recipients {
		member.enqueue(outbound)
	}
}

// leaveCurrentRoom removes the session from its active room, if any, and
// pushes a fresh membership list to the remaining members.
func (h *Hub) leaveCurrentRoom(session *memberSession) {
	h.mu.Lock()
	room := session.room
	if room == "" {
		h.mu.Unlock()
		return
	}
	if members, ok := h.rooms[room]; ok {
		delete(members, session)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	session.room = ""
	session.permission = notes.PermissionNone
	recipients, roster := h.snapshotLocked(room)
	h.mu.Unlock()

	pushParticipants(recipients, room, roster)
}

// RoomParticipants returns the current membership list for a note, one entry
// per connected session.
func (h *Hub) RoomParticipants(noteID string) []Participant {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, roster := h.snapshotLocked(noteID)
	return roster
}

func (h *Hub) snapshotLocked(noteID string) ([]*memberSession, []Participant) {
	members := h.rooms[noteID]
	recipients := make([]*memberSession, 0, len(members))
	roster := make([]Participant, 0, len(members))
	for member := range members {
		recipients = append(recipients, member)
		roster = append(roster, member.user)
	}
	return recipients, roster
}

func pushParticipants(recipients []*memberSession, noteID string, roster []Participant) {
	frame := Frame{
		Type:         FrameParticipants,
		NoteID:       noteID,
		Participants: roster,
	}
	for _, member := range recipients {
		member.enqueue(frame)
	}
}

func (h *Hub) writeLoop(session *memberSession) {
	for frame := range session.send {
		if err := session.conn.WriteJSON(frame); err != nil {
			h.logger.Debug("collab write failed", zap.String("session_id", session.id), zap.Error(err))
			return
		}
	}
}

// enqueue is fire-and-forget: a slow consumer loses frames rather than
// blocking the room. Durability is owed by the REST persistence path.
func (s *memberSession) enqueue(frame Frame) {
	defer func() {
		// Send may race with closeSend when the reader exits.
		_ = recover()
	}()
	select {
	case s.send <- frame:
	default:
	}
}

func (s *memberSession) closeSend() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}
