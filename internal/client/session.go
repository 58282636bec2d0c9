package client

import (
	"sync"

	"go.uber.org/zap"

	"github.com/inkwell-labs/inkwell/internal/collab"
	"github.com/inkwell-labs/inkwell/internal/notes"
)

// Sender emits frames on the collaboration channel. Implemented by Transport;
// tests substitute a recorder.
type Sender interface {
	Send(frame collab.Frame) error
}

// ContentApplier pushes remotely edited content into the local editor buffer.
type ContentApplier func(noteID, content string)

// EditorSessionConfig describes one open note-editing view.
type EditorSessionConfig struct {
	Sender Sender
	Saver  *Saver
	// Permission is the caller's effective permission for the open note,
	// computed by the permission gate against the note's owner and share
	// grants. It gates broadcast and persistence, never inbound application.
	Permission notes.Permission
	Applier    ContentApplier
	Logger     *zap.Logger
}

// EditorSession binds one editing view to a note room. It owns room
// membership, forwards local edits to the channel and the persistence
// scheduler, and reconciles inbound updates into the local buffer with echo
// suppression. It implements Observer so a Transport can drive it.
type EditorSession struct {
	sender     Sender
	saver      *Saver
	permission notes.Permission
	applier    ContentApplier
	logger     *zap.Logger

	mu           sync.Mutex
	localID      string
	noteID       string
	participants []collab.Participant
}

// NewEditorSession constructs a session with no active room.
func NewEditorSession(cfg EditorSessionConfig) (*EditorSession, error) {
	if cfg.Sender == nil {
		return nil, ErrNotConnected
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EditorSession{
		sender:     cfg.Sender,
		saver:      cfg.Saver,
		permission: cfg.Permission,
		applier:    cfg.Applier,
		logger:     logger,
	}, nil
}

// Join enters the room for noteID. At most one membership is active: joining
// while a different room is active emits leave for the old room strictly
// before join for the new one, so stale broadcasts for the abandoned note are
// never received. A missing connection is logged and swallowed; the join is
// replayed automatically once the transport reconnects.
func (s *EditorSession) Join(noteID string) {
	s.mu.Lock()
	previous := s.noteID
	s.noteID = noteID
	s.participants = nil
	s.mu.Unlock()

	if previous != "" && previous != noteID {
		if err := s.sender.Send(collab.Frame{Type: collab.FrameLeave, NoteID: previous}); err != nil {
			s.logger.Debug("room leave not sent", zap.String("note_id", previous), zap.Error(err))
		}
	}
	if err := s.sender.Send(collab.Frame{Type: collab.FrameJoin, NoteID: noteID}); err != nil {
		s.logger.Debug("room join not sent", zap.String("note_id", noteID), zap.Error(err))
	}
}

// Leave releases membership for noteID. No-op when not a member. The cached
// participant list is discarded.
func (s *EditorSession) Leave(noteID string) {
	s.mu.Lock()
	if s.noteID != noteID {
		s.mu.Unlock()
		return
	}
	s.noteID = ""
	s.participants = nil
	s.mu.Unlock()

	if err := s.sender.Send(collab.Frame{Type: collab.FrameLeave, NoteID: noteID}); err != nil {
		s.logger.Debug("room leave not sent", zap.String("note_id", noteID), zap.Error(err))
	}
}

// OnLocalEdit handles one keystroke's worth of new content: an immediate
// fire-and-forget broadcast to the room and a debounced persistence
// schedule, independent paths. Returns without side effect when the
// permission denies edits. Never blocks the caller on network I/O beyond the
// non-blocking channel write.
func (s *EditorSession) OnLocalEdit(noteID, content string) {
	if !s.permission.CanEdit() {
		return
	}

	s.mu.Lock()
	member := s.noteID == noteID
	localID := s.localID
	s.mu.Unlock()
	if !member {
		return
	}

	if err := s.sender.Send(collab.Frame{
		Type:     collab.FrameUpdate,
		NoteID:   noteID,
		Content:  content,
		SenderID: localID,
	}); err != nil {
		// Loss is acceptable: the persistence path guarantees durability.
		s.logger.Debug("update broadcast skipped", zap.String("note_id", noteID), zap.Error(err))
	}

	if s.saver != nil {
		s.saver.ScheduleSave(noteID, content, s.permission)
	}
}

// HandleConnected records the hub-assigned session identifier and replays
// the active room membership, so reconnection after a transient drop rejoins
// without user action.
func (s *EditorSession) HandleConnected(sessionID string) {
	s.mu.Lock()
	s.localID = sessionID
	noteID := s.noteID
	s.mu.Unlock()

	if noteID == "" {
		return
	}
	if err := s.sender.Send(collab.Frame{Type: collab.FrameJoin, NoteID: noteID}); err != nil {
		s.logger.Debug("room rejoin not sent", zap.String("note_id", noteID), zap.Error(err))
	}
}

// HandleDisconnected is informational: the transport reconnects on its own
// and a transient drop is never surfaced as a fatal error.
func (s *EditorSession) HandleDisconnected(err error) {
	if err != nil {
		s.logger.Debug("collab channel dropped", zap.Error(err))
	}
}

// HandleFrame reconciles an inbound frame. Updates originating from this
// session are discarded so a session never overwrites its own just-typed
// content with a stale echo. Remote content is applied unconditionally,
// view-only sessions included, and never re-persisted by the receiver.
func (s *EditorSession) HandleFrame(frame collab.Frame) {
	switch frame.Type {
	case collab.FrameUpdated:
		s.mu.Lock()
		suppress := frame.SenderID == s.localID || frame.NoteID != s.noteID
		s.mu.Unlock()
		if suppress {
			return
		}
		if s.applier != nil {
			s.applier(frame.NoteID, frame.Content)
		}
	case collab.FrameParticipants:
		s.mu.Lock()
		if frame.NoteID == s.noteID {
			// Server list is authoritative; replace wholesale.
			s.participants = append([]collab.Participant(nil), frame.Participants...)
		}
		s.mu.Unlock()
	case collab.FrameError:
		s.logger.Warn("collab server error", zap.String("note_id", frame.NoteID), zap.String("message", frame.Message))
	}
}

// Participants returns the latest membership list pushed by the server.
func (s *EditorSession) Participants() []collab.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]collab.Participant(nil), s.participants...)
}

// Close releases the active membership, if any, and stops the persistence
// scheduler, flushing a snapshot still inside the debounce window.
func (s *EditorSession) Close() {
	s.mu.Lock()
	noteID := s.noteID
	s.noteID = ""
	s.participants = nil
	s.mu.Unlock()

	if noteID != "" {
		if err := s.sender.Send(collab.Frame{Type: collab.FrameLeave, NoteID: noteID}); err != nil {
			s.logger.Debug("room leave not sent", zap.String("note_id", noteID), zap.Error(err))
		}
	}
	if s.saver != nil {
		s.saver.Stop()
	}
}
