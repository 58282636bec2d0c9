package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inkwell-labs/inkwell/internal/notes"
)

const defaultDebounce = time.Second

// SaveState describes the scheduler's position in its
// Idle -> Pending -> Saving -> Idle cycle, exposed for UI feedback.
type SaveState string

const (
	// SaveStateIdle means no save is pending or in flight.
	SaveStateIdle SaveState = "idle"
	// SaveStatePending means a snapshot is waiting out the quiet period.
	SaveStatePending SaveState = "pending"
	// SaveStateSaving means a persistence call is in flight.
	SaveStateSaving SaveState = "saving"
)

// SaveFunc issues one persistence call for the given snapshot.
type SaveFunc func(ctx context.Context, noteID, content string) error

// SaverConfig describes one debounced persistence scheduler.
type SaverConfig struct {
	Save SaveFunc
	// Debounce is the quiet period after the last edit before a persistence
	// call fires. Defaults to one second.
	Debounce time.Duration
	// OnError is invoked once per failed save attempt. Failures are not
	// retried; the next edit reschedules naturally.
	OnError func(error)
	Logger  *zap.Logger
}

type pendingSave struct {
	noteID  string
	content string
}

// Saver coalesces a burst of edits into a single persistence call after a
// quiet period. At most one snapshot is pending at any time: a new edit
// replaces it and resets the timer rather than queuing a second save. Edits
// arriving while a save is in flight re-arm exactly one follow-up cycle with
// the newest content.
type Saver struct {
	mu       sync.Mutex
	save     SaveFunc
	debounce time.Duration
	onError  func(error)
	logger   *zap.Logger

	state   SaveState
	timer   *time.Timer
	pending *pendingSave
	rearm   *pendingSave
	stopped bool

	inflight sync.WaitGroup
}

// NewSaver constructs a scheduler in the idle state.
func NewSaver(cfg SaverConfig) (*Saver, error) {
	if cfg.Save == nil {
		return nil, fmt.Errorf("%w: save function required", ErrPersistence)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{
		save:     cfg.Save,
		debounce: debounce,
		onError:  cfg.OnError,
		logger:   logger,
		state:    SaveStateIdle,
	}, nil
}

// ScheduleSave records the latest snapshot and arms the quiet-period timer.
// No-op when the permission denies edits or after Stop.
func (s *Saver) ScheduleSave(noteID, content string, permission notes.Permission) {
	if !permission.CanEdit() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	snapshot := &pendingSave{noteID: noteID, content: content}
	switch s.state {
	case SaveStateSaving:
		// Captured for one follow-up cycle once the in-flight save returns.
		s.rearm = snapshot
	case SaveStatePending:
		s.pending = snapshot
		s.timer.Reset(s.debounce)
	default:
		s.state = SaveStatePending
		s.pending = snapshot
		s.timer = time.AfterFunc(s.debounce, s.fire)
	}
}

// State reports the current cycle position.
func (s *Saver) State() SaveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop cancels any pending timer and waits for an in-flight save to finish.
// A snapshot still waiting out the quiet period is flushed synchronously so
// navigating away inside the debounce window cannot lose the last edit.
func (s *Saver) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	flush := s.pending
	if s.state != SaveStateSaving {
		s.state = SaveStateIdle
		s.pending = nil
	}
	s.mu.Unlock()

	s.inflight.Wait()

	s.mu.Lock()
	if s.rearm != nil {
		flush = s.rearm
		s.rearm = nil
	}
	s.state = SaveStateIdle
	s.pending = nil
	s.mu.Unlock()

	if flush != nil {
		s.runSave(*flush)
	}
}

// fire runs on timer expiry: it moves Pending to Saving, issues exactly one
// persistence call with the latest snapshot, and returns to Idle or re-arms
// Pending for content that arrived mid-save.
func (s *Saver) fire() {
	s.mu.Lock()
	if s.stopped || s.state != SaveStatePending || s.pending == nil {
		s.mu.Unlock()
		return
	}
	snapshot := *s.pending
	s.pending = nil
	s.state = SaveStateSaving
	s.inflight.Add(1)
	s.mu.Unlock()

	s.runSave(snapshot)

	s.mu.Lock()
	s.inflight.Done()
	if s.stopped {
		s.state = SaveStateIdle
		s.mu.Unlock()
		return
	}
	if s.rearm != nil {
		s.state = SaveStatePending
		s.pending = s.rearm
		s.rearm = nil
		s.timer = time.AfterFunc(s.debounce, s.fire)
	} else {
		s.state = SaveStateIdle
	}
	s.mu.Unlock()
}

func (s *Saver) runSave(snapshot pendingSave) {
	err := s.save(context.Background(), snapshot.noteID, snapshot.content)
	if err != nil {
		s.logger.Warn("note save failed",
			zap.String("note_id", snapshot.noteID),
			zap.Error(err))
		if s.onError != nil {
			s.onError(fmt.Errorf("%w: %v", ErrPersistence, err))
		}
	}
}
