package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("notes: invalid user id")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Note models a persisted markdown note. Exactly one owner per note; share
// grants extend access to other accounts at view or edit level.
type Note struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	OwnerID      string    `gorm:"column:owner_id;size:190;not null;index:idx_notes_owner_updated,priority:1"`
	Title        string    `gorm:"column:title;size:512;not null"`
	Content      string    `gorm:"column:content;type:text;not null"`
	LastEditorID string    `gorm:"column:last_editor_id;size:190;not null;default:''"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;index:idx_notes_owner_updated,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// ShareGrant extends access to a note for one account. Unique per
// (note, user) pair; granting again replaces the permission level.
type ShareGrant struct {
	ID         string     `gorm:"column:id;primaryKey;size:190;not null"`
	NoteID     string     `gorm:"column:note_id;size:190;not null;uniqueIndex:idx_share_note_user,priority:1"`
	UserID     string     `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_share_note_user,priority:2"`
	Permission Permission `gorm:"column:permission;size:16;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (ShareGrant) TableName() string {
	return "note_share_grants"
}
