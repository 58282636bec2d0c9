package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNoteNotFound indicates no note matches the supplied identifier.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrPermissionDenied indicates the caller's effective permission does not allow the operation.
	ErrPermissionDenied = errors.New("notes: permission denied")
	// ErrShareNotFound indicates no share grant matches the supplied identifier.
	ErrShareNotFound = errors.New("notes: share grant not found")
	// ErrShareWithOwner indicates an attempt to grant the owner access to their own note.
	ErrShareWithOwner = errors.New("notes: cannot share a note with its owner")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingDirectory  = errors.New("user directory is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps an operation failure with a stable machine-readable code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "notes.service.new"
	opCreate      = "notes.create"
	opGet         = "notes.get"
	opUpdate      = "notes.update"
	opDelete      = "notes.delete"
	opList        = "notes.list"
	opShare       = "notes.share"
	opUpdateShare = "notes.update_share"
	opRevokeShare = "notes.revoke_share"
	opStats       = "notes.stats"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// UserRef identifies an account as seen by the notes service.
type UserRef struct {
	ID          string
	DisplayName string
	Email       string
}

// UserDirectory resolves accounts for share-by-email operations.
type UserDirectory interface {
	LookupByEmail(ctx context.Context, email string) (UserRef, error)
}

// IDProvider issues identifiers for notes and share grants.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the notes service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Directory  UserDirectory
	Logger     *zap.Logger
}

/// Service owns the note lifecycle: CRUD, sharing and the permission gate that
// every mutation consults.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	directory  UserDirectory
	logger     *zap.Logger
}

// NewService constructs the notes service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Directory == nil {
		return nil, newServiceError(opServiceNew, "missing_directory", errMissingDirectory)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		directory:  cfg.Directory,
		logger:     logger,
	}, nil
}

// NoteView is a note joined with the caller-specific permission context.
type NoteView struct {
	Note       Note
	Permission Permission
	Grants     []ShareGrant
}

// Create stores a new note owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID UserID, title, content string) (Note, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Note{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	note := Note{
		ID:           id,
		OwnerID:      ownerID.String(),
		Title:        title,
		Content:      content,
		LastEditorID: ownerID.String(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("owner_id", ownerID.String()))
		return Note{}, newServiceError(opCreate, "insert_failed", err)
	}

	return note, nil
}

// Get loads a note with the caller's effective permission and the share list.
// Callers without any grant receive ErrPermissionDenied.
func (s *Service) Get(ctx context.Context, noteID NoteID, callerID UserID) (NoteView, error) {
	view, err := s.loadView(ctx, s.db, noteID, callerID, opGet)
	if err != nil {
		return NoteView{}, err
	}
	if !view.Permission.CanView() {
		return NoteView{}, newServiceError(opGet, "permission_denied", ErrPermissionDenied)
	}
	return view, nil
}

// UpdateInput carries the mutable note fields; nil means leave unchanged.
type UpdateInput struct {
	Title   *string
	Content *string
}

// Update persists new content, gated on edit permission, and stamps the last
// editor. The returned note reflects the stored state.
func (s *Service) Update(ctx context.Context, noteID NoteID, callerID UserID, input UpdateInput) (Note, error) {
	var updated Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view, err := s.loadView(ctx, tx, noteID, callerID, opUpdate)
		if err != nil {
			return err
		}
		if !view.Permission.CanEdit() {
			return newServiceError(opUpdate, "permission_denied", ErrPermissionDenied)
		}

		note := view.Note
		if input.Title != nil {
			note.Title = *input.Title
		}
		if input.Content != nil {
			note.Content = *input.Content
		}
		note.LastEditorID = callerID.String()
		note.UpdatedAt = s.clock().UTC()

		if err := tx.Save(&note).Error; err != nil {
			s.logError(opUpdate, "save_failed", err, zap.String("note_id", noteID.String()))
			return newServiceError(opUpdate, "save_failed", err)
		}
		updated = note
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}
	return updated, nil
}

// Delete removes a note and its share grants. Owner only.
func (s *Service) Delete(ctx context.Context, noteID NoteID, callerID UserID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view, err := s.loadView(ctx, tx, noteID, callerID, opDelete)
		if err != nil {
			return err
		}
		if view.Permission != PermissionOwner {
			return newServiceError(opDelete, "permission_denied", ErrPermissionDenied)
		}
		if err := tx.Where("note_id = ?", noteID.String()).Delete(&ShareGrant{}).Error; err != nil {
			s.logError(opDelete, "grant_delete_failed", err, zap.String("note_id", noteID.String()))
			return newServiceError(opDelete, "grant_delete_failed", err)
		}
		if err := tx.Where("id = ?", noteID.String()).Delete(&Note{}).Error; err != nil {
			s.logError(opDelete, "note_delete_failed", err, zap.String("note_id", noteID.String()))
			return newServiceError(opDelete, "note_delete_failed", err)
		}
		return nil
	})
}

// List returns the caller's notes, owned and shared with, newest first.
func (s *Service) List(ctx context.Context, callerID UserID) ([]Note, error) {
	var results []Note
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", callerID.String()).
		Or("id IN (?)", s.db.Model(&ShareGrant{}).Select("note_id").Where("user_id = ?", callerID.String())).
		Order("updated_at DESC").
		Find(&results).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.String("caller_id", callerID.String()))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return results, nil
}

// Share grants view or edit access to the account registered under email.
// Granting again for the same account updates the permission level in place.
func (s *Service) Share(ctx context.Context, noteID NoteID, callerID UserID, email string, permission Permission) (ShareGrant, error) {
	if permission != PermissionView && permission != PermissionEdit {
		return ShareGrant{}, newServiceError(opShare, "invalid_permission", ErrInvalidPermission)
	}

	target, err := s.directory.LookupByEmail(ctx, email)
	if err != nil {
		return ShareGrant{}, newServiceError(opShare, "user_lookup_failed", err)
	}

	var grant ShareGrant
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view, err := s.loadView(ctx, tx, noteID, callerID, opShare)
		if err != nil {
			return err
		}
		if view.Permission != PermissionOwner {
			return newServiceError(opShare, "permission_denied", ErrPermissionDenied)
		}
		if target.ID == view.Note.OwnerID {
			return newServiceError(opShare, "share_with_owner", ErrShareWithOwner)
		}

		err = tx.Where("note_id = ? AND user_id = ?", noteID.String(), target.ID).Take(&grant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			grantID, idErr := s.idProvider.NewID()
			if idErr != nil {
				s.logError(opShare, "id_generation_failed", idErr)
				return newServiceError(opShare, "id_generation_failed", idErr)
			}
			grant = ShareGrant{
				ID:         grantID,
				NoteID:     noteID.String(),
				UserID:     target.ID,
				Permission: permission,
			}
			if err := tx.Create(&grant).Error; err != nil {
				s.logError(opShare, "grant_insert_failed", err, zap.String("note_id", noteID.String()))
				return newServiceError(opShare, "grant_insert_failed", err)
			}
			return nil
		}
		if err != nil {
			s.logError(opShare, "grant_select_failed", err, zap.String("note_id", noteID.String()))
			return newServiceError(opShare, "grant_select_failed", err)
		}

		grant.Permission = permission
		if err := tx.Save(&grant).Error; err != nil {
			s.logError(opShare, "grant_update_failed", err, zap.String("note_id", noteID.String()))
			return newServiceError(opShare, "grant_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return ShareGrant{}, txErr
	}
	return grant, nil
}

// UpdateShare changes the permission level of an existing grant. Owner only.
func (s *Service) UpdateShare(ctx context.Context, noteID NoteID, callerID UserID, shareID string, permission Permission) (ShareGrant, error) {
	if permission != PermissionView && permission != PermissionEdit {
		return ShareGrant{}, newServiceError(opUpdateShare, "invalid_permission", ErrInvalidPermission)
	}

	var grant ShareGrant
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view, err := s.loadView(ctx, tx, noteID, callerID, opUpdateShare)
		if err != nil {
			return err
		}
		if view.Permission != PermissionOwner {
			return newServiceError(opUpdateShare, "permission_denied", ErrPermissionDenied)
		}

		err = tx.Where("id = ? AND note_id = ?", shareID, noteID.String()).Take(&grant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opUpdateShare, "share_not_found", ErrShareNotFound)
		}
		if err != nil {
			s.logError(opUpdateShare, "grant_select_failed", err, zap.String("share_id", shareID))
			return newServiceError(opUpdateShare, "grant_select_failed", err)
		}

		grant.Permission = permission
		if err := tx.Save(&grant).Error; err != nil {
			s.logError(opUpdateShare, "grant_update_failed", err, zap.String("share_id", shareID))
			return newServiceError(opUpdateShare, "grant_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return ShareGrant{}, txErr
	}
	return grant, nil
}

// RevokeShare removes an existing grant. Owner only; revoking an unknown
// grant reports ErrShareNotFound.
func (s *Service) RevokeShare(ctx context.Context, noteID NoteID, callerID UserID, shareID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view, err := s.loadView(ctx, tx, noteID, callerID, opRevokeShare)
		if err != nil {
			return err
		}
		if view.Permission != PermissionOwner {
			return newServiceError(opRevokeShare, "permission_denied", ErrPermissionDenied)
		}

		result := tx.Where("id = ? AND note_id = ?", shareID, noteID.String()).Delete(&ShareGrant{})
		if result.Error != nil {
			s.logError(opRevokeShare, "grant_delete_failed", result.Error, zap.String("share_id", shareID))
			return newServiceError(opRevokeShare, "grant_delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opRevokeShare, "share_not_found", ErrShareNotFound)
		}
		return nil
	})
}

// Stats summarizes the caller's note counts.
type Stats struct {
	Owned      int64
	SharedWith int64
}

// GetStats returns note counts for the caller.
func (s *Service) GetStats(ctx context.Context, callerID UserID) (Stats, error) {
	var stats Stats
	if err := s.db.WithContext(ctx).Model(&Note{}).
		Where("owner_id = ?", callerID.String()).
		Count(&stats.Owned).Error; err != nil {
		s.logError(opStats, "owned_count_failed", err)
		return Stats{}, newServiceError(opStats, "owned_count_failed", err)
	}
	if err := s.db.WithContext(ctx).Model(&ShareGrant{}).
		Where("user_id = ?", callerID.String()).
		Count(&stats.SharedWith).Error; err != nil {
		s.logError(opStats, "shared_count_failed", err)
		return Stats{}, newServiceError(opStats, "shared_count_failed", err)
	}
	return stats, nil
}

// EffectivePermission loads the note and computes the caller's access level.
// Used by the collaboration hub before rebroadcasting updates.
func (s *Service) EffectivePermission(ctx context.Context, noteID NoteID, callerID UserID) (Permission, error) {
	view, err := s.loadView(ctx, s.db, noteID, callerID, opGet)
	if err != nil {
		return PermissionNone, err
	}
	return view.Permission, nil
}

// loadView reads the note and its grants on the supplied handle. Mutating
// callers pass their transaction handle; SQLite serializes writers, so no
// row lock is taken.
func (s *Service) loadView(ctx context.Context, tx *gorm.DB, noteID NoteID, callerID UserID, operation string) (NoteView, error) {
	var note Note
	err := tx.WithContext(ctx).Where("id = ?", noteID.String()).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NoteView{}, newServiceError(operation, "note_not_found", ErrNoteNotFound)
	}
	if err != nil {
		s.logError(operation, "note_select_failed", err, zap.String("note_id", noteID.String()))
		return NoteView{}, newServiceError(operation, "note_select_failed", err)
	}

	var grants []ShareGrant
	if err := tx.WithContext(ctx).Where("note_id = ?", noteID.String()).Find(&grants).Error; err != nil {
		s.logError(operation, "grant_query_failed", err, zap.String("note_id", noteID.String()))
		return NoteView{}, newServiceError(operation, "grant_query_failed", err)
	}

	return NoteView{
		Note:       note,
		Permission: EffectivePermission(note, grants, callerID.String()),
		Grants:     grants,
	}, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("notes service error", attrs...)
}
