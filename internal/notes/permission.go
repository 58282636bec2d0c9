package notes

import (
	"errors"
	"strings"
)

// Permission is the effective access level a user holds on a note.
type Permission string

const (
	// PermissionOwner marks the single owning account of a note.
	PermissionOwner Permission = "owner"
	// PermissionEdit allows reading, live broadcasting and persisting content.
	PermissionEdit Permission = "edit"
	// PermissionView allows reading and receiving live updates only.
	PermissionView Permission = "view"
	// PermissionNone marks the absence of any grant.
	PermissionNone Permission = "none"
)

// ErrInvalidPermission indicates a share level outside {view, edit}.
var ErrInvalidPermission = errors.New("notes: invalid permission level")

// CanEdit reports whether the permission allows local edits to be broadcast
// and persisted. View-only and ungranted callers still receive remote updates.
func (p Permission) CanEdit() bool {
	return p == PermissionOwner || p == PermissionEdit
}

// CanView reports whether the permission allows reading the note at all.
func (p Permission) CanView() bool {
	return p != PermissionNone
}

// ParseSharePermission validates a share level supplied by a client. Only
// view and edit are grantable; ownership is never transferred by sharing.
func ParseSharePermission(raw string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(PermissionView):
		return PermissionView, nil
	case string(PermissionEdit):
		return PermissionEdit, nil
	default:
		return PermissionNone, ErrInvalidPermission
	}
}

// EffectivePermission computes the access level for userID against a note and
// its share grants. Ownership wins; otherwise the matching grant decides; a
// missing grant degrades to none rather than failing.
func EffectivePermission(note Note, grants []ShareGrant, userID string) Permission {
	if userID == "" {
		return PermissionNone
	}
	if note.OwnerID == userID {
		return PermissionOwner
	}
	for _, grant := range grants {
		if grant.UserID == userID {
			return grant.Permission
		}
	}
	return PermissionNone
}
