package notes

import "testing"

func TestEffectivePermission(t *testing.T) {
	note := Note{ID: "note-1", OwnerID: "owner-1"}
	grants := []ShareGrant{
		{ID: "share-1", NoteID: "note-1", UserID: "editor-1", Permission: PermissionEdit},
		{ID: "share-2", NoteID: "note-1", UserID: "viewer-1", Permission: PermissionView},
	}

	tests := []struct {
		name     string
		userID   string
		expected Permission
	}{
		{name: "owner", userID: "owner-1", expected: PermissionOwner},
		{name: "editor-grant", userID: "editor-1", expected: PermissionEdit},
		{name: "viewer-grant", userID: "viewer-1", expected: PermissionView},
		{name: "no-grant", userID: "stranger-1", expected: PermissionNone},
		{name: "empty-user", userID: "", expected: PermissionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectivePermission(note, grants, tt.userID); got != tt.expected {
				t.Fatalf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestEffectivePermissionWithoutGrants(t *testing.T) {
	note := Note{ID: "note-1", OwnerID: "owner-1"}
	if got := EffectivePermission(note, nil, "someone"); got != PermissionNone {
		t.Fatalf("expected none for missing grants, got %s", got)
	}
}

func TestPermissionCanEdit(t *testing.T) {
	tests := []struct {
		permission Permission
		canEdit    bool
		canView    bool
	}{
		{PermissionOwner, true, true},
		{PermissionEdit, true, true},
		{PermissionView, false, true},
		{PermissionNone, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.permission), func(t *testing.T) {
			if tt.permission.CanEdit() != tt.canEdit {
				t.Fatalf("CanEdit mismatch for %s", tt.permission)
			}
			if tt.permission.CanView() != tt.canView {
				t.Fatalf("CanView mismatch for %s", tt.permission)
			}
		})
	}
}

func TestParseSharePermission(t *testing.T) {
	tests := []struct {
		raw       string
		expected  Permission
		expectErr bool
	}{
		{raw: "view", expected: PermissionView},
		{raw: "edit", expected: PermissionEdit},
		{raw: "  EDIT  ", expected: PermissionEdit},
		{raw: "owner", expectErr: true},
		{raw: "none", expectErr: true},
		{raw: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSharePermission(tt.raw)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Fatalf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}
