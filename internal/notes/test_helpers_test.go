package notes

import (
	"context"
	"fmt"
	"testing"
	"time"

	githubsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustNoteID(t *testing.T, value string) NoteID {
	t.Helper()
	id, err := NewNoteID(value)
	if err != nil {
		t.Fatalf("unexpected note id error: %v", err)
	}
	return id
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(githubsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&Note{}, &ShareGrant{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

type sequenceIDProvider struct {
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("id-%04d", p.next), nil
}

type stubDirectory struct {
	byEmail map[string]UserRef
}

func (d *stubDirectory) LookupByEmail(_ context.Context, email string) (UserRef, error) {
	ref, ok := d.byEmail[email]
	if !ok {
		return UserRef{}, fmt.Errorf("no account for %s", email)
	}
	return ref, nil
}

func newTestService(t *testing.T, directory UserDirectory) *Service {
	t.Helper()
	if directory == nil {
		directory = &stubDirectory{byEmail: map[string]UserRef{}}
	}
	service, err := NewService(ServiceConfig{
		Database:   openTestDatabase(t),
		Clock:      func() time.Time { return time.Unix(1700000000, 0).UTC() },
		IDProvider: &sequenceIDProvider{},
		Directory:  directory,
	})
	if err != nil {
		t.Fatalf("failed to construct notes service: %v", err)
	}
	return service
}
