package database

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell/internal/notes"
	"github.com/inkwell-labs/inkwell/internal/users"
)

func memoryDSN() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatal("expected error for empty database path")
	}
}

func TestOpenSQLiteCreatesSchemaAndRecordsMigrations(t *testing.T) {
	db, err := OpenSQLite(memoryDSN(), nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	for _, table := range []string{"users", "notes", "note_share_grants", "db_migrations"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %s to exist", table)
		}
	}

	var record migrationRecord
	if err := db.Where("name = ?", migrationNormalizeSharePermissions).Take(&record).Error; err != nil {
		t.Fatalf("expected migration record, got %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		t.Fatal("expected migration timestamp to be recorded")
	}
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	dsn := memoryDSN()
	first, err := OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	keepAlive, err := first.DB()
	if err != nil {
		t.Fatalf("failed to get underlying handle: %v", err)
	}
	defer keepAlive.Close()

	if _, err := OpenSQLite(dsn, nil); err != nil {
		t.Fatalf("second open failed: %v", err)
	}

	var count int64
	if err := first.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count migration records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected each migration recorded once, got %d", count)
	}
}

func TestNormalizeSharePermissionsRewritesLegacyLevels(t *testing.T) {
	// Seed a database with pre-normalization grant levels, then open it
	// through the managed path and verify the rewrite.
	dsn := memoryDSN()
	seed, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open seed connection: %v", err)
	}
	seedDB, err := seed.DB()
	if err != nil {
		t.Fatalf("failed to get seed handle: %v", err)
	}
	defer seedDB.Close()

	if err := seed.AutoMigrate(&users.User{}, &notes.Note{}, &notes.ShareGrant{}); err != nil {
		t.Fatalf("failed to create seed schema: %v", err)
	}
	now := time.Now().UTC()
	legacy := []notes.ShareGrant{
		{ID: "g1", NoteID: "n1", UserID: "u1", Permission: "read", CreatedAt: now, UpdatedAt: now},
		{ID: "g2", NoteID: "n1", UserID: "u2", Permission: "write", CreatedAt: now, UpdatedAt: now},
		{ID: "g3", NoteID: "n2", UserID: "u3", Permission: notes.PermissionEdit, CreatedAt: now, UpdatedAt: now},
	}
	if err := seed.Create(&legacy).Error; err != nil {
		t.Fatalf("failed to seed legacy grants: %v", err)
	}

	db, err := OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	var grants []notes.ShareGrant
	if err := db.Order("id").Find(&grants).Error; err != nil {
		t.Fatalf("failed to load grants: %v", err)
	}
	want := map[string]notes.Permission{
		"g1": notes.PermissionView,
		"g2": notes.PermissionEdit,
		"g3": notes.PermissionEdit,
	}
	for _, grant := range grants {
		if grant.Permission != want[grant.ID] {
			t.Fatalf("grant %s has permission %s, want %s", grant.ID, grant.Permission, want[grant.ID])
		}
	}
}
