package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_create_items.up.sql": {Data: []byte(
			"CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
		"20260102_000000_add_items_note.up.sql": {Data: []byte(
			"ALTER TABLE items ADD COLUMN note TEXT;")},
		"20260101_000000_create_items.down.sql": {Data: []byte("DROP TABLE items;")},
		"README.md":                             {Data: []byte("not a migration")},
	}
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO items (name, note) VALUES (?, ?)", "a", "b"); err != nil {
		t.Fatalf("migrated schema unusable: %v", err)
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %d, want 2", len(applied))
	}

	// Second run is a no-op.
	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	broken := fstest.MapFS{
		"20260101_000000_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLE nope (")},
	}

	if err := db.Migrate(ctx, broken); err == nil {
		t.Fatal("Migrate() expected error for broken migration")
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if !applied["20260101_000000"] || applied["20260102_000000"] {
		t.Errorf("applied = %v, want only the first migration", applied)
	}
}

func TestMigrate_NilFS(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"20260301_090000_device_credentials.up.sql", "20260301_090000", "device_credentials", true},
		{"20260301_090000.up.sql", "20260301_090000", "20260301_090000", true},
		{"20260301_090000_device_credentials.down.sql", "", "", false},
		{"20260301.up.sql", "", "", false},
		{"notes.txt", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK || version != tt.wantVersion || name != tt.wantName {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.filename, version, name, ok, tt.wantVersion, tt.wantName, tt.wantOK)
			}
		})
	}
}
