package main

import "testing"

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("unexpected error loading embedded migrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	wantNames := []string{"create_candles", "create_signals", "create_model_versions"}
	for i, m := range migrations {
		if m.Version != int64(i+1) {
			t.Fatalf("expected migration %d at position %d, got %d", i+1, i, m.Version)
		}
		if m.Name != wantNames[i] {
			t.Fatalf("expected migration name %q, got %q", wantNames[i], m.Name)
		}
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Fatalf("expected non-empty up/down sql for version %d", m.Version)
		}
	}
}

func TestParseMigrationPath(t *testing.T) {
	version, name, direction, err := parseMigrationPath("migrations/0002_create_signals.up.sql")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 2 || name != "create_signals" || direction != "up" {
		t.Fatalf("unexpected parse result: %d %s %s", version, name, direction)
	}

	for _, bad := range []string{
		"migrations/nonsense.sql",
		"migrations/0001_create_candles.sql",
		"migrations/abc_create_candles.up.sql",
	} {
		if _, _, _, err := parseMigrationPath(bad); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}
