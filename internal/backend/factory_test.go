package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tally/internal/config"
	"tally/internal/store/memory"
	"tally/internal/store/sqlite"
)

func writeSeed(t *testing.T, dir string, names ...string) {
	t.Helper()
	content := ""
	for _, n := range names {
		content += n + "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, "seed_users.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		DataBackend:  "sqlite",
		SQLiteDBPath: "/tmp/tally.db",
		SeedDir:      "seed",
		Timezone:     "Europe/Rome",
	}
	got, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if got.Type != SQLiteBackend || got.SQLiteDBPath != "/tmp/tally.db" || got.SeedDir != "seed" {
		t.Errorf("FromAppConfig() = %+v", got)
	}
	if got.Location.String() != "Europe/Rome" {
		t.Errorf("Location = %v, want Europe/Rome", got.Location)
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"mongo without uri", Config{Type: MongoBackend}, true},
		{"mongo", Config{Type: MongoBackend, MongoURI: "mongodb://localhost"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "alice", "bob")

	b, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, SeedDir: dir, Location: time.UTC})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer b.Close()

	if _, ok := b.(*memory.Store); !ok {
		t.Fatalf("backend is %T, want *memory.Store", b)
	}
	users, err := b.ListUsers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].Name != "bob" {
		t.Errorf("ListUsers() = %+v", users)
	}
}

func TestCreateSQLiteBackendSeedsUsers(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "carol")

	b, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SeedDir:      dir,
		SQLiteDBPath: filepath.Join(dir, "tally.db"),
		Location:     time.UTC,
	})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer b.Close()

	if _, ok := b.(*sqlite.Repository); !ok {
		t.Fatalf("backend is %T, want *sqlite.Repository", b)
	}
	users, err := b.ListUsers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Name != "carol" {
		t.Errorf("ListUsers() = %+v", users)
	}
	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
