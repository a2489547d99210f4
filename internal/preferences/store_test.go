package preferences

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/guildtune/internal/cache"
	"github.com/friendsincode/guildtune/internal/config"
	"github.com/friendsincode/guildtune/internal/db"
	"github.com/friendsincode/guildtune/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := db.Open(config.DatabaseSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })

	// The store never migrates; tests create the table themselves.
	if err := conn.AutoMigrate(&models.GuildPreference{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestGormStoreLookup(t *testing.T) {
	conn := openTestDB(t)
	rows := []models.GuildPreference{
		{GuildID: "loud", DefaultVolume: 90, Autoplay: true, Filter: "bassboost"},
		{GuildID: "unset-volume", DefaultVolume: 0, Loop: true},
	}
	if err := conn.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	defaults := Defaults(50)
	store := NewGormStore(conn, cache.NewWithClient(nil, cache.DefaultConfig(), zerolog.Nop()), defaults, zerolog.Nop())

	tests := []struct {
		guild string
		want  models.Preferences
	}{
		{"loud", models.Preferences{DefaultVolume: 90, Autoplay: true, Filter: "bassboost"}},
		{"unset-volume", models.Preferences{DefaultVolume: 50, Loop: true}},
		{"missing", defaults},
	}
	for _, tt := range tests {
		t.Run(tt.guild, func(t *testing.T) {
			got, err := store.Lookup(context.Background(), tt.guild)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGormStoreReportsQueryErrors(t *testing.T) {
	conn := openTestDB(t)
	if err := conn.Migrator().DropTable(&models.GuildPreference{}); err != nil {
		t.Fatalf("drop: %v", err)
	}

	store := NewGormStore(conn, nil, Defaults(40), zerolog.Nop())
	prefs, err := store.Lookup(context.Background(), "g1")
	if err == nil {
		t.Fatal("expected error for missing table")
	}
	if prefs.DefaultVolume != 40 {
		t.Fatalf("expected defaults alongside error, got %+v", prefs)
	}
}

func TestStatic(t *testing.T) {
	want := models.Preferences{DefaultVolume: 30, Loop: true}
	got, err := Static{Prefs: want}.Lookup(context.Background(), "any")
	if err != nil || got != want {
		t.Fatalf("got %+v, %v", got, err)
	}
}
