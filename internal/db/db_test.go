package db

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/friendsincode/guildtune/internal/config"
	"github.com/friendsincode/guildtune/internal/models"
	"github.com/friendsincode/guildtune/internal/telemetry"
)

func TestConnectWithoutDSN(t *testing.T) {
	_, err := Connect(&config.Config{DBBackend: config.DatabaseSQLite})
	if !errors.Is(err, ErrNoDSN) {
		t.Fatalf("expected ErrNoDSN, got %v", err)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open("oracle", "whatever"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestCallbacksRecordQueries(t *testing.T) {
	database, err := Open(config.DatabaseSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = Close(database) })

	if err := database.AutoMigrate(&models.GuildPreference{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var row models.GuildPreference
	err = database.Where("guild_id = ?", "missing").First(&row).Error
	if err == nil {
		t.Fatal("expected record not found")
	}
	if testutil.CollectAndCount(telemetry.DatabaseQueryDuration) == 0 {
		t.Fatal("query duration not observed")
	}

	errs := telemetry.DatabaseErrorsTotal.WithLabelValues("query", "query_error")
	before := testutil.ToFloat64(errs)
	if err := database.Migrator().DropTable(&models.GuildPreference{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_ = database.Where("guild_id = ?", "g1").First(&row).Error
	if got := testutil.ToFloat64(errs); got != before+1 {
		t.Fatalf("errors counter = %v, want %v", got, before+1)
	}

	UpdateConnectionMetrics(database)
	if testutil.ToFloat64(telemetry.DatabaseConnectionsActive) < 1 {
		t.Fatal("expected at least one open connection")
	}
}
