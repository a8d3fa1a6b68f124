package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestPresenceUpdate_IgnoresOlderWrites(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=127.0.0.1 port=1 user=none dbname=none"}),
		&gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	at := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	stmt := presenceUpdate(db, "user_A", true, at).Statement

	sql := stmt.SQL.String()
	assert.Contains(t, sql, `UPDATE "users" SET`)
	assert.Contains(t, sql, "last_seen IS NULL OR last_seen <=")
	assert.Contains(t, stmt.Vars, "user_A")
	assert.Contains(t, stmt.Vars, at)
}
