package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type capturedSQL struct {
	sql  string
	vars []interface{}
}

// dryRunPostgres builds statements without a server and records them. Writes
// skip the implicit transaction, which would otherwise open a connection.
func dryRunPostgres(t *testing.T) (*gorm.DB, *[]capturedSQL) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 port=5432 user=postgres dbname=wallet_bridge",
	}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	var captured []capturedSQL
	record := func(tx *gorm.DB) {
		captured = append(captured, capturedSQL{sql: tx.Statement.SQL.String(), vars: tx.Statement.Vars})
	}
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:create", record))
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:query", record))
	require.NoError(t, db.Callback().Delete().After("gorm:delete").Register("test:delete", record))
	return db, &captured
}

func TestPostgresStatements(t *testing.T) {
	ctx := context.Background()
	db, captured := dryRunPostgres(t)
	p := NewPostgres(db, DefaultKeyPrefix, time.Minute)
	now := time.UnixMilli(1_700_000_000_000)
	p.now = func() time.Time { return now }

	require.NoError(t, p.SetItem(ctx, "recentConnectorId", "injected"))
	_, _, err := p.GetItem(ctx, "recentConnectorId")
	require.NoError(t, err)
	require.NoError(t, p.RemoveItem(ctx, "recentConnectorId"))
	require.NoError(t, p.Clear(ctx))
	require.Len(t, *captured, 4)

	set := (*captured)[0]
	assert.Contains(t, set.sql, `INSERT INTO "wallet_storage_items"`)
	assert.Contains(t, set.sql, `ON CONFLICT ("item_key") DO UPDATE SET`)
	assert.Contains(t, set.vars, "wagmi.recentConnectorId")
	assert.Contains(t, set.vars, now.Add(time.Minute).UnixMilli())

	get := (*captured)[1]
	assert.Contains(t, get.sql, "expires_at = 0 OR expires_at >")
	assert.Contains(t, get.vars, "wagmi.recentConnectorId")

	assert.Contains(t, (*captured)[2].sql, `DELETE FROM "wallet_storage_items"`)
	wipe := (*captured)[3]
	assert.Contains(t, wipe.sql, "item_key LIKE")
	assert.Equal(t, []interface{}{"wagmi.%"}, wipe.vars)
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, "wagmi.%", likePrefix("wagmi"))
	assert.Equal(t, `my\_app.%`, likePrefix("my_app"))
	assert.Equal(t, "%", likePrefix(""))
}
