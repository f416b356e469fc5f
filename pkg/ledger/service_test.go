package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shelfpost/shelfpost/pkg/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestUpsert_Idempotent(t *testing.T) {
	svc := New(newTestDB(t))
	ctx := context.Background()

	bookID := int64(5)
	require.NoError(t, svc.Upsert(ctx, 100, &bookID))
	require.NoError(t, svc.Upsert(ctx, 100, &bookID))

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsert_NilBookID(t *testing.T) {
	svc := New(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, 100, nil))

	latest, err := svc.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(100), latest.TelegramMessageID)
	assert.Nil(t, latest.BookID)
}

func TestLatest_EmptyLedger(t *testing.T) {
	svc := New(newTestDB(t))

	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestLatest_ReturnsMostRecent(t *testing.T) {
	db := newTestDB(t)
	svc := New(db)
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, 100, nil))
	// ensure distinct processed_at ordering
	_, err := db.NewUpdate().
		Table("processed_messages").
		Set("processed_at = ?", time.Now().Add(-time.Hour)).
		Where("telegram_message_id = ?", 100).
		Exec(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Upsert(ctx, 105, nil))

	latest, err := svc.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(105), latest.TelegramMessageID)
}

func TestMessageIDSet(t *testing.T) {
	svc := New(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, 100, nil))
	require.NoError(t, svc.Upsert(ctx, 101, nil))

	set, err := svc.MessageIDSet(ctx)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Contains(t, set, int64(100))
	assert.Contains(t, set, int64(101))
}
