package sync

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/shelfpost/shelfpost/pkg/books"
	"github.com/shelfpost/shelfpost/pkg/config"
	"github.com/shelfpost/shelfpost/pkg/ledger"
	"github.com/shelfpost/shelfpost/pkg/migrations"
	"github.com/shelfpost/shelfpost/pkg/source"
	"github.com/shelfpost/shelfpost/pkg/storage"
	"github.com/shelfpost/shelfpost/pkg/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type fakeClient struct {
	channels   map[string][]source.Message
	mediaData  map[string][]byte
	blockMedia map[string]bool
}

func (f *fakeClient) ListMessages(_ context.Context, channelID string, limit int, offsetID int64) ([]source.Message, error) {
	msgs := append([]source.Message(nil), f.channels[channelID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })

	out := []source.Message{}
	for _, m := range msgs {
		if offsetID > 0 && m.ID >= offsetID {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeClient) DownloadMedia(ctx context.Context, ref string) ([]byte, error) {
	if f.blockMedia[ref] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.mediaData[ref], nil
}

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

func newTestService(t *testing.T, client *fakeClient) (*Service, *bun.DB, *tasks.Registry) {
	t.Helper()

	db := newTestDB(t)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	registry := tasks.NewRegistry()

	cfg := &config.Config{
		CoverFetchTimeout:  50 * time.Millisecond,
		FileChannelID:      2,
		FileFetchTimeout:   50 * time.Millisecond,
		MatchThreshold:     50,
		MediaFetchAttempts: 1,
		MetadataChannelID:  1,
		SyncBatchPause:     time.Millisecond,
		SyncBatchSize:      2,
	}

	return NewService(cfg, db, client, store, registry), db, registry
}

func TestRunFullSync_ThreeMessageScenario(t *testing.T) {
	client := &fakeClient{channels: map[string][]source.Message{
		"1": {
			{ID: 100, Text: "Title: Foo / Author: Bar"},
			{ID: 101, Text: ""},
			{ID: 102, Text: "Title: Baz / Author: Qux"},
		},
	}}
	svc, db, registry := newTestService(t, client)
	ctx := context.Background()

	taskID := registry.Create()
	result, err := svc.RunFullSync(ctx, taskID, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Metadata.Added)
	assert.Equal(t, 1, result.Metadata.Skipped)
	assert.Equal(t, 0, result.Metadata.Errors)

	led := ledger.New(db)
	count, err := led.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// the no-text message has a ledger row with no book
	set, err := led.MessageIDSet(ctx)
	require.NoError(t, err)
	assert.Contains(t, set, int64(101))

	task, ok := registry.Get(taskID)
	require.True(t, ok)
	assert.Contains(t, task.Message(), books.ReasonNoText)
}

func TestRunFullSync_ReplayIsIdempotent(t *testing.T) {
	client := &fakeClient{channels: map[string][]source.Message{
		"1": {{ID: 100, Text: "Title: Foo / Author: Bar"}},
	}}
	svc, db, registry := newTestService(t, client)
	ctx := context.Background()

	_, err := svc.RunFullSync(ctx, registry.Create(), 0)
	require.NoError(t, err)

	result, err := svc.RunFullSync(ctx, registry.Create(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Metadata.Added)
	assert.Equal(t, 1, result.Metadata.Skipped)

	all, err := books.NewService(db).ListBooks(ctx, books.ListBooksOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	count, err := ledger.New(db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunUpdateSync_PaginationConvergence(t *testing.T) {
	// five messages, batch size two: repeated incremental runs each resume
	// from the previous watermark and eventually cover the whole channel
	client := &fakeClient{channels: map[string][]source.Message{
		"1": {
			{ID: 100, Text: "Title: A / Author: X"},
			{ID: 101, Text: "Title: B / Author: X"},
			{ID: 102, Text: "Title: C / Author: X"},
			{ID: 103, Text: "Title: D / Author: X"},
			{ID: 104, Text: "Title: E / Author: X"},
		},
	}}
	svc, db, registry := newTestService(t, client)
	ctx := context.Background()

	led := ledger.New(db)
	for i := 0; i < 4; i++ {
		_, err := svc.RunUpdateSync(ctx, registry.Create(), 2)
		require.NoError(t, err)
	}

	count, err := led.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	all, err := books.NewService(db).ListBooks(ctx, books.ListBooksOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestRunAutoSync_EmptyLedgerRunsFull(t *testing.T) {
	client := &fakeClient{channels: map[string][]source.Message{
		"1": {{ID: 100, Text: "Title: Foo / Author: Bar"}},
	}}
	svc, _, registry := newTestService(t, client)

	taskID := registry.Create()
	result, err := svc.RunAutoSync(context.Background(), taskID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Metadata.Added)

	task, _ := registry.Get(taskID)
	assert.Contains(t, task.Message(), "running full sync")
}

func TestRunAutoSync_GapTriggersFull(t *testing.T) {
	client := &fakeClient{channels: map[string][]source.Message{
		"1": {{ID: 100, Text: "Title: Foo / Author: Bar"}},
	}}
	svc, db, registry := newTestService(t, client)
	ctx := context.Background()

	_, err := svc.RunFullSync(ctx, registry.Create(), 0)
	require.NoError(t, err)

	// a message appears that no ledger row covers
	client.channels["1"] = append(client.channels["1"], source.Message{ID: 105, Text: "Title: New / Author: Bar"})

	taskID := registry.Create()
	result, err := svc.RunAutoSync(ctx, taskID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Metadata.Added)

	task, _ := registry.Get(taskID)
	assert.Contains(t, task.Message(), "running full sync")

	count, err := ledger.New(db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunAutoSync_NoGapRunsUpdate(t *testing.T) {
	client := &fakeClient{channels: map[string][]source.Message{
		"1": {{ID: 100, Text: "Title: Foo / Author: Bar"}},
	}}
	svc, _, registry := newTestService(t, client)
	ctx := context.Background()

	_, err := svc.RunFullSync(ctx, registry.Create(), 0)
	require.NoError(t, err)

	taskID := registry.Create()
	_, err = svc.RunAutoSync(ctx, taskID, 0)
	require.NoError(t, err)

	task, _ := registry.Get(taskID)
	assert.Contains(t, task.Message(), "running update sync")
}

func TestRunFullSync_CoverTimeoutDegradesGracefully(t *testing.T) {
	client := &fakeClient{
		channels: map[string][]source.Message{
			"1": {{
				ID:    100,
				Text:  "Title: Foo / Author: Bar",
				Media: &source.Media{Kind: source.MediaKindPhoto, Ref: "slow"},
			}},
		},
		blockMedia: map[string]bool{"slow": true},
	}
	svc, db, registry := newTestService(t, client)
	ctx := context.Background()

	result, err := svc.RunFullSync(ctx, registry.Create(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Metadata.Added)

	book, err := books.NewService(db).RetrieveBook(ctx, books.RetrieveBookOptions{
		Title:  strptr("Foo"),
		Author: strptr("Bar"),
	})
	require.NoError(t, err)
	assert.False(t, book.HasCover())
}

func TestRunLinkFiles(t *testing.T) {
	client := &fakeClient{
		channels: map[string][]source.Message{
			"1": {{ID: 100, Text: "Title: Night Watch / Author: Jane Doe"}},
			"2": {
				{ID: 200, Media: &source.Media{Kind: source.MediaKindDocument, Ref: "f1", Filename: "Jane_Doe_Night_Watch.zip"}},
				{ID: 201, Media: &source.Media{Kind: source.MediaKindDocument, Ref: "f2", Filename: "Jane_Doe_Day_Shift.zip"}},
			},
		},
		mediaData: map[string][]byte{"f1": []byte("zip-bytes")},
	}
	svc, db, registry := newTestService(t, client)
	ctx := context.Background()

	result, err := svc.RunFullSync(ctx, registry.Create(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Files.Linked)

	book, err := books.NewService(db).RetrieveBook(ctx, books.RetrieveBookOptions{
		Title:  strptr("Night Watch"),
		Author: strptr("Jane Doe"),
	})
	require.NoError(t, err)
	require.True(t, book.HasFile())
	assert.Contains(t, *book.FileURL, "Jane_Doe_Night_Watch.zip")
	require.NotNil(t, book.FileFormat)
	assert.Equal(t, "zip", *book.FileFormat)
	require.NotNil(t, book.FileSizeBytes)
	assert.Equal(t, int64(len("zip-bytes")), *book.FileSizeBytes)
}

func TestRunLinkFiles_NoMatchLeavesBookUntouched(t *testing.T) {
	client := &fakeClient{
		channels: map[string][]source.Message{
			"1": {{ID: 100, Text: "Title: Twilight Patrol / Author: Jane Doe"}},
			"2": {{ID: 200, Media: &source.Media{Kind: source.MediaKindDocument, Ref: "f1", Filename: "Some_Other_Book.zip"}}},
		},
	}
	svc, db, registry := newTestService(t, client)
	ctx := context.Background()

	result, err := svc.RunFullSync(ctx, registry.Create(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Files.Linked)
	assert.Equal(t, 1, result.Files.Unmatched)

	book, err := books.NewService(db).RetrieveBook(ctx, books.RetrieveBookOptions{
		Title:  strptr("Twilight Patrol"),
		Author: strptr("Jane Doe"),
	})
	require.NoError(t, err)
	assert.False(t, book.HasFile())
}

func strptr(s string) *string { return &s }
