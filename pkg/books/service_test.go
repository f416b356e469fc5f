package books

import (
	"context"
	"database/sql"
	"testing"

	"github.com/pkg/errors"
	"github.com/shelfpost/shelfpost/pkg/errcodes"
	"github.com/shelfpost/shelfpost/pkg/migrations"
	"github.com/shelfpost/shelfpost/pkg/models"
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

func strptr(s string) *string { return &s }

func TestCreateBook(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	book := &models.Book{
		Title:  "Night Watch",
		Author: "Jane Doe",
		Genres: []string{"fantasy"},
	}
	require.NoError(t, svc.CreateBook(ctx, book))
	assert.NotZero(t, book.ID)
	assert.False(t, book.CreatedAt.IsZero())

	fetched, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
	require.NoError(t, err)
	assert.Equal(t, "Night Watch", fetched.Title)
	assert.Equal(t, []string{"fantasy"}, fetched.Genres)
}

func TestCreateBook_WithSeries(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	book := &models.Book{
		Title:  "Night Watch",
		Author: "Jane Doe",
		Series: &models.Series{
			Title:       "Watches",
			Author:      "Jane Doe",
			Composition: []models.SeriesWork{{Title: "Night Watch", Year: 1998}},
		},
	}
	require.NoError(t, svc.CreateBook(ctx, book))
	require.NotNil(t, book.SeriesID)
	assert.NotZero(t, *book.SeriesID)

	fetched, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
	require.NoError(t, err)
	require.NotNil(t, fetched.Series)
	assert.Equal(t, "Watches", fetched.Series.Title)
	require.Len(t, fetched.Series.Composition, 1)
	assert.Equal(t, 1998, fetched.Series.Composition[0].Year)
}

func TestRetrieveBook_ByTitleAuthor(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.CreateBook(ctx, &models.Book{Title: "Night Watch", Author: "Jane Doe"}))

	fetched, err := svc.RetrieveBook(ctx, RetrieveBookOptions{
		Title:  strptr("Night Watch"),
		Author: strptr("Jane Doe"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Night Watch", fetched.Title)

	// lookup is strict string equality
	_, err = svc.RetrieveBook(ctx, RetrieveBookOptions{
		Title:  strptr("night watch"),
		Author: strptr("Jane Doe"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcodes.NotFound("Book")))
}

func TestListBooks_MissingFiles(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	postID := int64(100)
	withFile := &models.Book{
		Title:          "Has File",
		Author:         "Jane Doe",
		TelegramPostID: &postID,
		FileURL:        strptr("/media/files/1_x.zip"),
	}
	require.NoError(t, svc.CreateBook(ctx, withFile))

	postID2 := int64(101)
	withoutFile := &models.Book{
		Title:          "No File",
		Author:         "Jane Doe",
		TelegramPostID: &postID2,
	}
	require.NoError(t, svc.CreateBook(ctx, withoutFile))

	// no post reference at all: not a linking candidate
	require.NoError(t, svc.CreateBook(ctx, &models.Book{Title: "No Post", Author: "Jane Doe"}))

	missing, err := svc.ListBooks(ctx, ListBooksOptions{MissingFiles: true})
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "No File", missing[0].Title)
}

func TestUpdateBook_OnlyListedColumns(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	book := &models.Book{Title: "Night Watch", Author: "Jane Doe"}
	require.NoError(t, svc.CreateBook(ctx, book))

	book.Description = strptr("a description")
	book.Rating = float64ptr(8.4)
	require.NoError(t, svc.UpdateBook(ctx, book, UpdateBookOptions{Columns: []string{"description"}}))

	fetched, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
	require.NoError(t, err)
	require.NotNil(t, fetched.Description)
	assert.Equal(t, "a description", *fetched.Description)
	assert.Nil(t, fetched.Rating)
}

func float64ptr(f float64) *float64 { return &f }
