package books

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shelfpost/shelfpost/pkg/errcodes"
	"github.com/shelfpost/shelfpost/pkg/ledger"
	"github.com/shelfpost/shelfpost/pkg/metadata"
	"github.com/shelfpost/shelfpost/pkg/models"
)

type Status string

const (
	StatusAdded   Status = "added"
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Skip reasons form a fixed taxonomy so run logs can be compared between
// syncs.
const (
	ReasonNoText             = "no text content"
	ReasonMissingTitleAuthor = "missing title or author"
	ReasonAlreadyExists      = "book already exists in database"

	// NoteMetadataComplete marks a skip where every field the post supplied
	// was already present on the existing record.
	NoteMetadataComplete = "metadata complete"
)

// Outcome is the per-message classification the orchestrator appends to a
// run's detail log.
type Outcome struct {
	Status Status   `json:"status"`
	BookID *int64   `json:"book_id,omitempty"`
	Reason string   `json:"reason,omitempty"`
	Notes  []string `json:"notes,omitempty"`
}

// Reconciler decides add vs. update vs. skip for each parsed record against
// the catalog, and writes the ledger row that makes resync converge. Merges
// are strictly additive: an existing non-empty field is never overwritten.
type Reconciler struct {
	books  *Service
	ledger *ledger.Service
}

func NewReconciler(books *Service, ledger *ledger.Service) *Reconciler {
	return &Reconciler{books: books, ledger: ledger}
}

// Reconcile classifies one parsed record. coverURL, when non-nil, is a cover
// already persisted by the caller and participates in the merge like any
// other optional field. A ledger row is written on every non-error outcome,
// including skips, so that the message is never revisited by incremental
// runs.
func (r *Reconciler) Reconcile(ctx context.Context, parsed *metadata.Parsed, messageID int64, coverURL *string) Outcome {
	if parsed.Title == "" || parsed.Author == "" {
		if err := r.ledger.Upsert(ctx, messageID, nil); err != nil {
			return Outcome{Status: StatusError, Reason: err.Error()}
		}
		return Outcome{Status: StatusSkipped, Reason: ReasonMissingTitleAuthor}
	}

	existing, err := r.books.RetrieveBook(ctx, RetrieveBookOptions{
		Title:  &parsed.Title,
		Author: &parsed.Author,
	})
	if err != nil && !errors.Is(err, errcodes.NotFound("Book")) {
		return Outcome{Status: StatusError, Reason: err.Error()}
	}

	if existing == nil {
		return r.add(ctx, parsed, messageID, coverURL)
	}
	return r.update(ctx, existing, parsed, messageID, coverURL)
}

func (r *Reconciler) add(ctx context.Context, parsed *metadata.Parsed, messageID int64, coverURL *string) Outcome {
	book := &models.Book{
		Title:          parsed.Title,
		Author:         parsed.Author,
		Genres:         parsed.Genres,
		Tags:           parsed.Tags,
		Rating:         parsed.Rating,
		CoverURL:       coverURL,
		TelegramPostID: &messageID,
	}
	if parsed.Description != "" {
		book.Description = &parsed.Description
	}
	if len(parsed.Composition) > 0 {
		book.Series = &models.Series{
			Title:       parsed.Title,
			Author:      parsed.Author,
			Description: book.Description,
			Composition: parsed.Composition,
			CoverURL:    coverURL,
		}
	}

	if err := r.books.CreateBook(ctx, book); err != nil {
		return Outcome{Status: StatusError, Reason: err.Error()}
	}
	if err := r.ledger.Upsert(ctx, messageID, &book.ID); err != nil {
		return Outcome{Status: StatusError, BookID: &book.ID, Reason: err.Error()}
	}
	return Outcome{Status: StatusAdded, BookID: &book.ID}
}

func (r *Reconciler) update(ctx context.Context, existing *models.Book, parsed *metadata.Parsed, messageID int64, coverURL *string) Outcome {
	columns := []string{}
	notes := []string{}

	if parsed.Description != "" {
		if existing.Description == nil || *existing.Description == "" {
			existing.Description = &parsed.Description
			columns = append(columns, "description")
		} else {
			notes = append(notes, "existing has description")
		}
	}
	if len(parsed.Genres) > 0 {
		if len(existing.Genres) == 0 {
			existing.Genres = parsed.Genres
			columns = append(columns, "genres")
		} else {
			notes = append(notes, "existing has genres")
		}
	}
	if len(parsed.Tags) > 0 {
		if len(existing.Tags) == 0 {
			existing.Tags = parsed.Tags
			columns = append(columns, "tags")
		} else {
			notes = append(notes, "existing has tags")
		}
	}
	if parsed.Rating != nil {
		if existing.Rating == nil {
			existing.Rating = parsed.Rating
			columns = append(columns, "rating")
		} else {
			notes = append(notes, "existing has rating")
		}
	}
	if coverURL != nil && *coverURL != "" {
		if !existing.HasCover() {
			existing.CoverURL = coverURL
			columns = append(columns, "cover_url")
		} else {
			notes = append(notes, "existing has cover")
		}
	}
	if existing.TelegramPostID == nil {
		existing.TelegramPostID = &messageID
		columns = append(columns, "telegram_post_id")
	}
	if len(parsed.Composition) > 0 && existing.SeriesID == nil {
		series := &models.Series{
			Title:       existing.Title,
			Author:      existing.Author,
			Description: existing.Description,
			Composition: parsed.Composition,
			CoverURL:    existing.CoverURL,
		}
		if err := r.books.CreateSeries(ctx, series); err != nil {
			return Outcome{Status: StatusError, BookID: &existing.ID, Reason: err.Error()}
		}
		existing.SeriesID = &series.ID
		columns = append(columns, "series_id")
	}

	if len(columns) > 0 {
		if err := r.books.UpdateBook(ctx, existing, UpdateBookOptions{Columns: columns}); err != nil {
			return Outcome{Status: StatusError, BookID: &existing.ID, Reason: err.Error()}
		}
		if err := r.ledger.Upsert(ctx, messageID, &existing.ID); err != nil {
			return Outcome{Status: StatusError, BookID: &existing.ID, Reason: err.Error()}
		}
		return Outcome{Status: StatusUpdated, BookID: &existing.ID, Notes: notes}
	}

	if err := r.ledger.Upsert(ctx, messageID, &existing.ID); err != nil {
		return Outcome{Status: StatusError, BookID: &existing.ID, Reason: err.Error()}
	}
	if len(notes) > 0 {
		notes = append(notes, NoteMetadataComplete)
	}
	return Outcome{Status: StatusSkipped, BookID: &existing.ID, Reason: ReasonAlreadyExists, Notes: notes}
}
