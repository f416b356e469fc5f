package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shelfpost/shelfpost/pkg/models"
	"github.com/uptrace/bun"
)

// Service owns the processed-message ledger. One row per channel message,
// upsert semantics, written on every classified message whether or not a
// book came out of it.
type Service struct {
	db *bun.DB
}

func New(db *bun.DB) *Service {
	return &Service{db: db}
}

// Upsert records that a message has been classified. Replaying a message
// refreshes its row in place instead of adding a second one.
func (s *Service) Upsert(ctx context.Context, messageID int64, bookID *int64) error {
	row := &models.ProcessedMessage{
		TelegramMessageID: messageID,
		BookID:            bookID,
		ProcessedAt:       time.Now(),
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (telegram_message_id) DO UPDATE").
		Set("book_id = EXCLUDED.book_id").
		Set("processed_at = EXCLUDED.processed_at").
		Exec(ctx)
	return errors.WithStack(err)
}

// Latest returns the most recently processed row, or nil when the ledger is
// empty. Its message id is the offset an incremental sync resumes from.
func (s *Service) Latest(ctx context.Context) (*models.ProcessedMessage, error) {
	row := &models.ProcessedMessage{}
	err := s.db.NewSelect().
		Model(row).
		// ties prefer the lowest id: the crawl moves backward, so the most
		// recently processed message is the deepest one
		Order("processed_at DESC", "telegram_message_id ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return row, nil
}

// MessageIDSet returns every recorded message id, used by auto sync's gap
// check.
func (s *Service) MessageIDSet(ctx context.Context) (map[int64]struct{}, error) {
	ids := []int64{}
	err := s.db.NewSelect().
		Model((*models.ProcessedMessage)(nil)).
		Column("telegram_message_id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// Count returns the number of ledger rows.
func (s *Service) Count(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().
		Model((*models.ProcessedMessage)(nil)).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}
