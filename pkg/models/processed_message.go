package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ProcessedMessage is one row of the append-only ledger of channel messages
// that have been classified. At most one row exists per telegram message id;
// the row with the latest processed_at is the incremental sync watermark. Rows
// are written independently of the book lifecycle: a skipped message still
// gets one, with a nil book id when no record was resolved.
type ProcessedMessage struct {
	bun.BaseModel `bun:"table:processed_messages,alias:pm"`

	ID                int64     `bun:",pk,nullzero" json:"id"`
	TelegramMessageID int64     `bun:",nullzero" json:"telegram_message_id"`
	BookID            *int64    `json:"book_id,omitempty"`
	ProcessedAt       time.Time `json:"processed_at"`
}
