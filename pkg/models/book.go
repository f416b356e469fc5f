package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID             int64     `bun:",pk,nullzero" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Title          string    `bun:",nullzero" json:"title"`
	Author         string    `bun:",nullzero" json:"author"`
	Description    *string   `json:"description,omitempty"`
	Genres         []string  `bun:",nullzero" json:"genres,omitempty"`
	Tags           []string  `bun:",nullzero" json:"tags,omitempty"`
	Rating         *float64  `json:"rating,omitempty"`
	CoverURL       *string   `json:"cover_url,omitempty"`
	FileURL        *string   `json:"file_url,omitempty"`
	FileSizeBytes  *int64    `json:"file_size_bytes,omitempty"`
	FileFormat     *string   `json:"file_format,omitempty"`
	TelegramPostID *int64    `json:"telegram_post_id,omitempty"`
	SeriesID       *int64    `json:"series_id,omitempty"`
	Series         *Series   `bun:"rel:belongs-to" json:"series,omitempty"`
}

// HasFile reports whether a book file has already been linked.
func (b *Book) HasFile() bool {
	return b.FileURL != nil && *b.FileURL != ""
}

// HasCover reports whether a cover has already been linked.
func (b *Book) HasCover() bool {
	return b.CoverURL != nil && *b.CoverURL != ""
}
