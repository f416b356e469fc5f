package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SeriesWork is one entry of a series composition. The composition is inlined
// on the series as JSON rather than modeled as owned rows.
type SeriesWork struct {
	Title string `json:"title"`
	Year  int    `json:"year,omitempty"`
}

type Series struct {
	bun.BaseModel `bun:"table:series,alias:s"`

	ID          int64        `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Title       string       `bun:",nullzero" json:"title"`
	Author      string       `bun:",nullzero" json:"author"`
	Description *string      `json:"description,omitempty"`
	Composition []SeriesWork `bun:",nullzero" json:"composition,omitempty"`
	CoverURL    *string      `json:"cover_url,omitempty"`
}
