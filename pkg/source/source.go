package source

import (
	"context"
	"strings"
	"time"
)

// MediaKind classifies a message attachment once, at ingestion, so the rest
// of the pipeline can switch on it instead of probing shapes.
type MediaKind string

const (
	MediaKindWebPreviewPhoto MediaKind = "web_preview_photo"
	MediaKindPhoto           MediaKind = "photo"
	MediaKindImageDocument   MediaKind = "image_document"
	MediaKindDocument        MediaKind = "document"
)

// Media is one resolved attachment. Ref is the opaque handle the gateway
// accepts for downloads.
type Media struct {
	Kind      MediaKind `json:"kind"`
	Ref       string    `json:"ref"`
	Filename  string    `json:"filename,omitempty"`
	MimeType  string    `json:"mime_type,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
}

// IsImage reports whether the media can serve as a cover.
func (m *Media) IsImage() bool {
	switch m.Kind {
	case MediaKindWebPreviewPhoto, MediaKindPhoto, MediaKindImageDocument:
		return true
	case MediaKindDocument:
		return false
	}
	return false
}

// Message is one channel post.
type Message struct {
	ID    int64     `json:"id"`
	Date  time.Time `json:"date"`
	Text  string    `json:"text,omitempty"`
	Media *Media    `json:"media,omitempty"`
}

// Client lists messages from a channel and downloads their media. Offset
// semantics follow the gateway: messages older than offsetID are returned in
// descending id order; offsetID 0 starts from the newest.
type Client interface {
	ListMessages(ctx context.Context, channelID string, limit int, offsetID int64) ([]Message, error)
	DownloadMedia(ctx context.Context, ref string) ([]byte, error)
}

// classifyMedia resolves the gateway's raw media descriptor into a tagged
// kind. Documents with an image mime type count as image documents since
// channels often post covers as uncompressed files.
func classifyMedia(rawType, mimeType string) MediaKind {
	switch rawType {
	case "web_preview_photo":
		return MediaKindWebPreviewPhoto
	case "photo":
		return MediaKindPhoto
	default:
		if strings.HasPrefix(mimeType, "image/") {
			return MediaKindImageDocument
		}
		return MediaKindDocument
	}
}
