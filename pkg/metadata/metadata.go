package metadata

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shelfpost/shelfpost/pkg/models"
)

// Parsed is the structured form of a channel post's text. Empty fields mean
// the post didn't carry that piece of metadata, not that it was cleared.
type Parsed struct {
	Title       string
	Author      string
	Description string
	Genres      []string
	Tags        []string
	Rating      *float64
	Composition []models.SeriesWork
}

// Parser extracts structured metadata from free-form post text.
type Parser interface {
	Parse(text string) *Parsed
}

// KeyedParser understands posts formatted as "Key: value" lines. Multiple
// pairs may share a line separated by " / ". A "Composition:" key switches
// the parser into list mode, consuming numbered lines like "1. Title (1998)"
// until the next keyed line. Hashtags anywhere in the text become tags.
type KeyedParser struct{}

func NewKeyedParser() *KeyedParser {
	return &KeyedParser{}
}

var (
	keyedLineRE       = regexp.MustCompile(`^\s*([\pL ]+?)\s*:\s*(.*)$`)
	compositionItemRE = regexp.MustCompile(`^\s*\d+[.)]\s*(.+?)(?:\s*\((\d{4})\))?\s*$`)
	hashtagRE         = regexp.MustCompile(`#([\pL\pN_]+)`)
)

func (p *KeyedParser) Parse(text string) *Parsed {
	parsed := &Parsed{}
	if strings.TrimSpace(text) == "" {
		return parsed
	}

	inComposition := false
	descLines := []string{}
	inDescription := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			inDescription = false
			continue
		}

		if inComposition {
			if m := compositionItemRE.FindStringSubmatch(trimmed); m != nil {
				work := models.SeriesWork{Title: strings.TrimSpace(m[1])}
				if m[2] != "" {
					work.Year, _ = strconv.Atoi(m[2])
				}
				parsed.Composition = append(parsed.Composition, work)
				continue
			}
			inComposition = false
		}

		if !keyedLineRE.MatchString(trimmed) {
			if inDescription {
				descLines = append(descLines, trimmed)
			}
			continue
		}
		inDescription = false

		for _, segment := range strings.Split(trimmed, " / ") {
			m := keyedLineRE.FindStringSubmatch(segment)
			if m == nil {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(m[1]))
			value := strings.TrimSpace(m[2])

			switch key {
			case "title", "название", "книга":
				parsed.Title = value
			case "author", "автор":
				parsed.Author = value
			case "description", "описание", "аннотация":
				inDescription = true
				if value != "" {
					descLines = append(descLines, value)
				}
			case "genre", "genres", "жанр", "жанры":
				parsed.Genres = appendList(parsed.Genres, value)
			case "tag", "tags", "теги":
				parsed.Tags = appendList(parsed.Tags, stripHashes(value)...)
			case "rating", "рейтинг", "оценка":
				if r, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64); err == nil {
					parsed.Rating = &r
				}
			case "composition", "series", "цикл", "состав", "серия":
				inComposition = true
				if m := compositionItemRE.FindStringSubmatch(value); m != nil {
					work := models.SeriesWork{Title: strings.TrimSpace(m[1])}
					if m[2] != "" {
						work.Year, _ = strconv.Atoi(m[2])
					}
					parsed.Composition = append(parsed.Composition, work)
				}
			}
		}
	}

	if len(descLines) > 0 {
		parsed.Description = strings.Join(descLines, "\n")
	}

	for _, m := range hashtagRE.FindAllStringSubmatch(text, -1) {
		tag := strings.ReplaceAll(m[1], "_", " ")
		if !containsFold(parsed.Tags, tag) {
			parsed.Tags = append(parsed.Tags, tag)
		}
	}

	return parsed
}

func appendList(dst []string, values ...string) []string {
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" || containsFold(dst, part) {
				continue
			}
			dst = append(dst, part)
		}
	}
	return dst
}

func stripHashes(value string) []string {
	out := []string{}
	for _, part := range strings.Fields(value) {
		out = append(out, strings.TrimPrefix(part, "#"))
	}
	return out
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
