package match

import (
	"path/filepath"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	// conjunctions and prepositions
	"and": {}, "or": {}, "the": {}, "of": {}, "in": {}, "on": {}, "for": {},
	"with": {}, "from": {}, "by": {},
	"и": {}, "или": {}, "в": {}, "на": {}, "из": {}, "по": {}, "не": {},
	"от": {}, "до": {}, "для": {},
	// domain filler
	"series": {}, "volume": {}, "vol": {}, "collection": {}, "translation": {},
	"book": {}, "books": {}, "edition": {}, "part": {},
	"серия": {}, "цикл": {}, "том": {}, "книга": {}, "книги": {},
	"сборник": {}, "перевод": {}, "издание": {}, "часть": {},
	// language codes
	"ru": {}, "en": {}, "uk": {}, "ua": {},
	"rus": {}, "eng": {}, "ukr": {},
}

// suffixes stripped during lemmatization, longest first. Russian inflection
// endings plus a few English ones; a suffix is only stripped when the
// remaining stem keeps at least four runes.
var lemmaSuffixes = []string{
	"иями", "ость", "ости",
	"ями", "ами", "ого", "его", "ому", "ему", "ыми", "ими",
	"ешь", "ишь", "ать", "ять", "еть", "ить", "ing",
	"ие", "ия", "ий", "ый", "ой", "ая", "яя", "ое", "ее", "ов", "ев",
	"ам", "ям", "ах", "ях", "ом", "ем", "ей", "ую", "юю", "ed", "es",
	"а", "я", "о", "е", "у", "ю", "ы", "и", "ь", "s",
}

// Tokenize breaks a normalized string into comparison tokens: the file
// extension is dropped, everything that isn't a letter or digit acts as a
// separator (which also discards emoji and brackets), and the survivors are
// filtered for length, stopwords, and standalone year tokens, then
// lemmatized.
func Tokenize(s string) []string {
	s = Normalize(s)

	if ext := filepath.Ext(s); len(ext) > 1 && len(ext) <= 6 {
		s = strings.TrimSuffix(s, ext)
	}

	raw := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len([]rune(tok)) < 2 {
			continue
		}
		if isYear(tok) {
			continue
		}
		if _, ok := stopwords[tok]; ok {
			continue
		}
		tokens = append(tokens, lemmatize(tok))
	}
	return tokens
}

func isYear(tok string) bool {
	if len(tok) != 4 {
		return false
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return tok >= "1800" && tok <= "2100"
}

func lemmatize(tok string) string {
	for _, suffix := range lemmaSuffixes {
		if !strings.HasSuffix(tok, suffix) {
			continue
		}
		stem := strings.TrimSuffix(tok, suffix)
		if len([]rune(stem)) >= 4 {
			return stem
		}
	}
	return tok
}
