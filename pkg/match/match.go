package match

import "sort"

const (
	// DefaultThreshold is the minimum score at which a filename is linked to
	// a record without human review.
	DefaultThreshold = 50
	// MaxCandidates bounds how many scored filenames are kept per record for
	// interactive selection.
	MaxCandidates = 15

	tokenMatchScore  = 20
	unmatchedPenalty = 3
	authorPenaltyCap = 6
	ratioBonus       = 10
	coverageBonus    = 10
	multiTitleBonus  = 5
	authorExactBonus = 10
)

// Candidate is one scored filename. Index refers back to the caller's input
// slice so the caller can recover whatever the filename belonged to.
type Candidate struct {
	Index        int      `json:"index"`
	Filename     string   `json:"filename"`
	Score        int      `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// Score rates how well a filename fits a record's title and author. The
// scale is open-ended: each filename token that exactly matches a title or
// author token (after normalization and lemmatization) earns points, light
// penalties accrue for unmatched tokens, and bonuses reward high overlap in
// either direction. An empty title or author, or a filename with no usable
// tokens, always scores zero.
func Score(title, author, filename string) (int, []string) {
	if title == "" || author == "" {
		return 0, nil
	}

	fileTokens := Tokenize(filename)
	if len(fileTokens) == 0 {
		return 0, nil
	}

	titleTokens := tokenSet(Tokenize(title))
	authorTokens := tokenSet(Tokenize(author))
	if len(titleTokens) == 0 && len(authorTokens) == 0 {
		return 0, nil
	}

	matched := []string{}
	titleMatched := map[string]struct{}{}
	authorMatched := map[string]struct{}{}
	score := 0
	unmatched := 0

	for _, tok := range fileTokens {
		_, inTitle := titleTokens[tok]
		_, inAuthor := authorTokens[tok]
		if !inTitle && !inAuthor {
			unmatched++
			continue
		}
		score += tokenMatchScore
		matched = append(matched, tok)
		if inTitle {
			titleMatched[tok] = struct{}{}
		}
		if inAuthor {
			authorMatched[tok] = struct{}{}
		}
	}

	// The author segment agrees exactly when every author token appears in
	// the filename.
	authorExact := len(authorTokens) > 0 && len(authorMatched) == len(authorTokens)

	if len(titleMatched) == 0 && !authorExact {
		// Different (or absent) author and zero title overlap: whatever
		// matched is a coincidence, not evidence.
		return 0, nil
	}

	penalty := unmatched * unmatchedPenalty
	if authorExact && penalty > authorPenaltyCap {
		penalty = authorPenaltyCap
	}
	score -= penalty

	if float64(len(matched))/float64(len(fileTokens)) > 0.6 {
		score += ratioBonus
	}

	recordTotal := len(titleTokens) + len(authorTokens)
	recordFound := len(titleMatched) + len(authorMatched)
	if recordTotal > 0 && float64(recordFound)/float64(recordTotal) > 0.7 {
		score += coverageBonus
	}

	if len(titleMatched) >= 2 {
		score += multiTitleBonus
	}

	if authorExact {
		score += authorExactBonus
	}

	if score < 0 {
		score = 0
	}
	return score, matched
}

// TopCandidates scores every filename against the record and returns the
// candidates with a positive score, best first, capped at MaxCandidates.
// Ties keep input order.
func TopCandidates(title, author string, filenames []string) []Candidate {
	candidates := []Candidate{}
	for i, filename := range filenames {
		score, terms := Score(title, author, filename)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Index:        i,
			Filename:     filename,
			Score:        score,
			MatchedTerms: terms,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}
	return candidates
}

// BestMatch returns the single best candidate when its score clears the
// threshold, for unattended linking.
func BestMatch(title, author string, filenames []string, threshold int) (Candidate, bool) {
	candidates := TopCandidates(title, author, filenames)
	if len(candidates) == 0 || candidates[0].Score < threshold {
		return Candidate{}, false
	}
	return candidates[0], true
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}
