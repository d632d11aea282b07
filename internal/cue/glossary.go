package cue

import "sort"

// GlossaryTerm is one source-language term with its target-language
// replacement candidates.
type GlossaryTerm struct {
	Source       string   `json:"source"`
	Replacements []string `json:"replacements"`
}

// MatchGlossaryTerms scans markup-stripped source text for glossary
// terms, case-insensitively, returning matches ordered by offset.
func MatchGlossaryTerms(text string, terms []GlossaryTerm) []GlossaryMatch {
	plain := StripMarkup(text)
	var matches []GlossaryMatch
	for _, term := range terms {
		if term.Source == "" {
			continue
		}
		from := 0
		for {
			at, n := indexFold(plain[from:], term.Source, false)
			if at < 0 {
				break
			}
			matches = append(matches, GlossaryMatch{
				Offset:       from + at,
				Source:       term.Source,
				Replacements: term.Replacements,
			})
			from += at + n
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Offset < matches[j].Offset })
	return matches
}
