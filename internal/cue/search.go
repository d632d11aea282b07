package cue

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SearchMatch locates one occurrence of the search term, with offsets
// relative to the cue's markup-stripped text.
type SearchMatch struct {
	CueIndex int `json:"cueIndex"`
	Offset   int `json:"offset"`
	Length   int `json:"length"`
}

// Searcher finds and replaces text across a cue list. Its match index
// is rebuilt lazily whenever the store's change log has grown since the
// last scan, so edits from any direction invalidate it without a full
// list diff per query.
type Searcher struct {
	pipeline      *Pipeline
	term          string
	caseSensitive bool
	matches       []SearchMatch
	cursor        int
	logPos        int
	dirty         bool
}

// NewSearcher attaches a searcher to a pipeline.
func NewSearcher(p *Pipeline) *Searcher {
	return &Searcher{pipeline: p, cursor: -1, dirty: true}
}

// SetTerm sets the search term and resets the cursor.
func (s *Searcher) SetTerm(term string, caseSensitive bool) {
	s.term = term
	s.caseSensitive = caseSensitive
	s.cursor = -1
	s.dirty = true
}

// Matches returns the current match list, rescanning if stale.
func (s *Searcher) Matches() []SearchMatch {
	s.refresh()
	return s.matches
}

// Next advances to the next match, wrapping around.
func (s *Searcher) Next() (SearchMatch, bool) {
	s.refresh()
	if len(s.matches) == 0 {
		return SearchMatch{}, false
	}
	s.cursor = (s.cursor + 1) % len(s.matches)
	return s.matches[s.cursor], true
}

// ReplaceCurrent replaces the match under the cursor, routing the text
// edit through the pipeline so validation and persistence run normally.
func (s *Searcher) ReplaceCurrent(replacement string) error {
	s.refresh()
	if s.cursor < 0 || s.cursor >= len(s.matches) {
		return nil
	}
	m := s.matches[s.cursor]
	rec, ok := s.pipeline.CueAt(m.CueIndex)
	if !ok {
		s.dirty = true
		return nil
	}
	newText := replaceAt(rec.Text, m, replacement)
	err := s.pipeline.Apply(UpdateText{Index: m.CueIndex, Text: newText, EditToken: rec.EditToken})
	s.dirty = true
	return err
}

// ReplaceAll replaces every occurrence across the list.
func (s *Searcher) ReplaceAll(replacement string) error {
	s.refresh()
	// Per cue, replace back to front so earlier offsets stay valid.
	for i := len(s.matches) - 1; i >= 0; i-- {
		m := s.matches[i]
		rec, ok := s.pipeline.CueAt(m.CueIndex)
		if !ok {
			continue
		}
		newText := replaceAt(rec.Text, m, replacement)
		if err := s.pipeline.Apply(UpdateText{Index: m.CueIndex, Text: newText, EditToken: rec.EditToken}); err != nil {
			return err
		}
	}
	s.dirty = true
	return nil
}

// refresh rescans when the term changed or the store mutated since the
// last scan.
func (s *Searcher) refresh() {
	logLen := s.pipeline.ChangeLogLen()
	if !s.dirty && logLen == s.logPos {
		return
	}
	s.logPos = logLen
	s.dirty = false
	s.matches = s.matches[:0]
	s.cursor = -1
	if s.term == "" {
		return
	}
	for i, rec := range s.pipeline.Cues() {
		plain := StripMarkup(rec.Text)
		from := 0
		for {
			at, n := indexFold(plain[from:], s.term, s.caseSensitive)
			if at < 0 {
				break
			}
			s.matches = append(s.matches, SearchMatch{CueIndex: i, Offset: from + at, Length: n})
			from += at + n
		}
	}
}

// indexFold finds the first occurrence of term in s, returning its byte
// offset and length measured in s. Case-insensitive matching folds rune
// by rune, so offsets stay valid even where folding changes a rune's
// UTF-8 width (e.g. the Kelvin sign against "k").
func indexFold(s, term string, caseSensitive bool) (int, int) {
	if caseSensitive {
		at := strings.Index(s, term)
		if at < 0 {
			return -1, 0
		}
		return at, len(term)
	}
	for i := 0; i < len(s); {
		if n := foldMatchLen(s[i:], term); n >= 0 {
			return i, n
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return -1, 0
}

// foldMatchLen reports how many bytes of s a case-insensitive match of
// term consumes, or -1 when s does not start with term.
func foldMatchLen(s, term string) int {
	n := 0
	for _, tr := range term {
		sr, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || !runeFoldEq(sr, tr) {
			return -1
		}
		n += size
	}
	return n
}

func runeFoldEq(a, b rune) bool {
	if a == b {
		return true
	}
	for c := unicode.SimpleFold(a); c != a; c = unicode.SimpleFold(c) {
		if c == b {
			return true
		}
	}
	return false
}

// replaceAt rewrites one match inside the cue's raw text. The offsets
// refer to stripped text; the raw positions are recovered through a
// plain-to-raw byte map so surrounding markup survives the replacement.
func replaceAt(raw string, m SearchMatch, replacement string) string {
	idx := plainToRaw(raw)
	if m.Offset >= len(idx) || m.Length == 0 {
		return raw
	}
	rawStart := idx[m.Offset]
	last := m.Offset + m.Length - 1
	if last >= len(idx) {
		last = len(idx) - 1
	}
	rawEnd := idx[last] + 1
	return raw[:rawStart] + replacement + raw[rawEnd:]
}

// plainToRaw maps each byte of the markup-stripped text to its byte
// position in the raw text.
func plainToRaw(raw string) []int {
	idx := make([]int, 0, len(raw))
	i := 0
	for i < len(raw) {
		if raw[i] == '<' {
			if end := strings.IndexByte(raw[i:], '>'); end >= 0 {
				i += end + 1
				continue
			}
		}
		if _, size := decodeBidi(raw, i); size > 0 {
			i += size
			continue
		}
		idx = append(idx, i)
		i++
	}
	return idx
}

// decodeBidi reports the byte size of a bidi control rune at i, or 0.
func decodeBidi(s string, i int) (rune, int) {
	for _, r := range bidiControls {
		rs := string(r)
		if strings.HasPrefix(s[i:], rs) {
			return r, len(rs)
		}
	}
	return 0, 0
}
