package cue

import (
	"regexp"
	"strings"
	"time"
)

// TimeInterval is one cue's time span in seconds.
type TimeInterval struct {
	Start float64 `json:"startTime"`
	End   float64 `json:"endTime"`
}

// Duration returns the interval length in seconds.
func (t TimeInterval) Duration() float64 {
	return t.End - t.Start
}

// Overlaps reports whether two intervals share any time.
func (t TimeInterval) Overlaps(other TimeInterval) bool {
	return t.Start < other.End && t.End > other.Start
}

// Category classifies what kind of caption a cue carries.
type Category string

const (
	CategoryDialogue         Category = "DIALOGUE"
	CategoryOnscreenText     Category = "ONSCREEN_TEXT"
	CategoryAudioDescription Category = "AUDIO_DESCRIPTION"
	CategoryLyrics           Category = "LYRICS"
)

// StyleAttributes are the presentation properties of a cue. They are
// carried forward verbatim across interval-only edits; only an explicit
// text/style update may change them.
type StyleAttributes struct {
	Position    *float64 `json:"position,omitempty"`
	Align       string   `json:"align,omitempty"`
	Line        *float64 `json:"line,omitempty"`
	Size        *float64 `json:"size,omitempty"`
	Vertical    string   `json:"vertical,omitempty"`
	SnapToLines *bool    `json:"snapToLines,omitempty"`
	Region      string   `json:"region,omitempty"`
	PauseOnExit bool     `json:"pauseOnExit,omitempty"`
}

// Comment is one entry of a cue's comment thread.
type Comment struct {
	Author    string    `json:"author"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SpellMatch is one outstanding spell-check finding, with offsets
// relative to the cue's markup-stripped text.
type SpellMatch struct {
	Offset      int      `json:"offset"`
	Length      int      `json:"length"`
	RuleID      string   `json:"ruleId"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// GlossaryMatch marks a glossary term found in the source text, with
// the candidate replacements for the target language.
type GlossaryMatch struct {
	Offset       int      `json:"offset"`
	Source       string   `json:"source"`
	Replacements []string `json:"replacements"`
}

// Record is a single caption cue. ID is stable for the life of the row;
// EditToken changes on every committed mutation and is the optimistic
// concurrency stamp callers must echo back.
type Record struct {
	ID              string          `json:"id"`
	EditToken       string          `json:"editToken"`
	Interval        TimeInterval    `json:"interval"`
	Text            string          `json:"text"`
	Category        Category        `json:"category"`
	Style           StyleAttributes `json:"styleAttributes"`
	Errors          []ErrorKind     `json:"errors,omitempty"`
	SpellMatches    []SpellMatch    `json:"spellCheckMatches,omitempty"`
	GlossaryMatches []GlossaryMatch `json:"glossaryMatches,omitempty"`
	Comments        []Comment       `json:"comments,omitempty"`
	EditDisabled    bool            `json:"editDisabled,omitempty"`
}

// Corrupted reports whether the cue currently fails any validation rule.
func (r *Record) Corrupted() bool {
	return len(r.Errors) > 0
}

// clone copies the record and its slice fields so the copy stays
// stable while the original keeps being edited.
func (r *Record) clone() *Record {
	c := *r
	c.Errors = append([]ErrorKind(nil), r.Errors...)
	c.SpellMatches = append([]SpellMatch(nil), r.SpellMatches...)
	c.GlossaryMatches = append([]GlossaryMatch(nil), r.GlossaryMatches...)
	c.Comments = append([]Comment(nil), r.Comments...)
	return &c
}

func cloneRecords(records []*Record) []*Record {
	out := make([]*Record, len(records))
	for i, rec := range records {
		out[i] = rec.clone()
	}
	return out
}

// Direction is the writing direction of a language.
type Direction string

const (
	DirectionLTR Direction = "LTR"
	DirectionRTL Direction = "RTL"
)

// Language identifies a caption language.
type Language struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
}

// Track is the editing context for one cue list.
type Track struct {
	ID             string    `json:"id"`
	Language       Language  `json:"language"`
	SourceLanguage *Language `json:"sourceLanguage,omitempty"`
	OverlapEnabled bool      `json:"overlapEnabled"`
	// Media chunk edit window in milliseconds. When set, cue boundaries
	// may not be moved outside [MediaChunkStart, MediaChunkEnd].
	MediaChunkStart *int64 `json:"mediaChunkStart,omitempty"`
	MediaChunkEnd   *int64 `json:"mediaChunkEnd,omitempty"`
}

// Specification is the externally supplied subtitle spec a track is
// edited against. Read-only to this package.
type Specification struct {
	Enabled              bool   `json:"enabled"`
	MinCaptionDurationMs *int64 `json:"minCaptionDurationMs,omitempty"`
	MaxCaptionDurationMs *int64 `json:"maxCaptionDurationMs,omitempty"`
	MaxCharactersPerLine *int   `json:"maxCharactersPerLine,omitempty"`
	MaxLinesPerCaption   *int   `json:"maxLinesPerCaption,omitempty"`
}

var markupRe = regexp.MustCompile(`<[^>]*>`)

// bidi control characters that may wrap RTL cue text
const bidiControls = "‪‫‬‎‏"

// StripMarkup removes inline markup tags and bidi control characters,
// returning the plain text the character-limit rule and the spell-check
// collaborator operate on.
func StripMarkup(text string) string {
	plain := markupRe.ReplaceAllString(text, "")
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(bidiControls, r) {
			return -1
		}
		return r
	}, plain)
}

// Lines splits cue text into its display lines.
func Lines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
