package cue

import (
	"fmt"
	"math"
)

// ErrorKind identifies one validation failure or rejected operation.
type ErrorKind string

const (
	ErrTimeGapOverlap       ErrorKind = "TIME_GAP_OVERLAP"
	ErrTimeGapLimitExceeded ErrorKind = "TIME_GAP_LIMIT_EXCEEDED"
	ErrInvalidRangeStart    ErrorKind = "INVALID_RANGE_START"
	ErrInvalidRangeEnd      ErrorKind = "INVALID_RANGE_END"
	ErrOutOfChunkRange      ErrorKind = "OUT_OF_CHUNK_RANGE"
	ErrLineCharLimit        ErrorKind = "LINE_CHAR_LIMIT_EXCEEDED"
	ErrLineCountExceeded    ErrorKind = "LINE_COUNT_EXCEEDED"
	ErrSpellcheck           ErrorKind = "SPELLCHECK_ERROR"
	ErrSplit                ErrorKind = "SPLIT_ERROR"
	ErrMerge                ErrorKind = "MERGE_ERROR"
)

// RejectionError is returned when an operation cannot be committed at
// all. Nothing is left partially applied.
type RejectionError struct {
	Kind ErrorKind
	Msg  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func reject(kind ErrorKind, format string, args ...interface{}) error {
	return &RejectionError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

const (
	// defaultMinGap is the minimum cue duration in seconds when the
	// spec does not override it.
	defaultMinGap = 0.1
	// defaultStep is the duration of a freshly inserted cue when no
	// neighbor or source cue constrains it.
	defaultStep = 3.0
)

// GapLimits returns the effective [min, max] cue duration in seconds.
func GapLimits(spec *Specification) (float64, float64) {
	minGap, maxGap := defaultMinGap, math.Inf(1)
	if spec != nil && spec.Enabled {
		if spec.MinCaptionDurationMs != nil && *spec.MinCaptionDurationMs > 0 {
			minGap = float64(*spec.MinCaptionDurationMs) / 1000
		}
		if spec.MaxCaptionDurationMs != nil && *spec.MaxCaptionDurationMs > 0 {
			maxGap = float64(*spec.MaxCaptionDurationMs) / 1000
		}
	}
	return minGap, maxGap
}

// CharacterLimitOK checks every markup-stripped line against the spec's
// per-line character limit.
func CharacterLimitOK(text string, spec *Specification) bool {
	if spec == nil || !spec.Enabled || spec.MaxCharactersPerLine == nil || *spec.MaxCharactersPerLine <= 0 {
		return true
	}
	for _, line := range Lines(StripMarkup(text)) {
		if len([]rune(line)) > *spec.MaxCharactersPerLine {
			return false
		}
	}
	return true
}

// LineCountOK checks the number of lines against the spec's limit.
func LineCountOK(text string, spec *Specification) bool {
	if spec == nil || !spec.Enabled || spec.MaxLinesPerCaption == nil || *spec.MaxLinesPerCaption <= 0 {
		return true
	}
	return len(Lines(text)) <= *spec.MaxLinesPerCaption
}

// RangeOK checks the cue duration against the effective gap limits.
func RangeOK(interval TimeInterval, spec *Specification) bool {
	minGap, maxGap := GapLimits(spec)
	d := interval.Duration()
	return d >= minGap && d <= maxGap
}

// OverlapOK checks a cue against its committed neighbors. Overlap is
// allowed outright when the track permits it.
func OverlapOK(interval TimeInterval, prev, next *Record, track *Track) bool {
	if track != nil && track.OverlapEnabled {
		return true
	}
	if prev != nil && interval.Start < prev.Interval.End {
		return false
	}
	if next != nil && interval.End > next.Interval.Start {
		return false
	}
	return true
}

// ConformsToRules is the rules-only conformance check used during
// boundary correction. It deliberately excludes spelling.
func ConformsToRules(rec *Record, prev, next *Record, track *Track, spec *Specification) bool {
	return CharacterLimitOK(rec.Text, spec) &&
		LineCountOK(rec.Text, spec) &&
		RangeOK(rec.Interval, spec) &&
		OverlapOK(rec.Interval, prev, next, track)
}

// CaptionErrors derives the persistent error set for a committed cue.
// This is the caption-validation variant: it includes spelling.
func CaptionErrors(rec *Record, prev, next *Record, track *Track, spec *Specification) []ErrorKind {
	var errs []ErrorKind
	if !CharacterLimitOK(rec.Text, spec) {
		errs = append(errs, ErrLineCharLimit)
	}
	if !LineCountOK(rec.Text, spec) {
		errs = append(errs, ErrLineCountExceeded)
	}
	if !RangeOK(rec.Interval, spec) {
		errs = append(errs, ErrTimeGapLimitExceeded)
	}
	if !OverlapOK(rec.Interval, prev, next, track) {
		errs = append(errs, ErrTimeGapOverlap)
	}
	if len(rec.SpellMatches) > 0 {
		errs = append(errs, ErrSpellcheck)
	}
	return errs
}

// Boundary-correction policies. Each clamps the candidate in place and
// reports whether it fired. They never reject; rejection is reserved
// for the chunk-range policy.

func preventOverlapAtStart(candidate *TimeInterval, prev *Record, track *Track) bool {
	if track != nil && track.OverlapEnabled {
		return false
	}
	if prev != nil && candidate.Start < prev.Interval.End {
		candidate.Start = prev.Interval.End
		return true
	}
	return false
}

func preventOverlapAtEnd(candidate *TimeInterval, next *Record, track *Track) bool {
	if track != nil && track.OverlapEnabled {
		return false
	}
	if next != nil && candidate.End > next.Interval.Start {
		candidate.End = next.Interval.Start
		return true
	}
	return false
}

func preventInvalidRangeAtStart(candidate *TimeInterval, spec *Specification) bool {
	minGap, maxGap := GapLimits(spec)
	if d := candidate.Duration(); d < minGap {
		candidate.Start = candidate.End - minGap
		return true
	} else if d > maxGap {
		candidate.Start = candidate.End - maxGap
		return true
	}
	return false
}

func preventInvalidRangeAtEnd(candidate *TimeInterval, spec *Specification) bool {
	minGap, maxGap := GapLimits(spec)
	if d := candidate.Duration(); d < minGap {
		candidate.End = candidate.Start + minGap
		return true
	} else if d > maxGap {
		candidate.End = candidate.Start + maxGap
		return true
	}
	return false
}

// checkChunkRange rejects a candidate interval for an editable cue that
// would leave the track's media chunk window. Unlike the clamping
// policies this abandons the edit entirely.
func checkChunkRange(candidate TimeInterval, track *Track) error {
	if track == nil {
		return nil
	}
	if track.MediaChunkStart != nil && candidate.Start*1000 < float64(*track.MediaChunkStart) {
		return reject(ErrOutOfChunkRange, "start %.3fs before chunk start", candidate.Start)
	}
	if track.MediaChunkEnd != nil && candidate.End*1000 > float64(*track.MediaChunkEnd) {
		return reject(ErrOutOfChunkRange, "end %.3fs after chunk end", candidate.End)
	}
	return nil
}

// checkEditable rejects any mutation of a locked cue. Locked cues sit
// outside the editable chunk window; only whole-track shifts may skip
// over them.
func checkEditable(rec *Record, idx int) error {
	if rec.EditDisabled {
		return reject(ErrOutOfChunkRange, "cue %d is locked outside the editable range", idx)
	}
	return nil
}

// correctInterval applies the clamping policies for whichever edges
// actually changed, returning the transient error kinds of the policies
// that fired.
func correctInterval(candidate *TimeInterval, prev, next *Record, track *Track, spec *Specification, startChanged, endChanged bool) []ErrorKind {
	var fired []ErrorKind
	if startChanged {
		if preventOverlapAtStart(candidate, prev, track) {
			fired = append(fired, ErrTimeGapOverlap)
		}
		if preventInvalidRangeAtStart(candidate, spec) {
			fired = append(fired, ErrInvalidRangeStart)
		}
	}
	if endChanged {
		if preventOverlapAtEnd(candidate, next, track) {
			fired = append(fired, ErrTimeGapOverlap)
		}
		if preventInvalidRangeAtEnd(candidate, spec) {
			fired = append(fired, ErrInvalidRangeEnd)
		}
	}
	return fired
}
