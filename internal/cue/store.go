package cue

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

// ChangeType tags one entry of the store's append-only change log.
type ChangeType string

const (
	ChangeEdit      ChangeType = "EDIT"
	ChangeAdd       ChangeType = "ADD"
	ChangeRemove    ChangeType = "REMOVE"
	ChangeSplit     ChangeType = "SPLIT"
	ChangeMerge     ChangeType = "MERGE"
	ChangeUpdateAll ChangeType = "UPDATE_ALL"
)

// Change records one committed structural or content mutation. Other
// subsystems (search index, matched rows) consume the log to learn what
// moved without re-diffing the whole list.
type Change struct {
	Type     ChangeType
	Index    int
	Interval TimeInterval
}

// ShiftPosition selects which cues a time shift applies to.
type ShiftPosition string

const (
	ShiftAll    ShiftPosition = "ALL"
	ShiftBefore ShiftPosition = "BEFORE"
	ShiftAfter  ShiftPosition = "AFTER"
)

// Commit describes one successful store mutation.
type Commit struct {
	// Index of the affected cue after any re-sort.
	Index int
	// Transient holds the error kinds of correction policies that
	// fired while building the committed interval. They are for user
	// display only and are distinct from the persistent error sets.
	Transient []ErrorKind
	// StartTimeChanged is true when the mutation moved a start time
	// and therefore may have re-sorted the list.
	StartTimeChanged bool
	// Structural is true for add/remove/split/merge/shift/sync, which
	// persist as a whole-track save rather than a single-cue save.
	Structural bool
}

// Store is the ordered cue list for one track. It maintains the sort
// invariant (non-decreasing start times) across every mutation and owns
// the edit tokens used for stale-write detection.
//
// Store is not safe for concurrent use; the mutation pipeline is the
// single writer.
type Store struct {
	track        *Track
	spec         *Specification
	cues         []*Record
	editingIndex int
	changeLog    []Change
}

// NewStore creates a store for a track being edited against a spec.
func NewStore(track *Track, spec *Specification) *Store {
	return &Store{track: track, spec: spec, editingIndex: -1}
}

func newEditToken() string {
	return uuid.NewString()
}

// NewRecord builds a fresh record with a stable id and initial token.
func NewRecord(interval TimeInterval, text string) *Record {
	return &Record{
		ID:        uuid.NewString(),
		EditToken: newEditToken(),
		Interval:  interval,
		Text:      text,
		Category:  CategoryDialogue,
	}
}

// Cues returns the committed cue list. Callers must not mutate it.
func (s *Store) Cues() []*Record { return s.cues }

// Len returns the number of cues.
func (s *Store) Len() int { return len(s.cues) }

// Track returns the track this store edits.
func (s *Store) Track() *Track { return s.track }

// Spec returns the subtitle specification in effect.
func (s *Store) Spec() *Specification { return s.spec }

// EditingIndex returns the focused cue index, or -1.
func (s *Store) EditingIndex() int { return s.editingIndex }

// SetEditingIndex moves editing focus.
func (s *Store) SetEditingIndex(idx int) {
	if idx < -1 || idx >= len(s.cues) {
		idx = -1
	}
	s.editingIndex = idx
}

// ChangeLog returns the append-only change log.
func (s *Store) ChangeLog() []Change { return s.changeLog }

func (s *Store) log(t ChangeType, idx int, interval TimeInterval) {
	s.changeLog = append(s.changeLog, Change{Type: t, Index: idx, Interval: interval})
}

func (s *Store) at(idx int) *Record {
	if idx < 0 || idx >= len(s.cues) {
		return nil
	}
	return s.cues[idx]
}

// neighbors returns the committed previous/following cues of idx.
func (s *Store) neighbors(idx int) (prev, next *Record) {
	return s.at(idx - 1), s.at(idx + 1)
}

// UpdateInterval applies a time edit to the cue at idx. The caller's
// expectedToken must match the cue's current token; on mismatch (or a
// concurrent remove) the edit is silently dropped and (nil, nil) is
// returned — the last committer already won. Locked cues reject the
// edit outright.
func (s *Store) UpdateInterval(idx int, candidate TimeInterval, expectedToken string) (*Commit, error) {
	rec := s.at(idx)
	if rec == nil || rec.EditToken != expectedToken {
		return nil, nil
	}
	if err := checkEditable(rec, idx); err != nil {
		return nil, err
	}

	original := rec.Interval
	startChanged := candidate.Start != original.Start
	endChanged := candidate.End != original.End
	if !startChanged && !endChanged {
		return nil, nil
	}

	if err := checkChunkRange(candidate, s.track); err != nil {
		return nil, err
	}

	prev, next := s.neighbors(idx)
	transient := correctInterval(&candidate, prev, next, s.track, s.spec, startChanged, endChanged)

	rec.Interval = candidate
	rec.EditToken = newEditToken()
	s.log(ChangeEdit, idx, candidate)

	commit := &Commit{Index: idx, Transient: transient, StartTimeChanged: candidate.Start != original.Start}
	if commit.StartTimeChanged {
		commit.Index = s.reorderKeeping(rec)
	}
	return commit, nil
}

// UpdateText applies a text edit to the cue at idx, carrying style
// attributes forward verbatim. Boundary policies do not run (time is
// unchanged); the caller re-runs the full rule pipeline afterward.
// Same stale-write guard as UpdateInterval.
func (s *Store) UpdateText(idx int, text string, expectedToken string) (*Commit, error) {
	rec := s.at(idx)
	if rec == nil || rec.EditToken != expectedToken {
		return nil, nil
	}
	if err := checkEditable(rec, idx); err != nil {
		return nil, err
	}
	if rec.Text == text {
		return nil, nil
	}
	rec.Text = text
	// Text changed under any outstanding spell result; drop it until
	// the next check responds.
	rec.SpellMatches = nil
	rec.EditToken = newEditToken()
	s.log(ChangeEdit, idx, rec.Interval)
	return &Commit{Index: idx}, nil
}

// InsertCue creates a new cue at idx. Its interval is derived from the
// preceding target cue when one exists, otherwise from the supplied
// overlapping source-cue intervals, otherwise from the default step.
// The insert is rejected outright when the resulting duration cannot
// satisfy the gap limits.
func (s *Store) InsertCue(idx int, sources []TimeInterval) (*Commit, error) {
	if idx < 0 || idx > len(s.cues) {
		return nil, nil
	}
	minGap, maxGap := GapLimits(s.spec)
	step := math.Min(maxGap, defaultStep)
	if step < minGap {
		step = minGap
	}

	var candidate TimeInterval
	prev, _ := s.neighbors(idx)
	switch {
	case prev != nil:
		candidate.Start = prev.Interval.End
		if len(sources) > 0 {
			candidate.End = sources[len(sources)-1].End
		} else {
			candidate.End = candidate.Start + step
		}
	case len(sources) > 0:
		candidate.Start = sources[0].Start
		candidate.End = sources[len(sources)-1].End
	default:
		candidate.End = candidate.Start + step
	}

	next := s.at(idx)
	overlapClamped := preventOverlapAtStart(&candidate, prev, s.track)
	overlapClamped = preventOverlapAtEnd(&candidate, next, s.track) || overlapClamped

	if !RangeOK(candidate, s.spec) {
		if overlapClamped {
			return nil, reject(ErrTimeGapOverlap, "no room for a new cue at index %d", idx)
		}
		return nil, reject(ErrTimeGapLimitExceeded, "new cue duration %.3fs outside limits", candidate.Duration())
	}

	rec := NewRecord(candidate, "")
	s.cues = append(s.cues, nil)
	copy(s.cues[idx+1:], s.cues[idx:])
	s.cues[idx] = rec
	s.editingIndex = idx
	s.log(ChangeAdd, idx, candidate)
	return &Commit{Index: idx, Structural: true}, nil
}

// DeleteCue removes the cue at idx. A list is never left empty: deleting
// the last remaining cue replaces it with an empty stub.
func (s *Store) DeleteCue(idx int) (*Commit, error) {
	rec := s.at(idx)
	if rec == nil {
		return nil, nil
	}
	if err := checkEditable(rec, idx); err != nil {
		return nil, err
	}
	interval := rec.Interval
	s.cues = append(s.cues[:idx], s.cues[idx+1:]...)
	s.log(ChangeRemove, idx, interval)

	if len(s.cues) == 0 {
		minGap, maxGap := GapLimits(s.spec)
		step := math.Min(maxGap, defaultStep)
		if step < minGap {
			step = minGap
		}
		stub := NewRecord(TimeInterval{Start: 0, End: step}, "")
		s.cues = []*Record{stub}
		s.log(ChangeAdd, 0, stub.Interval)
	}

	switch {
	case s.editingIndex == idx:
		s.editingIndex = -1
	case s.editingIndex > idx:
		s.editingIndex--
	}
	return &Commit{Index: idx, Structural: true}, nil
}

// SplitCue splits the cue at idx at its temporal midpoint. The first
// half keeps the cue's identity and text; the second half is a new
// empty record carrying the style attributes forward. The split is
// rejected when either half would violate the gap limits.
func (s *Store) SplitCue(idx int) (*Commit, error) {
	rec := s.at(idx)
	if rec == nil {
		return nil, nil
	}
	if err := checkEditable(rec, idx); err != nil {
		return nil, err
	}
	minGap, _ := GapLimits(s.spec)
	half := rec.Interval.Duration() / 2
	if half < minGap {
		return nil, reject(ErrSplit, "cue %d too short to split (%.3fs halves)", idx, half)
	}

	mid := rec.Interval.Start + half
	second := NewRecord(TimeInterval{Start: mid, End: rec.Interval.End}, "")
	second.Category = rec.Category
	second.Style = rec.Style

	rec.Interval.End = mid
	rec.EditToken = newEditToken()

	s.cues = append(s.cues, nil)
	copy(s.cues[idx+2:], s.cues[idx+1:])
	s.cues[idx+1] = second
	s.log(ChangeSplit, idx, rec.Interval)
	if s.editingIndex > idx {
		s.editingIndex++
	}
	return &Commit{Index: idx, Structural: true}, nil
}

// MergeCues merges the cues at the given ascending contiguous indexes
// into one record spanning first start to last end, with newline-joined
// text and unioned comments and glossary matches. The first cue's style
// attributes survive. Rejected when fewer than two cues are selected or
// the merged duration violates the gap limits; nothing changes on
// rejection.
func (s *Store) MergeCues(indexes []int) (*Commit, error) {
	if len(indexes) < 2 {
		return nil, reject(ErrMerge, "select at least two cues to merge")
	}
	for i, idx := range indexes {
		rec := s.at(idx)
		if rec == nil {
			return nil, reject(ErrMerge, "cue %d no longer exists", idx)
		}
		if rec.EditDisabled {
			return nil, reject(ErrMerge, "cue %d is locked outside the editable range", idx)
		}
		if i > 0 && idx != indexes[i-1]+1 {
			return nil, reject(ErrMerge, "merge selection must be contiguous")
		}
	}

	first := s.cues[indexes[0]]
	last := s.cues[indexes[len(indexes)-1]]
	merged := TimeInterval{Start: first.Interval.Start, End: last.Interval.End}
	if !RangeOK(merged, s.spec) {
		return nil, reject(ErrMerge, "merged duration %.3fs outside limits", merged.Duration())
	}

	rec := NewRecord(merged, "")
	rec.Category = first.Category
	rec.Style = first.Style

	// Glossary offsets are relative to markup-stripped text, so the
	// running shift counts stripped bytes, not raw ones.
	offset := 0
	for i, idx := range indexes {
		part := s.cues[idx]
		if i > 0 {
			rec.Text += "\n"
			offset++
		}
		rec.Text += part.Text
		rec.Comments = append(rec.Comments, part.Comments...)
		for _, gm := range part.GlossaryMatches {
			gm.Offset += offset
			rec.GlossaryMatches = append(rec.GlossaryMatches, gm)
		}
		offset += len(StripMarkup(part.Text))
	}

	at := indexes[0]
	s.cues = append(s.cues[:at], s.cues[indexes[len(indexes)-1]+1:]...)
	s.cues = append(s.cues, nil)
	copy(s.cues[at+1:], s.cues[at:])
	s.cues[at] = rec
	s.editingIndex = at
	s.log(ChangeMerge, at, merged)
	return &Commit{Index: at, Structural: true}, nil
}

// ShiftTimes moves the intervals of all or a subset of editable cues by
// delta seconds. The shift is rejected when there is nothing to shift,
// when it would push a cue before time zero, or when it would move an
// editable cue outside the track's chunk window.
func (s *Store) ShiftTimes(position ShiftPosition, pivot int, delta float64) (*Commit, error) {
	if position != ShiftAll && (pivot < 0 || pivot >= len(s.cues)) {
		return nil, reject(ErrOutOfChunkRange, "no cue selected for a partial shift")
	}
	if position == ShiftBefore && pivot == 0 {
		return nil, reject(ErrOutOfChunkRange, "nothing to shift before the first cue")
	}

	affected := make([]int, 0, len(s.cues))
	for i, rec := range s.cues {
		if rec.EditDisabled {
			continue
		}
		switch position {
		case ShiftBefore:
			if i >= pivot {
				continue
			}
		case ShiftAfter:
			if i < pivot {
				continue
			}
		}
		affected = append(affected, i)
	}
	if len(affected) == 0 {
		return nil, reject(ErrOutOfChunkRange, "no editable cues to shift")
	}

	for _, i := range affected {
		shifted := TimeInterval{Start: s.cues[i].Interval.Start + delta, End: s.cues[i].Interval.End + delta}
		if shifted.Start < 0 {
			return nil, reject(ErrOutOfChunkRange, "shift would move cue %d before zero", i)
		}
		if err := checkChunkRange(shifted, s.track); err != nil {
			return nil, err
		}
	}

	for _, i := range affected {
		s.cues[i].Interval.Start += delta
		s.cues[i].Interval.End += delta
		s.cues[i].EditToken = newEditToken()
	}
	s.log(ChangeUpdateAll, 0, TimeInterval{})
	return &Commit{Index: affected[0], StartTimeChanged: true, Structural: true}, nil
}

// SyncToSource replaces each cue's interval with the interval of the
// source cue at the same position, preserving text and style.
func (s *Store) SyncToSource(sources []TimeInterval) (*Commit, error) {
	if len(s.cues) == 0 || len(sources) == 0 {
		return nil, nil
	}
	n := len(s.cues)
	if len(sources) < n {
		n = len(sources)
	}
	for i := 0; i < n; i++ {
		s.cues[i].Interval = sources[i]
		s.cues[i].EditToken = newEditToken()
	}
	s.Reorder()
	s.log(ChangeUpdateAll, 0, TimeInterval{})
	return &Commit{Index: 0, StartTimeChanged: true, Structural: true}, nil
}

// ReplaceAll swaps in a whole new cue list (track load / bulk edit).
func (s *Store) ReplaceAll(records []*Record) *Commit {
	s.cues = records
	s.Reorder()
	s.editingIndex = -1
	s.log(ChangeUpdateAll, 0, TimeInterval{})
	return &Commit{Index: 0, StartTimeChanged: true, Structural: true}
}

// Reorder restores the sort invariant with a stable sort by start time.
func (s *Store) Reorder() {
	sort.SliceStable(s.cues, func(i, j int) bool {
		return s.cues[i].Interval.Start < s.cues[j].Interval.Start
	})
}

// reorderKeeping re-sorts the list and returns the record's new index.
// When the focused record moved, editing focus follows its identity;
// index alone is not stable across a re-sort.
func (s *Store) reorderKeeping(rec *Record) int {
	var focused *Record
	if s.editingIndex >= 0 && s.editingIndex < len(s.cues) {
		focused = s.cues[s.editingIndex]
	}
	s.Reorder()
	newIdx := s.indexOf(rec)
	if focused != nil {
		s.editingIndex = s.indexOf(focused)
	}
	return newIdx
}

func (s *Store) indexOf(rec *Record) int {
	for i, c := range s.cues {
		if c == rec {
			return i
		}
	}
	return -1
}

// FindByToken locates a cue by its current edit token.
func (s *Store) FindByToken(token string) (int, *Record) {
	for i, c := range s.cues {
		if c.EditToken == token {
			return i, c
		}
	}
	return -1, nil
}

// Revalidate recomputes the persistent error set of the cue at idx and
// reports whether the set's size changed.
func (s *Store) Revalidate(idx int) bool {
	rec := s.at(idx)
	if rec == nil {
		return false
	}
	prev, next := s.neighbors(idx)
	errs := CaptionErrors(rec, prev, next, s.track, s.spec)
	changed := len(errs) != len(rec.Errors)
	rec.Errors = errs
	return changed
}

// RevalidateAll recomputes every cue's error set.
func (s *Store) RevalidateAll() {
	for i := range s.cues {
		s.Revalidate(i)
	}
}
