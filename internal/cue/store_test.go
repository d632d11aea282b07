package cue

import (
	"reflect"
	"testing"
)

func newTestStore(track *Track, spec *Specification, cues ...*Record) *Store {
	s := NewStore(track, spec)
	s.ReplaceAll(cues)
	return s
}

func assertSorted(t *testing.T, s *Store) {
	t.Helper()
	cues := s.Cues()
	for i := 1; i < len(cues); i++ {
		if cues[i-1].Interval.Start > cues[i].Interval.Start {
			t.Fatalf("sort invariant broken at %d: %v > %v", i, cues[i-1].Interval.Start, cues[i].Interval.Start)
		}
	}
}

func TestUpdateIntervalStaleToken(t *testing.T) {
	s := newTestStore(&Track{}, nil, rec(0, 2, "A"), rec(3, 7, "B"))
	before := make([]Record, len(s.Cues()))
	for i, c := range s.Cues() {
		before[i] = *c
	}

	commit, err := s.UpdateInterval(0, TimeInterval{Start: 1, End: 2}, "not-the-current-token")
	if err != nil || commit != nil {
		t.Fatalf("stale write must be a silent no-op, got commit=%v err=%v", commit, err)
	}
	for i, c := range s.Cues() {
		if !reflect.DeepEqual(*c, before[i]) {
			t.Errorf("cue %d changed on stale write", i)
		}
	}
}

func TestUpdateIntervalCommit(t *testing.T) {
	s := newTestStore(&Track{}, nil, rec(0, 2, "A"), rec(3, 7, "B"))
	token := s.Cues()[0].EditToken

	commit, err := s.UpdateInterval(0, TimeInterval{Start: 1, End: 2}, token)
	if err != nil {
		t.Fatalf("UpdateInterval: %v", err)
	}
	if commit == nil {
		t.Fatal("expected a commit")
	}
	if len(commit.Transient) != 0 {
		t.Errorf("no policy should fire: %v", commit.Transient)
	}
	if got := s.Cues()[0].Interval; got.Start != 1 || got.End != 2 {
		t.Errorf("interval = %+v", got)
	}
	if s.Cues()[0].EditToken == token {
		t.Error("edit token not regenerated on commit")
	}
	assertSorted(t, s)
}

func TestUpdateIntervalReorderFollowsFocus(t *testing.T) {
	s := newTestStore(&Track{OverlapEnabled: true}, nil,
		rec(0, 2, "A"), rec(3, 5, "B"), rec(6, 8, "C"))
	s.SetEditingIndex(2)
	focused := s.Cues()[2]

	// Move cue 0 past cue 1; list re-sorts.
	token := s.Cues()[0].EditToken
	commit, err := s.UpdateInterval(0, TimeInterval{Start: 4, End: 5.5}, token)
	if err != nil || commit == nil {
		t.Fatalf("commit=%v err=%v", commit, err)
	}
	assertSorted(t, s)
	if !commit.StartTimeChanged {
		t.Error("StartTimeChanged not reported")
	}
	if commit.Index != 1 {
		t.Errorf("moved cue index = %d, want 1", commit.Index)
	}
	if s.Cues()[s.EditingIndex()] != focused {
		t.Errorf("editing focus lost: index %d", s.EditingIndex())
	}
}

func TestUpdateIntervalChunkRejection(t *testing.T) {
	track := &Track{MediaChunkStart: int64Ptr(1000), MediaChunkEnd: int64Ptr(8000)}
	s := newTestStore(track, nil, rec(2, 4, "A"))
	token := s.Cues()[0].EditToken

	_, err := s.UpdateInterval(0, TimeInterval{Start: 0.2, End: 4}, token)
	rej, ok := err.(*RejectionError)
	if !ok || rej.Kind != ErrOutOfChunkRange {
		t.Fatalf("err = %v, want OUT_OF_CHUNK_RANGE rejection", err)
	}
	if got := s.Cues()[0].Interval; got.Start != 2 {
		t.Errorf("rejected edit left a partial effect: %+v", got)
	}
}

func TestLockedCueRejectsMutations(t *testing.T) {
	track := &Track{MediaChunkStart: int64Ptr(5000), MediaChunkEnd: int64Ptr(9000)}
	s := newTestStore(track, nil, rec(1, 2, "locked"), rec(5, 6, "B"))
	s.Cues()[0].EditDisabled = true
	token := s.Cues()[0].EditToken

	assertLockRejection := func(op string, err error) {
		t.Helper()
		rej, ok := err.(*RejectionError)
		if !ok || rej.Kind != ErrOutOfChunkRange {
			t.Fatalf("%s on locked cue: err = %v, want OUT_OF_CHUNK_RANGE rejection", op, err)
		}
	}

	_, err := s.UpdateInterval(0, TimeInterval{Start: 0.2, End: 0.9}, token)
	assertLockRejection("UpdateInterval", err)
	if got := s.Cues()[0].Interval; got != (TimeInterval{Start: 1, End: 2}) {
		t.Errorf("locked cue moved: %+v", got)
	}

	_, err = s.UpdateText(0, "changed", token)
	assertLockRejection("UpdateText", err)
	if got := s.Cues()[0].Text; got != "locked" {
		t.Errorf("locked cue text changed: %q", got)
	}

	_, err = s.DeleteCue(0)
	assertLockRejection("DeleteCue", err)

	_, err = s.SplitCue(0)
	assertLockRejection("SplitCue", err)

	_, err = s.MergeCues([]int{0, 1})
	if rej, ok := err.(*RejectionError); !ok || rej.Kind != ErrMerge {
		t.Fatalf("MergeCues with locked member: err = %v, want MERGE_ERROR rejection", err)
	}

	if s.Len() != 2 || s.Cues()[0].EditToken != token {
		t.Errorf("rejected mutations left a partial effect: len=%d", s.Len())
	}
}

func TestUpdateTextCarriesStyle(t *testing.T) {
	s := newTestStore(&Track{}, nil, rec(0, 2, "before"))
	pos := 50.0
	s.Cues()[0].Style = StyleAttributes{Position: &pos, Align: "center"}
	token := s.Cues()[0].EditToken

	commit, err := s.UpdateText(0, "after", token)
	if err != nil || commit == nil {
		t.Fatalf("commit=%v err=%v", commit, err)
	}
	got := s.Cues()[0]
	if got.Text != "after" {
		t.Errorf("text = %q", got.Text)
	}
	if got.Style.Position == nil || *got.Style.Position != 50 || got.Style.Align != "center" {
		t.Errorf("style not carried forward: %+v", got.Style)
	}
}

func TestUpdateTextIdempotent(t *testing.T) {
	s := newTestStore(&Track{}, nil, rec(0, 2, "same"))
	token := s.Cues()[0].EditToken
	commit, err := s.UpdateText(0, "same", token)
	if commit != nil || err != nil {
		t.Fatalf("identical text must not commit, got %v / %v", commit, err)
	}
	if s.Cues()[0].EditToken != token {
		t.Error("token changed on no-op edit")
	}
}

func TestInsertCue(t *testing.T) {
	t.Run("after previous cue", func(t *testing.T) {
		s := newTestStore(&Track{}, nil, rec(0, 2, "A"))
		commit, err := s.InsertCue(1, nil)
		if err != nil || commit == nil {
			t.Fatalf("commit=%v err=%v", commit, err)
		}
		got := s.Cues()[1].Interval
		if got.Start != 2 || got.End != 5 {
			t.Errorf("interval = %+v, want {2 5}", got)
		}
		if s.EditingIndex() != 1 {
			t.Errorf("focus = %d, want 1", s.EditingIndex())
		}
	})

	t.Run("from source cues", func(t *testing.T) {
		s := newTestStore(&Track{}, nil)
		s.ReplaceAll(nil)
		sources := []TimeInterval{{Start: 1, End: 2}, {Start: 2, End: 3.5}}
		commit, err := s.InsertCue(0, sources)
		if err != nil || commit == nil {
			t.Fatalf("commit=%v err=%v", commit, err)
		}
		got := s.Cues()[0].Interval
		if got.Start != 1 || got.End != 3.5 {
			t.Errorf("interval = %+v, want {1 3.5}", got)
		}
	})

	t.Run("no room between neighbors", func(t *testing.T) {
		s := newTestStore(&Track{}, nil, rec(0, 2, "A"), rec(2, 4, "B"))
		_, err := s.InsertCue(1, nil)
		rej, ok := err.(*RejectionError)
		if !ok || rej.Kind != ErrTimeGapOverlap {
			t.Fatalf("err = %v, want TIME_GAP_OVERLAP rejection", err)
		}
		if s.Len() != 2 {
			t.Error("rejected insert changed the list")
		}
	})

	t.Run("accepted duration within limits", func(t *testing.T) {
		spec := &Specification{
			Enabled:              true,
			MinCaptionDurationMs: int64Ptr(1500),
			MaxCaptionDurationMs: int64Ptr(8000),
		}
		s := newTestStore(&Track{}, spec, rec(0, 2, "A"))
		commit, err := s.InsertCue(1, nil)
		if err != nil || commit == nil {
			t.Fatalf("commit=%v err=%v", commit, err)
		}
		minGap, maxGap := GapLimits(spec)
		d := s.Cues()[1].Interval.Duration()
		if d < minGap || d > maxGap {
			t.Errorf("inserted duration %v outside [%v, %v]", d, minGap, maxGap)
		}
	})
}

func TestDeleteCue(t *testing.T) {
	t.Run("middle", func(t *testing.T) {
		s := newTestStore(&Track{}, nil, rec(0, 1, "A"), rec(1, 2, "B"), rec(2, 3, "C"))
		if _, err := s.DeleteCue(1); err != nil {
			t.Fatal(err)
		}
		if s.Len() != 2 || s.Cues()[1].Text != "C" {
			t.Errorf("unexpected list after delete: len=%d", s.Len())
		}
	})

	t.Run("singleton leaves a stub", func(t *testing.T) {
		s := newTestStore(&Track{}, nil, rec(4, 6, "only"))
		if _, err := s.DeleteCue(0); err != nil {
			t.Fatal(err)
		}
		if s.Len() != 1 {
			t.Fatalf("list length = %d, want 1 stub", s.Len())
		}
		stub := s.Cues()[0]
		if stub.Text != "" || stub.Interval.Start != 0 {
			t.Errorf("stub = %+v", stub)
		}
	})
}

func TestSplitCue(t *testing.T) {
	t.Run("midpoint split", func(t *testing.T) {
		s := newTestStore(&Track{}, nil, rec(0, 2, "text"))
		commit, err := s.SplitCue(0)
		if err != nil || commit == nil {
			t.Fatalf("commit=%v err=%v", commit, err)
		}
		if s.Len() != 2 {
			t.Fatalf("len = %d", s.Len())
		}
		first, second := s.Cues()[0], s.Cues()[1]
		if first.Interval != (TimeInterval{Start: 0, End: 1}) || first.Text != "text" {
			t.Errorf("first = %+v %q", first.Interval, first.Text)
		}
		if second.Interval != (TimeInterval{Start: 1, End: 2}) || second.Text != "" {
			t.Errorf("second = %+v %q", second.Interval, second.Text)
		}
		if second.ID == first.ID {
			t.Error("second half must be a new record")
		}
	})

	t.Run("style carried to second half", func(t *testing.T) {
		s := newTestStore(&Track{}, nil, rec(0, 2, "text"))
		line := 12.0
		s.Cues()[0].Style = StyleAttributes{Line: &line, Vertical: "rl"}
		s.Cues()[0].Category = CategoryLyrics
		if _, err := s.SplitCue(0); err != nil {
			t.Fatal(err)
		}
		second := s.Cues()[1]
		if second.Style.Line == nil || *second.Style.Line != 12 || second.Style.Vertical != "rl" {
			t.Errorf("style not copied: %+v", second.Style)
		}
		if second.Category != CategoryLyrics {
			t.Errorf("category = %v", second.Category)
		}
	})

	t.Run("rejected when halves violate min duration", func(t *testing.T) {
		spec := &Specification{Enabled: true, MinCaptionDurationMs: int64Ptr(1500)}
		s := newTestStore(&Track{}, spec, rec(0, 2, "text"))
		_, err := s.SplitCue(0)
		rej, ok := err.(*RejectionError)
		if !ok || rej.Kind != ErrSplit {
			t.Fatalf("err = %v, want SPLIT_ERROR rejection", err)
		}
		if s.Len() != 1 || s.Cues()[0].Interval.End != 2 {
			t.Error("rejected split mutated the cue")
		}
	})
}

func TestMergeCues(t *testing.T) {
	t.Run("two adjacent cues", func(t *testing.T) {
		s := newTestStore(&Track{}, nil, rec(0, 2, "A"), rec(2, 4, "B"))
		commit, err := s.MergeCues([]int{0, 1})
		if err != nil || commit == nil {
			t.Fatalf("commit=%v err=%v", commit, err)
		}
		if s.Len() != 1 {
			t.Fatalf("len = %d", s.Len())
		}
		merged := s.Cues()[0]
		if merged.Interval != (TimeInterval{Start: 0, End: 4}) {
			t.Errorf("interval = %+v", merged.Interval)
		}
		if merged.Text != "A\nB" {
			t.Errorf("text = %q, want A\\nB", merged.Text)
		}
		if s.EditingIndex() != 0 {
			t.Errorf("focus = %d", s.EditingIndex())
		}
	})

	t.Run("glossary offsets shift by stripped text", func(t *testing.T) {
		a, b := rec(0, 2, "The <b>Server</b> here"), rec(2, 4, "a file")
		a.GlossaryMatches = []GlossaryMatch{{Offset: 4, Source: "server"}}
		b.GlossaryMatches = []GlossaryMatch{{Offset: 2, Source: "file"}}
		s := newTestStore(&Track{}, nil, a, b)
		if _, err := s.MergeCues([]int{0, 1}); err != nil {
			t.Fatal(err)
		}
		merged := s.Cues()[0]
		if len(merged.GlossaryMatches) != 2 {
			t.Fatalf("glossary matches = %v", merged.GlossaryMatches)
		}
		// Stripped merged text is "The Server here\na file"; offsets
		// stay relative to it, not to the raw markup.
		plain := StripMarkup(merged.Text)
		first, second := merged.GlossaryMatches[0], merged.GlossaryMatches[1]
		if got := plain[first.Offset : first.Offset+6]; first.Offset != 4 || got != "Server" {
			t.Errorf("first match offset %d points at %q", first.Offset, got)
		}
		if got := plain[second.Offset : second.Offset+4]; second.Offset != 18 || got != "file" {
			t.Errorf("second match offset %d points at %q", second.Offset, got)
		}
	})

	t.Run("keeps first style, unions comments", func(t *testing.T) {
		a, b := rec(0, 2, "A"), rec(2, 4, "B")
		a.Style.Align = "left"
		b.Style.Align = "right"
		a.Comments = []Comment{{Author: "rev", Text: "check this"}}
		b.Comments = []Comment{{Author: "rev", Text: "and this"}}
		s := newTestStore(&Track{}, nil, a, b)
		if _, err := s.MergeCues([]int{0, 1}); err != nil {
			t.Fatal(err)
		}
		merged := s.Cues()[0]
		if merged.Style.Align != "left" {
			t.Errorf("style = %+v, want first cue's", merged.Style)
		}
		if len(merged.Comments) != 2 {
			t.Errorf("comments = %d, want union of both", len(merged.Comments))
		}
	})

	tests := []struct {
		name    string
		spec    *Specification
		indexes []int
	}{
		{name: "single selection", indexes: []int{0}},
		{name: "non-contiguous", indexes: []int{0, 2}},
		{
			name:    "duration exceeds max",
			spec:    &Specification{Enabled: true, MaxCaptionDurationMs: int64Ptr(3000)},
			indexes: []int{0, 1},
		},
	}
	for _, tt := range tests {
		t.Run("rejected "+tt.name, func(t *testing.T) {
			s := newTestStore(&Track{}, tt.spec, rec(0, 2, "A"), rec(2, 4, "B"), rec(4, 6, "C"))
			_, err := s.MergeCues(tt.indexes)
			rej, ok := err.(*RejectionError)
			if !ok || rej.Kind != ErrMerge {
				t.Fatalf("err = %v, want MERGE_ERROR rejection", err)
			}
			if s.Len() != 3 {
				t.Error("rejected merge mutated the list")
			}
		})
	}
}

func TestShiftTimes(t *testing.T) {
	build := func() *Store {
		return newTestStore(&Track{}, nil, rec(1, 2, "A"), rec(3, 4, "B"), rec(5, 6, "C"))
	}

	t.Run("all", func(t *testing.T) {
		s := build()
		if _, err := s.ShiftTimes(ShiftAll, -1, 0.5); err != nil {
			t.Fatal(err)
		}
		if got := s.Cues()[0].Interval; got.Start != 1.5 || got.End != 2.5 {
			t.Errorf("first = %+v", got)
		}
		if got := s.Cues()[2].Interval; got.Start != 5.5 {
			t.Errorf("last = %+v", got)
		}
	})

	t.Run("after pivot", func(t *testing.T) {
		s := build()
		if _, err := s.ShiftTimes(ShiftAfter, 1, 1); err != nil {
			t.Fatal(err)
		}
		if got := s.Cues()[0].Interval.Start; got != 1 {
			t.Errorf("cue before pivot shifted: %v", got)
		}
		if got := s.Cues()[1].Interval.Start; got != 4 {
			t.Errorf("pivot not shifted: %v", got)
		}
	})

	t.Run("before pivot zero rejected", func(t *testing.T) {
		s := build()
		if _, err := s.ShiftTimes(ShiftBefore, 0, 1); err == nil {
			t.Fatal("nothing to shift before the first cue")
		}
	})

	t.Run("no pivot rejected", func(t *testing.T) {
		s := build()
		if _, err := s.ShiftTimes(ShiftAfter, -1, 1); err == nil {
			t.Fatal("partial shift without a pivot must fail")
		}
	})

	t.Run("negative start rejected", func(t *testing.T) {
		s := build()
		if _, err := s.ShiftTimes(ShiftAll, -1, -2); err == nil {
			t.Fatal("shift before zero must fail")
		}
		if got := s.Cues()[0].Interval.Start; got != 1 {
			t.Errorf("rejected shift applied: %v", got)
		}
	})

	t.Run("chunk window rejected", func(t *testing.T) {
		track := &Track{MediaChunkStart: int64Ptr(500), MediaChunkEnd: int64Ptr(7000)}
		s := newTestStore(track, nil, rec(1, 2, "A"), rec(5, 6.5, "B"))
		if _, err := s.ShiftTimes(ShiftAll, -1, 1); err == nil {
			t.Fatal("shift past chunk end must fail")
		}
	})

	t.Run("locked cues untouched", func(t *testing.T) {
		s := build()
		s.Cues()[1].EditDisabled = true
		if _, err := s.ShiftTimes(ShiftAll, -1, 0.5); err != nil {
			t.Fatal(err)
		}
		if got := s.Cues()[1].Interval.Start; got != 3 {
			t.Errorf("locked cue shifted: %v", got)
		}
	})
}

func TestSyncToSource(t *testing.T) {
	s := newTestStore(&Track{}, nil, rec(0, 2, "A"), rec(2, 4, "B"))
	sources := []TimeInterval{{Start: 0.5, End: 2.5}, {Start: 2.5, End: 5}}
	if _, err := s.SyncToSource(sources); err != nil {
		t.Fatal(err)
	}
	if got := s.Cues()[0].Interval; got != sources[0] {
		t.Errorf("cue 0 = %+v", got)
	}
	if got := s.Cues()[1]; got.Interval != sources[1] || got.Text != "B" {
		t.Errorf("cue 1 = %+v %q", got.Interval, got.Text)
	}
	assertSorted(t, s)
}

func TestChangeLog(t *testing.T) {
	s := newTestStore(&Track{}, nil, rec(0, 2, "A"))
	base := len(s.ChangeLog())
	token := s.Cues()[0].EditToken
	s.UpdateInterval(0, TimeInterval{Start: 0.5, End: 2}, token)
	s.InsertCue(1, nil)
	s.DeleteCue(1)

	var got []ChangeType
	for _, c := range s.ChangeLog()[base:] {
		got = append(got, c.Type)
	}
	want := []ChangeType{ChangeEdit, ChangeAdd, ChangeRemove}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("change log = %v, want %v", got, want)
	}
}
