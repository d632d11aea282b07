package cue

import (
	"testing"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func rec(start, end float64, text string) *Record {
	r := NewRecord(TimeInterval{Start: start, End: end}, text)
	return r
}

func TestCharacterLimitOK(t *testing.T) {
	tests := []struct {
		name string
		text string
		spec *Specification
		want bool
	}{
		{
			name: "no spec",
			text: "a very long line that would exceed any sane limit if one applied",
			spec: nil,
			want: true,
		},
		{
			name: "spec disabled",
			text: "a very long line",
			spec: &Specification{Enabled: false, MaxCharactersPerLine: intPtr(5)},
			want: true,
		},
		{
			name: "nil limit",
			spec: &Specification{Enabled: true},
			text: "anything goes",
			want: true,
		},
		{
			name: "within limit",
			text: "short\nlines",
			spec: &Specification{Enabled: true, MaxCharactersPerLine: intPtr(10)},
			want: true,
		},
		{
			name: "one line over",
			text: "short\nthis line is too long",
			spec: &Specification{Enabled: true, MaxCharactersPerLine: intPtr(10)},
			want: false,
		},
		{
			name: "markup not counted",
			text: "<i>emphasis</i>",
			spec: &Specification{Enabled: true, MaxCharactersPerLine: intPtr(8)},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CharacterLimitOK(tt.text, tt.spec); got != tt.want {
				t.Errorf("CharacterLimitOK() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLineCountOK(t *testing.T) {
	spec := &Specification{Enabled: true, MaxLinesPerCaption: intPtr(2)}
	if !LineCountOK("one\ntwo", spec) {
		t.Error("two lines should pass a 2-line limit")
	}
	if LineCountOK("one\ntwo\nthree", spec) {
		t.Error("three lines should fail a 2-line limit")
	}
	if !LineCountOK("one\ntwo\nthree", &Specification{Enabled: false, MaxLinesPerCaption: intPtr(2)}) {
		t.Error("disabled spec should not enforce line count")
	}
}

func TestRangeOK(t *testing.T) {
	tests := []struct {
		name     string
		interval TimeInterval
		spec     *Specification
		want     bool
	}{
		{
			name:     "default min gap enforced",
			interval: TimeInterval{Start: 0, End: 0.05},
			want:     false,
		},
		{
			name:     "default min gap met",
			interval: TimeInterval{Start: 0, End: 0.1},
			want:     true,
		},
		{
			name:     "no max by default",
			interval: TimeInterval{Start: 0, End: 100000},
			want:     true,
		},
		{
			name:     "spec min",
			interval: TimeInterval{Start: 0, End: 1},
			spec:     &Specification{Enabled: true, MinCaptionDurationMs: int64Ptr(1500)},
			want:     false,
		},
		{
			name:     "spec max",
			interval: TimeInterval{Start: 0, End: 9},
			spec:     &Specification{Enabled: true, MaxCaptionDurationMs: int64Ptr(8000)},
			want:     false,
		},
		{
			name:     "within spec window",
			interval: TimeInterval{Start: 1, End: 4},
			spec: &Specification{
				Enabled:              true,
				MinCaptionDurationMs: int64Ptr(1500),
				MaxCaptionDurationMs: int64Ptr(8000),
			},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RangeOK(tt.interval, tt.spec); got != tt.want {
				t.Errorf("RangeOK(%v) = %v, want %v", tt.interval, got, tt.want)
			}
		})
	}
}

func TestOverlapOK(t *testing.T) {
	track := &Track{OverlapEnabled: false}
	prev := rec(0, 2, "A")
	next := rec(3, 7, "B")

	if !OverlapOK(TimeInterval{Start: 2, End: 3}, prev, next, track) {
		t.Error("touching neighbors is not an overlap")
	}
	if OverlapOK(TimeInterval{Start: 1.5, End: 3}, prev, next, track) {
		t.Error("start before previous end must fail")
	}
	if OverlapOK(TimeInterval{Start: 2, End: 3.5}, prev, next, track) {
		t.Error("end after following start must fail")
	}
	if !OverlapOK(TimeInterval{Start: 1.5, End: 3.5}, prev, next, &Track{OverlapEnabled: true}) {
		t.Error("overlap-enabled track allows anything")
	}
	if !OverlapOK(TimeInterval{Start: 0, End: 1}, nil, nil, track) {
		t.Error("no neighbors, no overlap")
	}
}

func TestCorrectIntervalScenarios(t *testing.T) {
	track := &Track{OverlapEnabled: false}

	t.Run("no previous cue, no clamp", func(t *testing.T) {
		// Cues [{0,2,"A"},{3,7,"B"}], editing cue 0 to {1,2}.
		next := rec(3, 7, "B")
		candidate := TimeInterval{Start: 1, End: 2}
		fired := correctInterval(&candidate, nil, next, track, nil, true, false)
		if len(fired) != 0 {
			t.Errorf("expected no policy to fire, got %v", fired)
		}
		if candidate.Start != 1 || candidate.End != 2 {
			t.Errorf("candidate changed: %+v", candidate)
		}
	})

	t.Run("end clamped to following start", func(t *testing.T) {
		// Cues [{0,2,"A"},{2,4,"B"}], editing cue 0 end to 5.
		next := rec(2, 4, "B")
		candidate := TimeInterval{Start: 0, End: 5}
		fired := correctInterval(&candidate, nil, next, track, nil, false, true)
		if candidate.End != 2 {
			t.Errorf("end = %v, want 2", candidate.End)
		}
		if len(fired) != 1 || fired[0] != ErrTimeGapOverlap {
			t.Errorf("fired = %v, want [TIME_GAP_OVERLAP]", fired)
		}
	})

	t.Run("start clamped to previous end", func(t *testing.T) {
		prev := rec(0, 2, "A")
		candidate := TimeInterval{Start: 1, End: 4}
		fired := correctInterval(&candidate, prev, nil, track, nil, true, false)
		if candidate.Start != 2 {
			t.Errorf("start = %v, want 2", candidate.Start)
		}
		if len(fired) != 1 || fired[0] != ErrTimeGapOverlap {
			t.Errorf("fired = %v, want [TIME_GAP_OVERLAP]", fired)
		}
	})

	t.Run("range restored at changed edge", func(t *testing.T) {
		spec := &Specification{Enabled: true, MaxCaptionDurationMs: int64Ptr(4000)}
		candidate := TimeInterval{Start: 0, End: 10}
		fired := correctInterval(&candidate, nil, nil, track, spec, false, true)
		if candidate.End != 4 {
			t.Errorf("end = %v, want 4", candidate.End)
		}
		if len(fired) != 1 || fired[0] != ErrInvalidRangeEnd {
			t.Errorf("fired = %v, want [INVALID_RANGE_END]", fired)
		}
	})

	t.Run("min gap restored at start", func(t *testing.T) {
		candidate := TimeInterval{Start: 1.95, End: 2}
		fired := correctInterval(&candidate, nil, nil, track, nil, true, false)
		if got := candidate.End - candidate.Start; got < defaultMinGap-1e-9 {
			t.Errorf("duration %v below min gap", got)
		}
		if len(fired) != 1 || fired[0] != ErrInvalidRangeStart {
			t.Errorf("fired = %v, want [INVALID_RANGE_START]", fired)
		}
	})
}

func TestCheckChunkRange(t *testing.T) {
	track := &Track{
		MediaChunkStart: int64Ptr(1000),
		MediaChunkEnd:   int64Ptr(10000),
	}
	if err := checkChunkRange(TimeInterval{Start: 1, End: 10}, track); err != nil {
		t.Errorf("inside chunk window rejected: %v", err)
	}
	if err := checkChunkRange(TimeInterval{Start: 0.5, End: 5}, track); err == nil {
		t.Error("start before chunk window not rejected")
	}
	if err := checkChunkRange(TimeInterval{Start: 5, End: 11}, track); err == nil {
		t.Error("end after chunk window not rejected")
	}
	if err := checkChunkRange(TimeInterval{Start: 0, End: 99}, &Track{}); err != nil {
		t.Errorf("track without chunk window must not reject: %v", err)
	}
}

func TestCaptionErrorsIncludesSpelling(t *testing.T) {
	r := rec(0, 2, "fine")
	r.SpellMatches = []SpellMatch{{Offset: 0, Length: 4, RuleID: "MORFOLOGIK_RULE"}}
	errs := CaptionErrors(r, nil, nil, &Track{}, nil)
	if len(errs) != 1 || errs[0] != ErrSpellcheck {
		t.Errorf("errs = %v, want [SPELLCHECK_ERROR]", errs)
	}
	if !ConformsToRules(r, nil, nil, &Track{}, nil) {
		t.Error("rules-only conformance must ignore spelling")
	}
}
