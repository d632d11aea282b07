package cue

// MatchedCue pairs a cue with its index in its own list.
type MatchedCue struct {
	Index int     `json:"index"`
	Cue   *Record `json:"cue"`
}

// MatchedRow is one alignment unit for translation-mode rendering: the
// target cues and source cues whose intervals overlap each other. A row
// with no sources renders as "needs translation"; a row with no targets
// renders as an insert placeholder keyed to the source interval.
//
// Rows are derived state. They are never mutated independently, only
// regenerated from the two cue lists.
type MatchedRow struct {
	Targets []MatchedCue `json:"targetCues"`
	Sources []MatchedCue `json:"sourceCues"`
}

// MatchRows groups two independently edited, time-sorted cue lists into
// alignment rows. Cues land in the same row exactly when they are
// connected through interval overlap (directly or transitively via
// intermediate overlapping cues on the other side). Every target and
// every source cue appears in exactly one row.
//
// Cues that overlap nothing on the other side get a row of their own,
// ordered among the other rows by start time. There is no
// nearest-by-time stealing: exact interval overlap is the only pairing
// criterion.
//
// The computation is pure and deterministic; callers re-run it after
// any structural or temporal edit to either list.
func MatchRows(targets, sources []*Record) []MatchedRow {
	var rows []MatchedRow
	ti, si := 0, 0

	for ti < len(targets) || si < len(sources) {
		switch {
		case ti >= len(targets):
			rows = append(rows, MatchedRow{Sources: []MatchedCue{{Index: si, Cue: sources[si]}}})
			si++
		case si >= len(sources):
			rows = append(rows, MatchedRow{Targets: []MatchedCue{{Index: ti, Cue: targets[ti]}}})
			ti++
		case !targets[ti].Interval.Overlaps(sources[si].Interval):
			// Disjoint heads: the one that ends first stands alone.
			if targets[ti].Interval.End <= sources[si].Interval.Start {
				rows = append(rows, MatchedRow{Targets: []MatchedCue{{Index: ti, Cue: targets[ti]}}})
				ti++
			} else {
				rows = append(rows, MatchedRow{Sources: []MatchedCue{{Index: si, Cue: sources[si]}}})
				si++
			}
		default:
			row, nt, ns := growRow(targets, sources, ti, si)
			rows = append(rows, row)
			ti, si = nt, ns
		}
	}
	return rows
}

// growRow collects the maximal run of mutually connected cues starting
// at targets[ti] / sources[si], which are known to overlap. A candidate
// joins the row when it starts before the latest end seen on the
// opposite side; both lists being start-sorted makes that the overlap
// connectivity test.
func growRow(targets, sources []*Record, ti, si int) (MatchedRow, int, int) {
	row := MatchedRow{
		Targets: []MatchedCue{{Index: ti, Cue: targets[ti]}},
		Sources: []MatchedCue{{Index: si, Cue: sources[si]}},
	}
	tEnd := targets[ti].Interval.End
	sEnd := sources[si].Interval.End
	ti++
	si++

	for {
		switch {
		case ti < len(targets) && targets[ti].Interval.Start < sEnd:
			if e := targets[ti].Interval.End; e > tEnd {
				tEnd = e
			}
			row.Targets = append(row.Targets, MatchedCue{Index: ti, Cue: targets[ti]})
			ti++
		case si < len(sources) && sources[si].Interval.Start < tEnd:
			if e := sources[si].Interval.End; e > sEnd {
				sEnd = e
			}
			row.Sources = append(row.Sources, MatchedCue{Index: si, Cue: sources[si]})
			si++
		default:
			return row, ti, si
		}
	}
}
