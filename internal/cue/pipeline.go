package cue

import (
	"errors"
	"log"
	"sync"
	"time"
)

// Command is the sum type of cue edits the pipeline accepts. Each
// variant carries only the fields its operation needs.
type Command interface{ isCommand() }

type AddCue struct {
	Index           int
	SourceIntervals []TimeInterval
}

type DeleteCue struct{ Index int }

type UpdateInterval struct {
	Index     int
	Interval  TimeInterval
	EditToken string
}

type UpdateText struct {
	Index     int
	Text      string
	EditToken string
}

type Split struct{ Index int }

type Merge struct{ Indexes []int }

type ShiftTime struct {
	Position ShiftPosition
	Pivot    int
	Delta    float64
}

type SyncToSource struct{}

func (AddCue) isCommand()         {}
func (DeleteCue) isCommand()      {}
func (UpdateInterval) isCommand() {}
func (UpdateText) isCommand()     {}
func (Split) isCommand()          {}
func (Merge) isCommand()          {}
func (ShiftTime) isCommand()      {}
func (SyncToSource) isCommand()   {}

// Saver is the external persistence collaborator. Calls are
// fire-and-forget; the pipeline never awaits them.
type Saver interface {
	SaveCue(index int)
	SaveTrack()
}

// NopSaver discards all save signals.
type NopSaver struct{}

func (NopSaver) SaveCue(int) {}
func (NopSaver) SaveTrack()  {}

const (
	transientDisplayTTL = 1 * time.Second
	transientBatchGap   = 8 * time.Second
	defaultSaveDebounce = 200 * time.Millisecond
)

// TransientErrors collects rejection/correction notifications for user
// display. Entries auto-expire after about a second; a kind that keeps
// re-firing is suppressed until the batch gap has passed, so rapid
// repeated rejections do not flicker.
type TransientErrors struct {
	mu    sync.Mutex
	now   func() time.Time
	shown map[ErrorKind]time.Time
}

func NewTransientErrors() *TransientErrors {
	return &TransientErrors{now: time.Now, shown: make(map[ErrorKind]time.Time)}
}

// Add records kinds for display, honoring the suppression window.
func (t *TransientErrors) Add(kinds ...ErrorKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for _, k := range kinds {
		last, seen := t.shown[k]
		if seen && now.Sub(last) < transientBatchGap {
			continue
		}
		t.shown[k] = now
	}
}

// Active returns the kinds still within their display window.
func (t *TransientErrors) Active() []ErrorKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	var kinds []ErrorKind
	for k, at := range t.shown {
		if now.Sub(at) < transientDisplayTTL {
			kinds = append(kinds, k)
		}
		if now.Sub(at) >= transientBatchGap {
			delete(t.shown, k)
		}
	}
	return kinds
}

// saveDebouncer coalesces rapid save signals. The in-memory cue list
// always updates synchronously; only the external save call is delayed.
type saveDebouncer struct {
	mu      sync.Mutex
	saver   Saver
	delay   time.Duration
	timer   *time.Timer
	pending map[int]struct{}
	track   bool
	closed  bool
}

func newSaveDebouncer(saver Saver, delay time.Duration) *saveDebouncer {
	if delay <= 0 {
		delay = defaultSaveDebounce
	}
	return &saveDebouncer{saver: saver, delay: delay, pending: make(map[int]struct{})}
}

func (d *saveDebouncer) enqueueCue(idx int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending[idx] = struct{}{}
	d.arm()
}

func (d *saveDebouncer) enqueueTrack() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.track = true
	d.arm()
}

// arm (re)starts the timer; callers hold d.mu.
func (d *saveDebouncer) arm() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *saveDebouncer) fire() {
	d.mu.Lock()
	pending := d.pending
	track := d.track
	d.pending = make(map[int]struct{})
	d.track = false
	d.mu.Unlock()

	if track {
		d.saver.SaveTrack()
	}
	for idx := range pending {
		d.saver.SaveCue(idx)
	}
}

// flush runs any pending save immediately. Used on session teardown so
// a debounced write is never dropped.
func (d *saveDebouncer) flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fire()
}

func (d *saveDebouncer) close() {
	d.flush()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Pipeline orchestrates cue edits: it applies a command to the store,
// runs neighbor revalidation, keeps the transient error list, and
// signals the persistence collaborator once per logical change. All
// mutation flows through here; it is the single writer of the store.
type Pipeline struct {
	mu        sync.Mutex
	store     *Store
	sources   []*Record
	saver     *saveDebouncer
	Transient *TransientErrors
}

// NewPipeline wires a pipeline around a store. sources may be nil for
// captioning mode (no translation alignment).
func NewPipeline(store *Store, sources []*Record, saver Saver, saveDebounce time.Duration) *Pipeline {
	if saver == nil {
		saver = NopSaver{}
	}
	return &Pipeline{
		store:     store,
		sources:   sources,
		saver:     newSaveDebouncer(saver, saveDebounce),
		Transient: NewTransientErrors(),
	}
}

// Store exposes the underlying cue list store. The store itself is not
// synchronized; concurrent readers must go through the snapshot accessors
// below instead.
func (p *Pipeline) Store() *Store { return p.store }

// Cues returns a copy of the committed cue list that is safe to read
// and marshal while edits continue on other goroutines.
func (p *Pipeline) Cues() []*Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneRecords(p.store.Cues())
}

// CueAt returns a copy of the cue at idx, or false when out of range.
func (p *Pipeline) CueAt(idx int) (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.store.at(idx)
	if rec == nil {
		return Record{}, false
	}
	return *rec.clone(), true
}

// EditingIndex returns the store's focused cue index.
func (p *Pipeline) EditingIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.EditingIndex()
}

// ChangeLogLen returns the number of committed changes so far.
func (p *Pipeline) ChangeLogLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.store.ChangeLog())
}

// Sources returns the source cue list, or nil in captioning mode.
func (p *Pipeline) Sources() []*Record { return p.sources }

// SetSources replaces the source cue list (source track loaded or
// re-synced by its own editor).
func (p *Pipeline) SetSources(sources []*Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = sources
}

// Apply runs one command through the pipeline. A stale edit token makes
// the command a silent no-op: the race is last-committer-wins, not an
// error. Rejections are recorded as transient errors and returned.
func (p *Pipeline) Apply(cmd Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	commit, err := p.dispatch(cmd)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			p.Transient.Add(rej.Kind)
			log.Printf("[pipeline] rejected %T: %v", cmd, err)
		}
		return err
	}
	if commit == nil {
		// Stale token or no-op edit; superseded silently.
		return nil
	}

	p.Transient.Add(commit.Transient...)
	p.finish(cmd, commit)
	return nil
}

func (p *Pipeline) dispatch(cmd Command) (*Commit, error) {
	switch c := cmd.(type) {
	case AddCue:
		return p.store.InsertCue(c.Index, c.SourceIntervals)
	case DeleteCue:
		return p.store.DeleteCue(c.Index)
	case UpdateInterval:
		return p.store.UpdateInterval(c.Index, c.Interval, c.EditToken)
	case UpdateText:
		return p.store.UpdateText(c.Index, c.Text, c.EditToken)
	case Split:
		return p.store.SplitCue(c.Index)
	case Merge:
		return p.store.MergeCues(c.Indexes)
	case ShiftTime:
		return p.store.ShiftTimes(c.Position, c.Pivot, c.Delta)
	case SyncToSource:
		return p.store.SyncToSource(sourceIntervals(p.sources))
	default:
		return nil, nil
	}
}

// finish runs the post-commit stages: neighbor revalidation and the
// persistence signal.
func (p *Pipeline) finish(cmd Command, commit *Commit) {
	idx := commit.Index

	if _, textOnly := cmd.(UpdateText); textOnly {
		// Text cannot flip a neighbor between overlapping and not;
		// only the edited cue needs revalidation.
		p.store.Revalidate(idx)
		p.saver.enqueueCue(idx)
		return
	}

	if commit.Structural || commit.StartTimeChanged {
		// Ordering may have changed; indices are no longer a stable
		// key for incremental saves, so revalidate and persist whole.
		p.store.RevalidateAll()
		p.saver.enqueueTrack()
		return
	}

	for _, i := range []int{idx - 1, idx, idx + 1} {
		if p.store.Revalidate(i) && i != idx {
			p.saver.enqueueCue(i)
		}
	}
	p.saver.enqueueCue(idx)
}

// Rows recomputes the matched rows for the current cue lists. The rows
// reference copied target records so callers can marshal them after the
// lock is released.
func (p *Pipeline) Rows() []MatchedRow {
	p.mu.Lock()
	defer p.mu.Unlock()
	return MatchRows(cloneRecords(p.store.Cues()), p.sources)
}

// ApplySpellMatches lands an asynchronous spell-check response. The
// response is applied only when it still describes the cue's current
// text; indices shift on reorder, so applicability is re-derived from
// the token and text rather than trusted from the index alone.
func (p *Pipeline) ApplySpellMatches(idx int, token, checkedText string, matches []SpellMatch) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := p.store.at(idx)
	if rec == nil || rec.EditToken != token {
		idx, rec = p.store.FindByToken(token)
		if rec == nil {
			return
		}
	}
	if StripMarkup(rec.Text) != checkedText {
		return
	}

	rec.SpellMatches = matches
	if p.store.Revalidate(idx) {
		p.saver.enqueueCue(idx)
	}
}

// ClearSpellMatches drops every outstanding match whose rule/keyword
// pair the supplied filter rejects, typically after the user ignored a
// keyword track-wide.
func (p *Pipeline) ClearSpellMatches(keep func(text string, m SpellMatch) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, rec := range p.store.Cues() {
		if len(rec.SpellMatches) == 0 {
			continue
		}
		plain := StripMarkup(rec.Text)
		var kept []SpellMatch
		for _, m := range rec.SpellMatches {
			if keep(plain, m) {
				kept = append(kept, m)
			}
		}
		if len(kept) != len(rec.SpellMatches) {
			rec.SpellMatches = kept
			if p.store.Revalidate(i) {
				p.saver.enqueueCue(i)
			}
		}
	}
}

// AddComment appends a comment to the cue at idx. Comments are row
// metadata, not content: they do not touch the edit token, so they
// never invalidate a concurrent text or time edit.
func (p *Pipeline) AddComment(idx int, c Comment) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.store.at(idx)
	if rec == nil {
		return false
	}
	rec.Comments = append(rec.Comments, c)
	p.saver.enqueueCue(idx)
	return true
}

// DeleteComment removes the comment at commentIdx from the cue at idx.
func (p *Pipeline) DeleteComment(idx, commentIdx int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.store.at(idx)
	if rec == nil || commentIdx < 0 || commentIdx >= len(rec.Comments) {
		return false
	}
	rec.Comments = append(rec.Comments[:commentIdx], rec.Comments[commentIdx+1:]...)
	p.saver.enqueueCue(idx)
	return true
}

// Flush forces any pending debounced save out immediately.
func (p *Pipeline) Flush() { p.saver.flush() }

// Close flushes pending saves and stops accepting new ones.
func (p *Pipeline) Close() { p.saver.close() }

func sourceIntervals(sources []*Record) []TimeInterval {
	intervals := make([]TimeInterval, len(sources))
	for i, s := range sources {
		intervals[i] = s.Interval
	}
	return intervals
}
