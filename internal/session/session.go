package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lkrnac/manucap-sub004/internal/cue"
	"github.com/lkrnac/manucap-sub004/internal/db"
	"github.com/lkrnac/manucap-sub004/internal/spell"
)

// Session is the editing context for one open track: the cue store, the
// mutation pipeline around it, the search state, and the spell-check
// ignore list. Created on track load, discarded on track switch.
type Session struct {
	Track    *cue.Track
	Spec     *cue.Specification
	Pipeline *cue.Pipeline
	Searcher *cue.Searcher
	Ignores  *spell.IgnoreList

	checker  *spell.Client
	database *db.Database
}

// dbSaver adapts the sqlite layer to the pipeline's persistence
// collaborator. Calls arrive already debounced, on the debounce timer's
// goroutine, so reads go through the pipeline's snapshot accessors.
type dbSaver struct {
	database *db.Database
	trackID  string
	pipeline *cue.Pipeline
}

func (s *dbSaver) SaveCue(index int) {
	rec, ok := s.pipeline.CueAt(index)
	if !ok {
		return
	}
	if err := s.database.SaveCue(s.trackID, index, &rec); err != nil {
		log.Printf("[session] save cue %d failed: %v", index, err)
	}
}

func (s *dbSaver) SaveTrack() {
	if err := s.database.ReplaceCues(s.trackID, s.pipeline.Cues()); err != nil {
		log.Printf("[session] save track %s failed: %v", s.trackID, err)
	}
}

// open loads a track and builds its session.
func open(database *db.Database, checker *spell.Client, trackID string, saveDebounce time.Duration) (*Session, error) {
	track, spec, err := database.GetTrack(trackID)
	if err != nil {
		return nil, err
	}
	records, err := database.LoadCues(trackID)
	if err != nil {
		return nil, err
	}
	var sources []*cue.Record
	if track.SourceLanguage != nil {
		sources, err = database.LoadSourceCues(trackID)
		if err != nil {
			return nil, err
		}
	}
	ignores, err := spell.NewIgnoreList(trackID, database)
	if err != nil {
		return nil, err
	}

	store := cue.NewStore(track, spec)
	store.ReplaceAll(records)
	store.RevalidateAll()

	saver := &dbSaver{database: database, trackID: trackID}
	pipeline := cue.NewPipeline(store, sources, saver, saveDebounce)
	saver.pipeline = pipeline

	log.Printf("[session] opened track %s: %d cues, %d source cues", trackID, len(records), len(sources))
	return &Session{
		Track:    track,
		Spec:     spec,
		Pipeline: pipeline,
		Searcher: cue.NewSearcher(pipeline),
		Ignores:  ignores,
		checker:  checker,
		database: database,
	}, nil
}

// Close flushes pending saves and releases the session.
func (s *Session) Close() {
	s.Pipeline.Close()
}

// CheckSpelling fires an asynchronous spell check for the cue at idx.
// The response is filtered through the ignore list and applied through
// the pipeline's defensive landing path; a response that arrives after
// the text changed again is dropped there.
func (s *Session) CheckSpelling(idx int) {
	if s.checker == nil {
		return
	}
	rec, ok := s.Pipeline.CueAt(idx)
	if !ok {
		return
	}
	token := rec.EditToken
	plain := cue.StripMarkup(rec.Text)
	language := s.Track.Language.ID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		result, err := s.checker.Check(ctx, plain, language)
		if err != nil {
			log.Printf("[spell] check failed for cue %d: %v", idx, err)
			return
		}
		filtered := s.Ignores.Filter(plain, result.Matches)
		s.Pipeline.ApplySpellMatches(idx, token, plain, toCueMatches(filtered))
	}()
}

// CheckAllSpelling spell checks every cue in order, reporting progress
// after each one. It runs synchronously on the caller's goroutine so the
// job queue can cancel it between cues. Individual cue failures are
// logged and skipped; the run fails only when every check failed.
func (s *Session) CheckAllSpelling(ctx context.Context, progress func(float64)) error {
	if s.checker == nil {
		return nil
	}
	total := len(s.Pipeline.Cues())
	failed := 0
	for idx := 0; idx < total; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Re-read each iteration: earlier landings may have been
		// superseded by concurrent edits.
		rec, ok := s.Pipeline.CueAt(idx)
		if !ok {
			break
		}
		token := rec.EditToken
		plain := cue.StripMarkup(rec.Text)
		if plain == "" {
			continue
		}
		result, err := s.checker.Check(ctx, plain, s.Track.Language.ID)
		if err != nil {
			log.Printf("[spell] track check: cue %d failed: %v", idx, err)
			failed++
			continue
		}
		filtered := s.Ignores.Filter(plain, result.Matches)
		s.Pipeline.ApplySpellMatches(idx, token, plain, toCueMatches(filtered))
		if progress != nil {
			progress(float64(idx+1) / float64(total))
		}
	}
	if failed > 0 && failed == total {
		return fmt.Errorf("spell check failed for all %d cues", total)
	}
	return nil
}

// IgnoreKeyword ignores a keyword/rule pair track-wide and clears every
// outstanding match it covers.
func (s *Session) IgnoreKeyword(keyword, ruleID string) error {
	if err := s.Ignores.Ignore(keyword, ruleID); err != nil {
		return err
	}
	s.Pipeline.ClearSpellMatches(func(text string, m cue.SpellMatch) bool {
		return !s.Ignores.Ignored(spell.Keyword(text, m.Offset, m.Length), m.RuleID)
	})
	return nil
}

func toCueMatches(matches []spell.Match) []cue.SpellMatch {
	out := make([]cue.SpellMatch, len(matches))
	for i, m := range matches {
		out[i] = cue.SpellMatch{
			Offset:      m.Offset,
			Length:      m.Length,
			RuleID:      m.RuleID,
			Message:     m.Message,
			Suggestions: m.Suggestions,
		}
	}
	return out
}

// Manager owns the live sessions, one per open track.
type Manager struct {
	mu           sync.Mutex
	database     *db.Database
	checker      *spell.Client
	saveDebounce time.Duration
	sessions     map[string]*Session
}

// NewManager creates a session manager. checker may be nil when no
// spell-check server is configured.
func NewManager(database *db.Database, checker *spell.Client, saveDebounce time.Duration) *Manager {
	return &Manager{
		database:     database,
		checker:      checker,
		saveDebounce: saveDebounce,
		sessions:     make(map[string]*Session),
	}
}

// Open returns the session for a track, loading it on first use.
func (m *Manager) Open(trackID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[trackID]; ok {
		return s, nil
	}
	s, err := open(m.database, m.checker, trackID, m.saveDebounce)
	if err != nil {
		return nil, err
	}
	m.sessions[trackID] = s
	return s, nil
}

// CloseTrack flushes and discards a track's session.
func (m *Manager) CloseTrack(trackID string) {
	m.mu.Lock()
	s, ok := m.sessions[trackID]
	delete(m.sessions, trackID)
	m.mu.Unlock()
	if ok {
		s.Close()
		log.Printf("[session] closed track %s", trackID)
	}
}

// CloseAll flushes every open session, typically on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for id, s := range sessions {
		s.Close()
		log.Printf("[session] closed track %s", id)
	}
}
