package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lkrnac/manucap-sub004/internal/api/middleware"
	"github.com/lkrnac/manucap-sub004/internal/cue"
	"github.com/lkrnac/manucap-sub004/internal/db"
	"github.com/lkrnac/manucap-sub004/internal/session"
	"github.com/lkrnac/manucap-sub004/internal/vtt"
)

type TracksHandler struct {
	database *db.Database
	sessions *session.Manager
}

func NewTracksHandler(database *db.Database, sessions *session.Manager) *TracksHandler {
	return &TracksHandler{database: database, sessions: sessions}
}

// ListTracks returns the ids of all stored tracks.
func (h *TracksHandler) ListTracks(w http.ResponseWriter, r *http.Request) {
	ids, err := h.database.ListTrackIDs()
	if err != nil {
		jsonError(w, "failed to list tracks", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]interface{}{"tracks": ids}, http.StatusOK)
}

type createTrackRequest struct {
	Track      cue.Track          `json:"track"`
	Spec       *cue.Specification `json:"spec"`
	Cues       []cueSeed          `json:"cues"`
	SourceCues []cueSeed          `json:"sourceCues"`
}

type cueSeed struct {
	Start float64 `json:"startTime"`
	End   float64 `json:"endTime"`
	Text  string  `json:"text"`
}

// CreateTrack stores a new track with its initial cue lists.
func (h *TracksHandler) CreateTrack(w http.ResponseWriter, r *http.Request) {
	var req createTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Track.ID == "" {
		req.Track.ID = uuid.NewString()
	}
	if req.Spec == nil {
		req.Spec = &cue.Specification{}
	}
	if err := h.database.CreateTrack(&req.Track, req.Spec); err != nil {
		jsonError(w, "failed to create track", http.StatusInternalServerError)
		return
	}
	if err := h.database.ReplaceCues(req.Track.ID, seedRecords(req.Cues)); err != nil {
		jsonError(w, "failed to store cues", http.StatusInternalServerError)
		return
	}
	if len(req.SourceCues) > 0 {
		if err := h.database.ReplaceSourceCues(req.Track.ID, seedRecords(req.SourceCues)); err != nil {
			jsonError(w, "failed to store source cues", http.StatusInternalServerError)
			return
		}
	}
	jsonResponse(w, map[string]string{"id": req.Track.ID}, http.StatusCreated)
}

func seedRecords(seeds []cueSeed) []*cue.Record {
	records := make([]*cue.Record, len(seeds))
	for i, s := range seeds {
		records[i] = cue.NewRecord(cue.TimeInterval{Start: s.Start, End: s.End}, s.Text)
	}
	return records
}

// GetTrack returns a track's metadata and spec.
func (h *TracksHandler) GetTrack(w http.ResponseWriter, r *http.Request) {
	track, spec, err := h.database.GetTrack(chi.URLParam(r, "trackID"))
	if err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, map[string]interface{}{"track": track, "spec": spec}, http.StatusOK)
}

// GetCues returns the live cue list of an open session.
func (h *TracksHandler) GetCues(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(chi.URLParam(r, "trackID"))
	if err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, map[string]interface{}{
		"cues":         s.Pipeline.Cues(),
		"editingIndex": s.Pipeline.EditingIndex(),
	}, http.StatusOK)
}

// GetRows returns the matched target/source rows for translation mode.
func (h *TracksHandler) GetRows(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(chi.URLParam(r, "trackID"))
	if err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, map[string]interface{}{"rows": s.Pipeline.Rows()}, http.StatusOK)
}

// GetAlerts returns the active transient validation errors.
func (h *TracksHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(chi.URLParam(r, "trackID"))
	if err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}
	alerts := s.Pipeline.Transient.Active()
	if alerts == nil {
		alerts = []cue.ErrorKind{}
	}
	jsonResponse(w, map[string]interface{}{"alerts": alerts}, http.StatusOK)
}

// CloseSession flushes pending saves and discards the session.
func (h *TracksHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.CloseTrack(chi.URLParam(r, "trackID"))
	w.WriteHeader(http.StatusNoContent)
}

// CheckSpelling fires an async spell check for one cue.
func (h *TracksHandler) CheckSpelling(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(chi.URLParam(r, "trackID"))
	if err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}
	idx, ok := indexParam(w, r)
	if !ok {
		return
	}
	s.CheckSpelling(idx)
	w.WriteHeader(http.StatusAccepted)
}

type ignoreRequest struct {
	Keyword string `json:"keyword"`
	RuleID  string `json:"ruleId"`
}

// IgnoreKeyword ignores a keyword/rule pair track-wide.
func (h *TracksHandler) IgnoreKeyword(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(chi.URLParam(r, "trackID"))
	if err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}
	var req ignoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Keyword == "" {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.IgnoreKeyword(req.Keyword, req.RuleID); err != nil {
		jsonError(w, "failed to store ignore", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type commentRequest struct {
	Text string `json:"text"`
}

// AddComment appends a comment to a cue's thread.
func (h *TracksHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(chi.URLParam(r, "trackID"))
	if err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}
	idx, ok := indexParam(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	comment := cue.Comment{Text: req.Text, Timestamp: time.Now()}
	if claims := middleware.GetClaims(r); claims != nil {
		comment.Author = claims.Username
	}
	if !s.Pipeline.AddComment(idx, comment) {
		jsonError(w, "cue not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ImportVTT replaces a track's cue list with the uploaded WebVTT file.
// Any open session is closed first so the next request reloads the
// imported cues.
func (h *TracksHandler) ImportVTT(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")
	if _, _, err := h.database.GetTrack(trackID); err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		jsonError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	records := vtt.Parse(string(body))
	if len(records) == 0 {
		jsonError(w, "no cues found in file", http.StatusBadRequest)
		return
	}
	h.sessions.CloseTrack(trackID)
	if err := h.database.ReplaceCues(trackID, records); err != nil {
		jsonError(w, "failed to store cues", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]int{"cues": len(records)}, http.StatusOK)
}

// ExportVTT serializes the live cue list as a WebVTT document.
func (h *TracksHandler) ExportVTT(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(chi.URLParam(r, "trackID"))
	if err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	io.WriteString(w, vtt.Format(s.Pipeline.Cues()))
}

// Search sets the search term and returns all matches.
func (h *TracksHandler) Search(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(chi.URLParam(r, "trackID"))
	if err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}
	term := r.URL.Query().Get("q")
	matchCase := r.URL.Query().Get("matchCase") == "true"
	s.Searcher.SetTerm(term, matchCase)
	matches := s.Searcher.Matches()
	if matches == nil {
		matches = []cue.SearchMatch{}
	}
	jsonResponse(w, map[string]interface{}{"matches": matches}, http.StatusOK)
}

type replaceRequest struct {
	Replacement string `json:"replacement"`
	All         bool   `json:"all"`
}

// Replace replaces the next occurrence, or all of them.
func (h *TracksHandler) Replace(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(chi.URLParam(r, "trackID"))
	if err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}
	var req replaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.All {
		err = s.Searcher.ReplaceAll(req.Replacement)
	} else {
		if _, ok := s.Searcher.Next(); ok {
			err = s.Searcher.ReplaceCurrent(req.Replacement)
		}
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
