package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lkrnac/manucap-sub004/internal/cue"
	"github.com/lkrnac/manucap-sub004/internal/session"
)

type CommandsHandler struct {
	sessions *session.Manager
}

func NewCommandsHandler(sessions *session.Manager) *CommandsHandler {
	return &CommandsHandler{sessions: sessions}
}

// commandEnvelope is the wire form of a cue edit: a type tag plus the
// union of all variant fields. decode() narrows it to the right
// command value.
type commandEnvelope struct {
	Type            string             `json:"type"`
	Index           int                `json:"index"`
	Indexes         []int              `json:"indexes"`
	Interval        cue.TimeInterval   `json:"interval"`
	Text            string             `json:"text"`
	EditToken       string             `json:"editToken"`
	SourceIntervals []cue.TimeInterval `json:"sourceIntervals"`
	Position        cue.ShiftPosition  `json:"position"`
	Pivot           int                `json:"pivot"`
	Delta           float64            `json:"delta"`
}

func (e *commandEnvelope) decode() (cue.Command, error) {
	switch e.Type {
	case "addCue":
		return cue.AddCue{Index: e.Index, SourceIntervals: e.SourceIntervals}, nil
	case "deleteCue":
		return cue.DeleteCue{Index: e.Index}, nil
	case "updateInterval":
		return cue.UpdateInterval{Index: e.Index, Interval: e.Interval, EditToken: e.EditToken}, nil
	case "updateText":
		return cue.UpdateText{Index: e.Index, Text: e.Text, EditToken: e.EditToken}, nil
	case "split":
		return cue.Split{Index: e.Index}, nil
	case "merge":
		return cue.Merge{Indexes: e.Indexes}, nil
	case "shiftTime":
		return cue.ShiftTime{Position: e.Position, Pivot: e.Pivot, Delta: e.Delta}, nil
	case "syncToSource":
		return cue.SyncToSource{}, nil
	default:
		return nil, errors.New("unknown command type: " + e.Type)
	}
}

// Apply runs one edit command through the track's mutation pipeline.
// Rejections come back as 422 with the error kind; stale-token edits
// return 200 like any other superseded no-op.
func (h *CommandsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(chi.URLParam(r, "trackID"))
	if err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}

	var envelope commandEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	cmd, err := envelope.decode()
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Pipeline.Apply(cmd); err != nil {
		var rej *cue.RejectionError
		if errors.As(err, &rej) {
			jsonResponse(w, map[string]interface{}{
				"rejected": true,
				"kind":     rej.Kind,
				"message":  rej.Msg,
			}, http.StatusUnprocessableEntity)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]interface{}{
		"cues":         s.Pipeline.Cues(),
		"editingIndex": s.Pipeline.EditingIndex(),
		"alerts":       s.Pipeline.Transient.Active(),
	}, http.StatusOK)
}

// indexParam parses the {index} URL segment.
func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 {
		jsonError(w, "invalid cue index", http.StatusBadRequest)
		return 0, false
	}
	return idx, true
}
