package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"blockfall/internal/game"
	"blockfall/internal/highscore"
	"blockfall/internal/input"
	"blockfall/internal/session"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 12

var (
	errMissingCommand = errors.New("command or key is required")
	errUnknownCommand = errors.New("unknown command")
)

// commandRequest carries either a command word or a browser key name.
type commandRequest struct {
	Command string `json:"command"`
	Key     string `json:"key"`
}

func (r commandRequest) resolve() (input.Command, error) {
	switch {
	case r.Command != "":
		if cmd, ok := input.ParseCommand(r.Command); ok {
			return cmd, nil
		}
		return input.CmdUnknown, errUnknownCommand
	case r.Key != "":
		if cmd, ok := input.ParseKey(r.Key); ok {
			return cmd, nil
		}
		return input.CmdUnknown, errUnknownCommand
	default:
		return input.CmdUnknown, errMissingCommand
	}
}

// sessionResponse describes one session
type sessionResponse struct {
	ID        string        `json:"id"`
	Seed      int64         `json:"seed"`
	CreatedAt time.Time     `json:"createdAt"`
	Gravity   bool          `json:"gravity"`
	Snapshot  game.Snapshot `json:"snapshot"`
	Qualifies *bool         `json:"qualifies,omitempty"` // set once the game is over
}

func sessionView(ctx context.Context, s *session.Session) sessionResponse {
	resp := sessionResponse{
		ID:        s.ID(),
		Seed:      s.Seed(),
		CreatedAt: s.CreatedAt(),
		Gravity:   s.Running(),
		Snapshot:  s.Snapshot(),
	}
	if resp.Snapshot.GameOver {
		if ok, err := s.Qualifies(ctx); err == nil {
			resp.Qualifies = &ok
		}
	}
	return resp
}

func (h *routerHandlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := h.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "session not found", http.StatusNotFound)
	}
	return s, ok
}

func (h *routerHandlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := h.sessions.IDs()
	sort.Strings(ids)
	writeJSON(w, map[string]any{
		"sessions": ids,
		"count":    len(ids),
	})
}

func (h *routerHandlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create()
	switch {
	case errors.Is(err, session.ErrTooManySessions), errors.Is(err, session.ErrManagerClosed):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	UpdateSessionCount(h.sessions.Count())
	w.Header().Set("Location", "/api/sessions/"+s.ID())
	writeJSONStatus(w, sessionView(r.Context(), s), http.StatusCreated)
}

func (h *routerHandlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, sessionView(r.Context(), s))
}

func (h *routerHandlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.sessions.Remove(id) {
		writeError(w, "session not found", http.StatusNotFound)
		return
	}

	// Subscribers hear about it through the manager's OnClosed hook.
	UpdateSessionCount(h.sessions.Count())
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleCommand(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req commandRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	cmd, err := req.resolve()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, s.Apply(cmd))
}

func (h *routerHandlers) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}

	rank, err := s.SubmitScore(r.Context(), req.Name)
	if err != nil {
		status := scoreErrorStatus(err)
		if status == http.StatusInternalServerError {
			RecordScoreSubmission("error")
		} else {
			RecordScoreSubmission("rejected")
		}
		writeError(w, err.Error(), status)
		return
	}

	RecordScoreSubmission("ok")
	writeJSONStatus(w, map[string]any{
		"name":  strings.TrimSpace(req.Name),
		"score": s.Snapshot().Score,
		"rank":  rank,
	}, http.StatusCreated)
}

func scoreErrorStatus(err error) int {
	switch {
	case errors.Is(err, highscore.ErrEmptyName), errors.Is(err, highscore.ErrNameTooLong):
		return http.StatusBadRequest
	case errors.Is(err, highscore.ErrNameTaken),
		errors.Is(err, highscore.ErrScoreTooLow),
		errors.Is(err, session.ErrGameNotOver),
		errors.Is(err, session.ErrAlreadySubmitted):
		return http.StatusConflict
	case errors.Is(err, session.ErrHighScoresOffline):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *routerHandlers) handleGetHighScores(w http.ResponseWriter, r *http.Request) {
	if h.scores == nil {
		writeError(w, session.ErrHighScoresOffline.Error(), http.StatusServiceUnavailable)
		return
	}

	entries, err := h.scores.Top(r.Context())
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []highscore.Entry{}
	}

	writeJSON(w, map[string]any{
		"entries":  entries,
		"capacity": h.scores.Capacity(),
		"minScore": h.scores.MinScore(),
	})
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"sessions":  h.sessions.Stats(),
		"rateLimit": h.rateLimiter.Stats(),
	}

	if h.scores != nil {
		if best, err := h.scores.Best(r.Context()); err == nil {
			stats["bestScore"] = best
		}
	}
	if h.events != nil {
		el := h.events.Stats()
		UpdateEventLogStats(el)
		stats["eventLog"] = el
	}
	if h.hub != nil {
		stats["websocketClients"] = h.hub.ClientCount()
	}

	writeJSON(w, stats)
}

func (h *routerHandlers) handleListCommands(w http.ResponseWriter, r *http.Request) {
	commands := make(map[string]string, len(input.SupportedCommands))
	for word, cmd := range input.SupportedCommands {
		commands[word] = cmd.String()
	}
	keys := make(map[string]string, len(input.KeyBindings))
	for key, cmd := range input.KeyBindings {
		keys[key] = cmd.String()
	}
	writeJSON(w, map[string]any{
		"commands": commands,
		"keys":     keys,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, data, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSONStatus(w, map[string]string{"error": message}, code)
}
