package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"quicktrivia/internal/app"
	"quicktrivia/internal/domain"
)

const defaultHistoryLimit = 20

type modeRequest struct {
	Mode domain.Mode `json:"mode"`
}

type answerRequest struct {
	Choice *int `json:"choice"`
}

type setupResponse struct {
	State      domain.SessionState `json:"state"`
	Categories []domain.Category   `json:"categories"`
}

type roomResponse struct {
	Room  domain.Room         `json:"room"`
	State domain.SessionState `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) home(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	playerID, ok := s.identify(w, r)
	if !ok {
		return
	}
	state, err := s.service.State(r.Context(), playerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) selectMode(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	playerID, ok := s.identify(w, r)
	if !ok {
		return
	}
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	state, err := s.service.SelectMode(r.Context(), playerID, req.Mode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// setup enters the setup screen. Category loading failures leave the
// category list empty; the setup screen stays usable with "any category".
func (s *Server) setup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	playerID, _, ok := s.gate(w, r)
	if !ok {
		return
	}
	state, err := s.service.EnterSetup(r.Context(), playerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	categories, err := s.service.Categories(r.Context())
	if err != nil {
		s.log.WithError(err).WithField("player_id", playerID).Warn("categories unavailable")
		categories = []domain.Category{}
	}
	writeJSON(w, http.StatusOK, setupResponse{State: state, Categories: categories})
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	playerID, ok := s.identify(w, r)
	if !ok {
		return
	}
	var patch domain.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	state, err := s.service.UpdateSettings(r.Context(), playerID, patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	playerID, ok := s.identify(w, r)
	if !ok {
		return
	}
	state, err := s.service.Submit(r.Context(), playerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	playerID, ok := s.identify(w, r)
	if !ok {
		return
	}
	room, state, err := s.service.JoinRoom(r.Context(), playerID, ps.ByName("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{Room: publicRoom(room), State: state})
}

func (s *Server) play(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, state, ok := s.gate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	playerID, ok := s.identify(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Choice == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "choice is required"})
		return
	}
	state, err := s.service.Answer(r.Context(), playerID, *req.Choice)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	playerID, ok := s.identify(w, r)
	if !ok {
		return
	}
	state, err := s.service.Reset(r.Context(), playerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	categories, err := s.service.Categories(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	playerID, ok := s.identify(w, r)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	results, err := s.service.History(r.Context(), playerID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if results == nil {
		results = []domain.GameResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body := map[string]interface{}{"status": "ok"}
	status := http.StatusOK
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			body["status"] = "degraded"
			body["error"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if s.live != nil {
		if n, err := s.live(r.Context()); err == nil {
			body["liveSessions"] = n
		}
	}
	writeJSON(w, status, body)
}

// identify resolves the player id, answering 401 when none can be issued.
func (s *Server) identify(w http.ResponseWriter, r *http.Request) (string, bool) {
	playerID := s.ids.PlayerID(w, r)
	if playerID == "" {
		s.writeError(w, domain.ErrIdentityUnavailable)
		return "", false
	}
	return playerID, true
}

// gate checks the route against the player's session and redirects to the
// mode select screen when it may not be shown.
func (s *Server) gate(w http.ResponseWriter, r *http.Request) (string, domain.SessionState, bool) {
	playerID, ok := s.identify(w, r)
	if !ok {
		return "", domain.SessionState{}, false
	}
	state, err := s.service.State(r.Context(), playerID)
	if err != nil {
		s.writeError(w, err)
		return "", state, false
	}
	if redirect, allowed := app.Gate(r.URL.Path, state); !allowed {
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return "", state, false
	}
	return playerID, state, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Message, Field: verr.Field})
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIdentityUnavailable):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrPoolNotReady):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidChoice):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
