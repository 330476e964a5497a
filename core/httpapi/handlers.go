package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/m3rciful/scenariobot/core/buildinfo"
	"github.com/m3rciful/scenariobot/core/chat"
	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/core/scenario"
	"github.com/m3rciful/scenariobot/core/session"
	"github.com/m3rciful/scenariobot/core/storage"
)

const maxBodyBytes = 1 << 20

type chatRequest struct {
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	Context      string `json:"context"`
	ContextSteps int    `json:"context_steps"`
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

type createScenarioRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	ScenarioData json.RawMessage `json:"scenario_data"`
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.LogEvent(r.Context(), logger.HTTP, slog.LevelWarn, "http.encode",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, r, code, errorResponse{Error: msg})
}

// fail maps domain errors onto status codes.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *scenario.ValidationError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, chat.ErrInvalidMessage), errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		logger.LogEvent(r.Context(), logger.HTTP, slog.LevelError, "http.handler",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// bot resolves {botID} and answers 400/404 itself when it cannot.
func (s *Server) bot(w http.ResponseWriter, r *http.Request) (storage.Bot, bool) {
	id, ok := pathID(r, "botID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid bot id")
		return storage.Bot{}, false
	}
	b, err := s.store.BotByID(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return storage.Bot{}, false
	}
	return b, true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Short(),
	})
}

func (s *Server) turn(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	if err := session.ValidateAPISessionID(req.SessionID); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	b, ok := s.bot(w, r)
	if !ok {
		return
	}
	reply, err := s.chat.Turn(r.Context(), chat.Request{
		BotID:        b.ID,
		SessionKey:   session.APIKey(req.SessionID),
		Message:      req.Message,
		Context:      req.Context,
		ContextSteps: req.ContextSteps,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, reply)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := session.ValidateAPISessionID(req.SessionID); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	b, ok := s.bot(w, r)
	if !ok {
		return
	}
	st, err := s.chat.Reset(r.Context(), b.ID, session.APIKey(req.SessionID))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := session.ValidateAPISessionID(sessionID); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	b, ok := s.bot(w, r)
	if !ok {
		return
	}
	st, err := s.chat.State(r.Context(), b.ID, session.APIKey(sessionID))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

func (s *Server) validateScenario(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if _, err := scenario.Parse(body); err != nil {
		writeJSON(w, r, http.StatusOK, validateResponse{Valid: false, Error: err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, validateResponse{Valid: true})
}

func (s *Server) listScenarios(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bot(w, r)
	if !ok {
		return
	}
	list, err := s.store.ListScenarios(r.Context(), b.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if list == nil {
		list = []storage.Scenario{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) createScenario(w http.ResponseWriter, r *http.Request) {
	var req createScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	b, ok := s.bot(w, r)
	if !ok {
		return
	}
	sc, err := s.store.CreateScenario(r.Context(), storage.NewScenario{
		BotID:       b.ID,
		Name:        req.Name,
		Description: req.Description,
		Data:        req.ScenarioData,
		Activate:    true,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, sc)
}

func (s *Server) steps(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bot(w, r)
	if !ok {
		return
	}
	scenarioID, ok := pathID(r, "scenarioID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid scenario id")
		return
	}
	sc, err := s.store.ScenarioByID(r.Context(), scenarioID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if sc.BotID != b.ID {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	steps, err := s.store.Steps(r.Context(), sc.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if steps == nil {
		steps = []storage.Step{}
	}
	writeJSON(w, r, http.StatusOK, steps)
}
