package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/agent"
	"github.com/odvcencio/repcoach/pkg/memory"
)

// CreateSessionRequest starts a conversation.
type CreateSessionRequest struct {
	UserID string `json:"user_id"`
}

// SessionResponse describes a session.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
}

// MessageRequest is one user message. Stream switches the response to SSE.
type MessageRequest struct {
	Message string `json:"message"`
	Stream  bool   `json:"stream,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if status, err := decodeJSONBody(w, r, &req, true); err != nil {
		writeError(w, status, err)
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = "anonymous"
	}

	sess, err := s.coach.StartSession(r.Context(), userID)
	if err != nil {
		s.logger.Error("start session failed", zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{SessionID: sess.ID, UserID: sess.UserID})
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req MessageRequest
	if status, err := decodeJSONBody(w, r, &req, false); err != nil {
		writeError(w, status, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, errors.New("message is required"))
		return
	}

	if req.Stream || r.URL.Query().Get("stream") == "true" || acceptsEventStream(r) {
		s.streamReply(w, r, sess, req.Message)
		return
	}

	reply, err := s.coach.ProcessMessage(r.Context(), sess, req.Message)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	msgs, err := s.coach.History(r.Context(), sess.ID, limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"messages":   msgs,
		"count":      len(msgs),
	})
}

func (s *Server) handleGetWorkout(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	wo, ok := s.coach.CurrentWorkout(sess.ID)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no active workout"))
		return
	}
	writeJSON(w, http.StatusOK, wo)
}

func (s *Server) handleQuickAction(w http.ResponseWriter, r *http.Request) {
	var req agent.QuickActionRequest
	if status, err := decodeJSONBody(w, r, &req, false); err != nil {
		writeError(w, status, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("message and user_id are required"))
		return
	}
	if req.SessionID != "" {
		if _, err := s.coach.Resume(r.Context(), req.SessionID, req.UserID); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.coach.QuickAction(r.Context(), req))
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools := s.coach.Tools()
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools, "count": len(tools)})
}

// session resolves the {sessionID} route parameter, writing the error
// response itself when the session is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*memory.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, errors.New("session id is required"))
		return nil, false
	}
	sess, err := s.coach.Resume(r.Context(), id, "")
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return sess, true
}

func acceptsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
