package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mfalcone/study-assistant/rag"
	"github.com/mfalcone/study-assistant/store"
)

type chatRequest struct {
	Message     string  `json:"message"`
	SessionID   int64   `json:"session_id,omitempty"`
	DocumentIDs []int64 `json:"document_ids,omitempty"`
	MaxSources  int     `json:"max_sources,omitempty"`
}

type sourceView struct {
	DocumentID     int64        `json:"document_id"`
	Title          string       `json:"title"`
	RelevanceScore float64      `json:"relevance_score"`
	Preview        string       `json:"preview"`
	Insight        *insightView `json:"insight,omitempty"`
}

type insightView struct {
	ChunkCount int           `json:"chunk_count"`
	Topics     []string      `json:"topics,omitempty"`
	Related    []relatedView `json:"related_documents,omitempty"`
}

type relatedView struct {
	DocumentID int64  `json:"document_id"`
	Title      string `json:"title"`
	Topic      string `json:"topic,omitempty"`
}

type chatResponse struct {
	SessionID   int64        `json:"session_id"`
	Answer      string       `json:"answer"`
	Sources     []sourceView `json:"sources"`
	ContextUsed bool         `json:"context_used"`
}

type sessionView struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageView struct {
	ID        int64           `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Sources   json.RawMessage `json:"sources,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toSourceViews(sources []rag.Source) []sourceView {
	views := make([]sourceView, len(sources))
	for i, src := range sources {
		view := sourceView{
			DocumentID:     src.DocumentID,
			Title:          src.Title,
			RelevanceScore: src.RelevanceScore,
			Preview:        src.Preview,
		}
		if src.Insight != nil {
			insight := &insightView{
				ChunkCount: src.Insight.ChunkCount,
				Topics:     src.Insight.Topics,
			}
			for _, rel := range src.Insight.Related {
				insight.Related = append(insight.Related, relatedView{
					DocumentID: rel.DocumentID,
					Title:      rel.Title,
					Topic:      rel.Topic,
				})
			}
			view.Insight = insight
		}
		views[i] = view
	}
	return views
}

func toSessionView(s store.ChatSession) sessionView {
	return sessionView{ID: s.ID, Title: s.Title, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
}

// handleChat persists the user turn, runs retrieval-augmented generation,
// and persists the assistant turn with its sources. Prior turns are not
// threaded into the generation call.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ownerID := requestUserID(r)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		s.respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	session, err := s.resolveSession(r, ownerID, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("resolve session", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	if _, err := s.chats.AddMessage(r.Context(), session.ID, "user", req.Message, nil); err != nil {
		s.logger.Error("store user message", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	response, err := s.rag.Answer(r.Context(), req.Message, ownerID, req.DocumentIDs, req.MaxSources)
	if err != nil {
		var genErr *rag.GenerationError
		if errors.As(err, &genErr) {
			s.logger.Warn("generation failed", zap.Int64("session_id", session.ID), zap.Error(err))
			s.respondError(w, http.StatusBadRequest, "could not generate a response, please try again or rephrase")
			return
		}
		s.logger.Error("chat failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	sourceViews := toSourceViews(response.Sources)
	sourcesJSON, err := json.Marshal(sourceViews)
	if err != nil {
		sourcesJSON = nil
	}
	if _, err := s.chats.AddMessage(r.Context(), session.ID, "assistant", response.Answer, sourcesJSON); err != nil {
		s.logger.Error("store assistant message", zap.Error(err))
	}

	s.respondJSON(w, http.StatusOK, chatResponse{
		SessionID:   session.ID,
		Answer:      response.Answer,
		Sources:     sourceViews,
		ContextUsed: response.ContextUsed,
	})
}

// resolveSession loads the requested session or creates one titled after
// the first message.
func (s *Server) resolveSession(r *http.Request, ownerID int64, req chatRequest) (store.ChatSession, error) {
	if req.SessionID != 0 {
		return s.chats.GetSession(r.Context(), ownerID, req.SessionID)
	}
	title := req.Message
	if len(title) > 60 {
		cut := 60
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	return s.chats.CreateSession(r.Context(), ownerID, title)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	// Body is optional; an empty title gets the store default.
	_ = json.NewDecoder(r.Body).Decode(&req)

	session, err := s.chats.CreateSession(r.Context(), requestUserID(r), strings.TrimSpace(req.Title))
	if err != nil {
		s.logger.Error("create session", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	s.respondJSON(w, http.StatusCreated, toSessionView(session))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.chats.ListSessions(r.Context(), requestUserID(r))
	if err != nil {
		s.logger.Error("list sessions", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	views := make([]sessionView, len(sessions))
	for i, session := range sessions {
		views[i] = toSessionView(session)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, toSessionView(session))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	messages, err := s.chats.ListMessages(r.Context(), session.ID)
	if err != nil {
		s.logger.Error("list messages", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	views := make([]messageView, len(messages))
	for i, msg := range messages {
		views[i] = messageView{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			Sources:   msg.Sources,
			CreatedAt: msg.CreatedAt,
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"session_id": session.ID, "messages": views})
}

func (s *Server) sessionFromRequest(w http.ResponseWriter, r *http.Request) (store.ChatSession, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid session id")
		return store.ChatSession{}, false
	}
	session, err := s.chats.GetSession(r.Context(), requestUserID(r), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "session not found")
			return store.ChatSession{}, false
		}
		s.logger.Error("get session", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to load session")
		return store.ChatSession{}, false
	}
	return session, true
}
