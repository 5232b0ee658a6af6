// Package api exposes the study assistant over HTTP: auth, document
// management, chat, and quiz generation. Every data route is scoped to the
// authenticated user.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mfalcone/study-assistant/auth"
	"github.com/mfalcone/study-assistant/config"
	"github.com/mfalcone/study-assistant/ingestion"
	"github.com/mfalcone/study-assistant/knowledge"
	"github.com/mfalcone/study-assistant/llm"
	"github.com/mfalcone/study-assistant/rag"
	"github.com/mfalcone/study-assistant/store"
	"github.com/mfalcone/study-assistant/vectorstore"
)

// Server wires the repositories, the ingestion pipeline, and the RAG
// service into an HTTP API. graph may be nil when neo4j is not configured.
type Server struct {
	users    *store.Users
	docs     *store.Documents
	chats    *store.Chats
	vectors  vectorstore.Store
	rag      *rag.Service
	pipeline *ingestion.Pipeline
	graph    *knowledge.GraphStore
	llm      llm.Client
	tokens   *auth.TokenIssuer
	cfg      config.Config
	logger   *zap.Logger
	server   *http.Server
}

func NewServer(
	users *store.Users,
	docs *store.Documents,
	chats *store.Chats,
	vectors vectorstore.Store,
	ragService *rag.Service,
	pipeline *ingestion.Pipeline,
	graph *knowledge.GraphStore,
	llmClient llm.Client,
	tokens *auth.TokenIssuer,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		users:    users,
		docs:     docs,
		chats:    chats,
		vectors:  vectors,
		rag:      ragService,
		pipeline: pipeline,
		graph:    graph,
		llm:      llmClient,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger,
	}
}

// Router builds the route tree. Exposed separately from Start so tests can
// drive it with httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/auth/me", s.handleMe)

			r.Route("/documents", func(r chi.Router) {
				r.Post("/", s.handleUploadDocument)
				r.Get("/", s.handleListDocuments)
				r.Get("/{id}", s.handleGetDocument)
				r.Patch("/{id}", s.handleRenameDocument)
				r.Delete("/{id}", s.handleDeleteDocument)
				r.Get("/{id}/chunks", s.handleListChunks)
				r.Post("/{id}/quiz", s.handleGenerateQuiz)
			})

			r.Route("/chat", func(r chi.Router) {
				r.Post("/", s.handleChat)
				r.Post("/sessions", s.handleCreateSession)
				r.Get("/sessions", s.handleListSessions)
				r.Get("/sessions/{id}", s.handleGetSession)
				r.Get("/sessions/{id}/messages", s.handleListMessages)
			})
		})
	})

	return r
}

// Start serves the API and blocks until the listener stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Router(),
	}
	s.logger.Info("starting server", zap.String("addr", s.cfg.ListenAddr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
