package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mfalcone/study-assistant/ingestion"
	"github.com/mfalcone/study-assistant/store"
)

const maxUploadBytes = 50 << 20

type documentView struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Filename  string    `json:"filename"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
	Summary   string    `json:"summary,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDocumentView(d store.Document) documentView {
	return documentView{
		ID:        d.ID,
		Title:     d.Title,
		Filename:  d.Filename,
		FileType:  d.FileType,
		FileSize:  d.FileSize,
		Summary:   d.Summary,
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	ownerID := requestUserID(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form or file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	fileType := ingestion.DetectFileType(filename)
	if !ingestion.AllowedFileTypes[fileType] {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", fileType))
		return
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		s.logger.Error("create upload dir", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	destPath := filepath.Join(s.cfg.UploadDir, fmt.Sprintf("%d_%s", ownerID, filename))
	dest, err := os.Create(destPath)
	if err != nil {
		s.logger.Error("create upload file", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	size, err := io.Copy(dest, file)
	dest.Close()
	if err != nil {
		os.Remove(destPath)
		s.logger.Error("write upload file", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(filename, fileType)
	}

	doc, err := s.docs.Create(r.Context(), store.Document{
		OwnerID:  ownerID,
		Title:    title,
		Filename: filename,
		FilePath: destPath,
		FileType: fileType,
		FileSize: size,
		Status:   store.StatusPending,
	})
	if err != nil {
		os.Remove(destPath)
		s.logger.Error("create document", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	// Ingestion runs detached from the request; the document row reports
	// progress through its status.
	go func(doc store.Document) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := s.pipeline.ProcessDocument(ctx, doc); err != nil {
			s.logger.Error("ingestion failed",
				zap.Int64("document_id", doc.ID),
				zap.Error(err))
		}
	}(doc)

	s.respondJSON(w, http.StatusCreated, toDocumentView(doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	docs, err := s.docs.List(r.Context(), requestUserID(r), offset, limit)
	if err != nil {
		s.logger.Error("list documents", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	views := make([]documentView, len(docs))
	for i, d := range docs {
		views[i] = toDocumentView(d)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": views})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.documentFromRequest(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, toDocumentView(doc))
}

func (s *Server) handleRenameDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		s.respondError(w, http.StatusBadRequest, "title is required")
		return
	}

	doc, err := s.docs.Rename(r.Context(), requestUserID(r), id, strings.TrimSpace(req.Title))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("rename document", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "rename failed")
		return
	}
	s.respondJSON(w, http.StatusOK, toDocumentView(doc))
}

// handleDeleteDocument removes the row (chunk rows cascade), the vectors,
// the graph node, and the stored file.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	ownerID := requestUserID(r)
	doc, ok := s.documentFromRequest(w, r)
	if !ok {
		return
	}

	if err := s.docs.Delete(r.Context(), ownerID, doc.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("delete document", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "delete failed")
		return
	}

	if err := s.vectors.DeleteByDocument(r.Context(), ownerID, doc.ID); err != nil {
		s.logger.Error("delete document vectors", zap.Int64("document_id", doc.ID), zap.Error(err))
	}
	if s.graph != nil {
		if err := s.graph.DeleteDocument(r.Context(), doc.ID); err != nil {
			s.logger.Warn("delete document graph node", zap.Int64("document_id", doc.ID), zap.Error(err))
		}
	}
	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove uploaded file", zap.String("path", doc.FilePath), zap.Error(err))
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.documentFromRequest(w, r)
	if !ok {
		return
	}

	chunks, err := s.docs.ListChunks(r.Context(), doc.ID)
	if err != nil {
		s.logger.Error("list chunks", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list chunks")
		return
	}

	type chunkView struct {
		ID    string `json:"id"`
		Index int    `json:"index"`
		Text  string `json:"text"`
	}
	views := make([]chunkView, len(chunks))
	for i, c := range chunks {
		views[i] = chunkView{ID: c.ID.String(), Index: c.Index, Text: c.Text}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"document_id": doc.ID, "chunks": views})
}

// documentFromRequest resolves the {id} route param to a document owned by
// the requester, writing the error response itself on failure.
func (s *Server) documentFromRequest(w http.ResponseWriter, r *http.Request) (store.Document, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid document id")
		return store.Document{}, false
	}
	doc, err := s.docs.Get(r.Context(), requestUserID(r), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return store.Document{}, false
		}
		s.logger.Error("get document", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to load document")
		return store.Document{}, false
	}
	return doc, true
}
