package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfalcone/study-assistant/auth"
	"github.com/mfalcone/study-assistant/config"
	"github.com/mfalcone/study-assistant/rag"
)

func newTestServer() *Server {
	return NewServer(nil, nil, nil, nil, nil, nil, nil, nil,
		auth.NewTokenIssuer("test-secret", time.Hour),
		config.Config{ListenAddr: ":0"},
		nil)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	srv := newTestServer()
	router := srv.Router()

	for _, path := range []string{"/api/auth/me", "/api/documents/", "/api/chat/sessions"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestProtectedRoutesRejectBadToken(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParseQuizQuestions(t *testing.T) {
	raw := `{"questions":[{"question":"What is 2+2?","options":["3","4","5","6"],"correct_answer":1,"explanation":"Basic arithmetic."}]}`

	questions, err := parseQuizQuestions(raw)

	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "What is 2+2?", questions[0].Question)
	assert.Equal(t, 1, questions[0].CorrectAnswer)
}

func TestParseQuizQuestionsStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"questions\":[{\"question\":\"Q\",\"options\":[\"a\",\"b\"],\"correct_answer\":0,\"explanation\":\"e\"}]}\n```"

	questions, err := parseQuizQuestions(raw)

	require.NoError(t, err)
	assert.Len(t, questions, 1)
}

func TestParseQuizQuestionsRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":         "here are your questions!",
		"empty list":       `{"questions":[]}`,
		"missing question": `{"questions":[{"options":["a","b"],"correct_answer":0}]}`,
		"answer oob":       `{"questions":[{"question":"Q","options":["a","b"],"correct_answer":5}]}`,
	}
	for name, raw := range cases {
		_, err := parseQuizQuestions(raw)
		assert.Error(t, err, name)
	}
}

func TestToSourceViews(t *testing.T) {
	sources := []rag.Source{
		{
			DocumentID:     1,
			Title:          "Biology Notes",
			RelevanceScore: 0.91,
			Preview:        "Plants convert light...",
			Insight: &rag.Insight{
				ChunkCount: 4,
				Topics:     []string{"Photosynthesis"},
				Related:    []rag.RelatedDocument{{DocumentID: 2, Title: "Chemistry Notes", Topic: "Photosynthesis"}},
			},
		},
		{DocumentID: 3, Title: "History Notes", RelevanceScore: 0.42, Preview: "The treaty..."},
	}

	views := toSourceViews(sources)

	require.Len(t, views, 2)
	require.NotNil(t, views[0].Insight)
	assert.Equal(t, 4, views[0].Insight.ChunkCount)
	assert.Equal(t, int64(2), views[0].Insight.Related[0].DocumentID)
	assert.Nil(t, views[1].Insight)
}
