package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mfalcone/study-assistant/store"
)

const (
	quizSystemPrompt   = "You are a quiz generator. Generate educational multiple-choice questions."
	defaultQuizSize    = 5
	maxQuizSize        = 20
	quizContentCeiling = 12000
)

type quizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

type quizPayload struct {
	Questions []quizQuestion `json:"questions"`
}

// handleGenerateQuiz asks the LLM for multiple-choice questions over a
// completed document's content and returns them as typed JSON.
func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.documentFromRequest(w, r)
	if !ok {
		return
	}
	if doc.Status != store.StatusCompleted || doc.Content == "" {
		s.respondError(w, http.StatusConflict, "document is not ready for quiz generation")
		return
	}

	var req struct {
		NumQuestions int `json:"num_questions"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.NumQuestions <= 0 {
		req.NumQuestions = defaultQuizSize
	}
	if req.NumQuestions > maxQuizSize {
		req.NumQuestions = maxQuizSize
	}

	content := doc.Content
	if len(content) > quizContentCeiling {
		content = content[:quizContentCeiling]
	}
	prompt := fmt.Sprintf(`Based on the following content, generate %d multiple-choice questions with 4 options each.
Format as JSON with this structure:
{
  "questions": [
    {
      "question": "Question text",
      "options": ["A", "B", "C", "D"],
      "correct_answer": 0,
      "explanation": "Why this is correct"
    }
  ]
}

Content: %s`, req.NumQuestions, content)

	raw, err := s.llm.Generate(r.Context(), quizSystemPrompt, prompt)
	if err != nil {
		s.logger.Error("quiz generation", zap.Int64("document_id", doc.ID), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "quiz generation failed")
		return
	}

	questions, err := parseQuizQuestions(raw)
	if err != nil {
		s.logger.Warn("quiz parse failed", zap.Int64("document_id", doc.ID), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "quiz generation returned an unusable response, please try again")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"document_id": doc.ID,
		"questions":   questions,
	})
}

// parseQuizQuestions tolerates markdown code fences around the JSON body.
func parseQuizQuestions(raw string) ([]quizQuestion, error) {
	text := strings.TrimSpace(raw)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	var payload quizPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("decode quiz response: %w", err)
	}
	if len(payload.Questions) == 0 {
		return nil, fmt.Errorf("quiz response contained no questions")
	}
	for i, q := range payload.Questions {
		if q.Question == "" || len(q.Options) == 0 {
			return nil, fmt.Errorf("question %d is incomplete", i)
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return nil, fmt.Errorf("question %d has an out-of-range answer index", i)
		}
	}
	return payload.Questions, nil
}
