// Package chunker splits extracted document text into overlapping,
// sentence-aligned chunks suitable for embedding and retrieval.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrInvalidArgument reports malformed chunking parameters.
var ErrInvalidArgument = errors.New("invalid chunking parameters")

// Chunk is a bounded span of one document's text. Indices are assigned in
// emission order starting at zero, with no gaps or reuse.
type Chunk struct {
	Text  string
	Index int
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	sentenceEnd   = regexp.MustCompile(`[.!?]\s`)
)

// Normalize collapses whitespace runs to a single space and trims the ends.
// It is applied once, before sentence splitting.
func Normalize(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// Split chunks text into sentence-aligned windows of at most maxSize bytes,
// seeding each new window with the last overlap bytes of the previous one.
// A single sentence longer than maxSize is never split; it becomes its own
// oversized chunk. Requires maxSize > 0 and 0 <= overlap < maxSize.
func Split(text string, maxSize, overlap int) ([]Chunk, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidArgument, maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, maxSize), got %d", ErrInvalidArgument, overlap)
	}

	sentences := splitSentences(Normalize(text))
	if len(sentences) == 0 {
		return nil, nil
	}

	chunks := make([]Chunk, 0)
	current := ""
	index := 0

	for _, sentence := range sentences {
		if current == "" {
			current = sentence
			continue
		}

		if len(current)+1+len(sentence) > maxSize {
			closed := strings.TrimSpace(current)
			chunks = append(chunks, Chunk{Text: closed, Index: index})
			index++
			current = overlapTail(closed, overlap) + " " + sentence
			continue
		}

		current += " " + sentence
	}

	if trimmed := strings.TrimSpace(current); trimmed != "" {
		chunks = append(chunks, Chunk{Text: trimmed, Index: index})
	}

	return chunks, nil
}

// splitSentences breaks normalized text at boundary punctuation followed by
// whitespace. This is a heuristic: abbreviations and decimal numbers are not
// recognized and will split early.
func splitSentences(text string) []string {
	if text == "" {
		return nil
	}

	sentences := make([]string, 0)
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		// Cut after the punctuation character, before the whitespace.
		end := loc[0] + 1
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// overlapTail returns the last overlap bytes of text, or all of it when the
// text is shorter. The cut is nudged forward to the next rune boundary so the
// tail is always valid UTF-8.
func overlapTail(text string, overlap int) string {
	if len(text) <= overlap {
		return text
	}
	start := len(text) - overlap
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	return text[start:]
}
