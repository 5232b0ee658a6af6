package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRejectsBadParameters(t *testing.T) {
	_, err := Split("some text", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Split("some text", 100, 100)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Split("some text", 100, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSplitEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n\t  \n"} {
		chunks, err := Split(input, 100, 20)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestSplitSingleSentence(t *testing.T) {
	chunks, err := Split("Just one sentence.", 100, 20)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Just one sentence.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestSplitSentenceScenario(t *testing.T) {
	const (
		maxSize = 20
		overlap = 5
	)
	chunks, err := Split("Sentence one. Sentence two. Sentence three.", maxSize, overlap)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	assert.Equal(t, "Sentence one.", chunks[0].Text)

	// Each split-born chunk starts with the tail of its predecessor, modulo
	// the boundary space that emission trims away.
	for i := 1; i < len(chunks); i++ {
		tail := strings.TrimSpace(lastBytes(chunks[i-1].Text, overlap))
		assert.True(t, strings.HasPrefix(chunks[i].Text, tail),
			"chunk %d should start with %q, got %q", i, tail, chunks[i].Text)
	}
}

func TestSplitSizeBound(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog. " +
		"Pack my box with five dozen liquor jugs! " +
		"How vexingly quick daft zebras jump? " +
		"Sphinx of black quartz, judge my vow. " +
		"The five boxing wizards jump quickly."

	const maxSize = 60
	chunks, err := Split(text, maxSize, 10)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		if len(c.Text) > maxSize {
			// Only allowed when the chunk is one oversized sentence, which
			// never happens with this input.
			t.Fatalf("chunk %d exceeds max size: %d > %d", c.Index, len(c.Text), maxSize)
		}
	}
}

func TestSplitOversizedSentenceKeptWhole(t *testing.T) {
	long := "This single sentence is far longer than the configured maximum chunk size and must not be broken apart."
	text := "Short one. " + long + " Short two."

	chunks, err := Split(text, 40, 8)
	require.NoError(t, err)

	found := false
	for _, c := range chunks {
		if strings.Contains(c.Text, long) {
			found = true
		}
	}
	assert.True(t, found, "oversized sentence should survive intact inside one chunk")
}

func TestSplitIndicesAreSequential(t *testing.T) {
	text := strings.Repeat("A reasonably sized sentence goes right here. ", 30)
	chunks, err := Split(text, 120, 25)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 3)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestSplitNoContentLoss(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon zeta! Eta theta iota? Kappa lambda mu. Nu xi omicron."
	normalized := Normalize(text)

	chunks, err := Split(text, 30, 6)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// Strip each chunk's overlap prefix and stitch the remainders back
	// together; the result must be the normalized input.
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0].Text)
	for i := 1; i < len(chunks); i++ {
		tail := strings.TrimSpace(lastBytes(chunks[i-1].Text, 6))
		rest := strings.TrimPrefix(chunks[i].Text, tail)
		rebuilt.WriteString(rest)
	}
	assert.Equal(t, normalized, rebuilt.String())
}

func lastBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "one two three", Normalize("  one\n\n two\t\tthree \n"))
	assert.Equal(t, "", Normalize(" \n \t "))
}
