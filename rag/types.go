package rag

// Source is the public-facing attribution for one retrieved chunk,
// preserved in retrieval order. Preview is a display-only truncation; it is
// never applied before similarity scoring.
type Source struct {
	DocumentID     int64
	Title          string
	RelevanceScore float64
	Preview        string
	Insight        *Insight
}

// Insight is optional knowledge-graph enrichment for a source document.
type Insight struct {
	ChunkCount int
	Topics     []string
	Related    []RelatedDocument
}

// RelatedDocument is another document of the same owner connected to a
// source through the knowledge graph.
type RelatedDocument struct {
	DocumentID int64
	Title      string
	Topic      string
}

// Response is the answer to one query. ContextUsed reports whether any
// retrieved content conditioned the generation.
type Response struct {
	Answer      string
	Sources     []Source
	ContextUsed bool
}
