// Package knowledge maintains a neo4j graph of each user's documents and
// topics, used to enrich chat sources with related study material.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mfalcone/study-assistant/rag"
)

// Document is one graph node's worth of document metadata.
type Document struct {
	ID         int64
	OwnerID    int64
	Title      string
	ChunkCount int
	Topics     []string
}

type GraphStore struct {
	driver neo4j.DriverWithContext
}

func NewGraphStore(driver neo4j.DriverWithContext) *GraphStore {
	return &GraphStore{driver: driver}
}

// SyncDocument upserts a document node, its owner scope, and its topic
// relations, replacing any previous topics.
func (g *GraphStore) SyncDocument(ctx context.Context, doc Document) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (d:Document {id: $id})
			SET d.owner_id = $owner_id,
			    d.title = $title,
			    d.chunk_count = $chunk_count,
			    d.updated_at = datetime()
		`, map[string]any{
			"id":          doc.ID,
			"owner_id":    doc.OwnerID,
			"title":       doc.Title,
			"chunk_count": doc.ChunkCount,
		}); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {id: $id})-[r:HAS_TOPIC]->(:Topic)
			DELETE r
		`, map[string]any{"id": doc.ID}); err != nil {
			return nil, fmt.Errorf("clear existing topics: %w", err)
		}

		for _, topic := range doc.Topics {
			if topic == "" {
				continue
			}
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $id})
				MERGE (t:Topic {name: $name})
				MERGE (d)-[:HAS_TOPIC]->(t)
			`, map[string]any{"id": doc.ID, "name": topic}); err != nil {
				return nil, fmt.Errorf("upsert topic: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

// DeleteDocument removes a document node and any topics left orphaned.
func (g *GraphStore) DeleteDocument(ctx context.Context, documentID int64) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	queries := []string{
		"MATCH (d:Document {id: $id}) DETACH DELETE d",
		"MATCH (t:Topic) WHERE NOT (t)<-[:HAS_TOPIC]-(:Document) DELETE t",
	}
	for _, query := range queries {
		result, err := session.Run(ctx, query, map[string]any{"id": documentID})
		if err != nil {
			return fmt.Errorf("delete document node: %w", err)
		}
		if _, err := result.Consume(ctx); err != nil {
			return fmt.Errorf("delete document node: %w", err)
		}
	}
	return nil
}

// DeleteOwner removes every document node belonging to ownerID.
func (g *GraphStore) DeleteOwner(ctx context.Context, ownerID int64) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		"MATCH (d:Document {owner_id: $owner_id}) DETACH DELETE d",
		map[string]any{"owner_id": ownerID})
	if err != nil {
		return fmt.Errorf("delete owner documents: %w", err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("delete owner documents: %w", err)
	}
	return nil
}

// DocumentInsights returns chunk counts, topics, and related documents
// (same owner, shared topic) for the given documents.
func (g *GraphStore) DocumentInsights(ctx context.Context, ownerID int64, documentIDs []int64) (map[int64]rag.Insight, error) {
	if g.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(documentIDs) == 0 {
		return map[int64]rag.Insight{}, nil
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Document)
		WHERE d.id IN $ids AND d.owner_id = $owner_id
		OPTIONAL MATCH (d)-[:HAS_TOPIC]->(t:Topic)
		OPTIONAL MATCH (t)<-[:HAS_TOPIC]-(related:Document)
		WHERE related.id <> d.id AND related.owner_id = $owner_id
		WITH d,
		     collect(DISTINCT t.name) AS topicNames,
		     collect(DISTINCT {id: related.id, title: related.title, topic: t.name}) AS relatedRows
		RETURN d.id AS id,
		       d.chunk_count AS chunkCount,
		       [t IN topicNames WHERE t IS NOT NULL] AS topics,
		       [r IN relatedRows WHERE r.id IS NOT NULL] AS related
	`, map[string]any{"ids": documentIDs, "owner_id": ownerID})
	if err != nil {
		return nil, fmt.Errorf("run insights query: %w", err)
	}

	insights := make(map[int64]rag.Insight, len(documentIDs))
	for result.Next(ctx) {
		record := result.Record()
		idVal, _ := record.Get("id")
		countVal, _ := record.Get("chunkCount")
		topicsVal, _ := record.Get("topics")
		relatedVal, _ := record.Get("related")

		id, ok := toInt64(idVal)
		if !ok {
			continue
		}
		count, _ := toInt64(countVal)

		insights[id] = rag.Insight{
			ChunkCount: int(count),
			Topics:     toStringSlice(topicsVal),
			Related:    toRelated(relatedVal),
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("insights result: %w", err)
	}
	return insights, nil
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func toStringSlice(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toRelated(value any) []rag.RelatedDocument {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]rag.RelatedDocument, 0, len(raw))
	for _, item := range raw {
		data, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := toInt64(data["id"])
		if !ok {
			continue
		}
		title, _ := data["title"].(string)
		topic, _ := data["topic"].(string)
		out = append(out, rag.RelatedDocument{DocumentID: id, Title: title, Topic: topic})
	}
	return out
}

var _ rag.InsightProvider = (*GraphStore)(nil)
