package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mfalcone/study-assistant/api"
	"github.com/mfalcone/study-assistant/auth"
	"github.com/mfalcone/study-assistant/config"
	"github.com/mfalcone/study-assistant/database"
	"github.com/mfalcone/study-assistant/embeddings"
	"github.com/mfalcone/study-assistant/ingestion"
	"github.com/mfalcone/study-assistant/knowledge"
	"github.com/mfalcone/study-assistant/llm"
	"github.com/mfalcone/study-assistant/rag"
	"github.com/mfalcone/study-assistant/store"
	"github.com/mfalcone/study-assistant/vectorstore"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger)
	case "migrate":
		migrateCmd(cfg, logger)
	default:
		logger.Error("unknown command", zap.String("command", os.Args[1]))
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *zap.Logger) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connection", zap.Error(err))
	}
	defer pool.Close()

	vectors := vectorstore.NewPostgresStore(pool)

	var graph *knowledge.GraphStore
	if cfg.Neo4jURI != "" {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			logger.Fatal("neo4j connection", zap.Error(err))
		}
		defer driver.Close(ctx)
		graph = knowledge.NewGraphStore(driver)
	} else {
		logger.Info("neo4j not configured, knowledge graph features disabled")
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatal("embedder setup", zap.Error(err))
	}
	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatal("llm setup", zap.Error(err))
	}

	users := store.NewUsers(pool)
	docs := store.NewDocuments(pool)
	chats := store.NewChats(pool)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)

	pipeline := ingestion.NewPipeline(docs, vectors, embedder, llmClient, graphSyncer(graph), cfg.ChunkSize, cfg.ChunkOverlap, logger)

	var insights rag.InsightProvider
	if graph != nil {
		insights = graph
	}
	ragService := rag.NewService(vectors, embedder, llmClient, insights, cfg.MaxSources, logger)

	server := api.NewServer(users, docs, chats, vectors, ragService, pipeline, graph, llmClient, tokens, cfg, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		logger.Fatal("server stopped", zap.Error(err))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func migrateCmd(cfg config.Config, logger *zap.Logger) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connection", zap.Error(err))
	}
	defer pool.Close()

	if err := store.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("relational schema", zap.Error(err))
	}
	if err := vectorstore.NewPostgresStore(pool).EnsureSchema(ctx, cfg.Embeddings.Dimension); err != nil {
		logger.Fatal("vector schema", zap.Error(err))
	}
	logger.Info("schema up to date", zap.Int("embedding_dimension", cfg.Embeddings.Dimension))
}

// graphSyncer keeps a nil *GraphStore from becoming a non-nil interface.
func graphSyncer(graph *knowledge.GraphStore) ingestion.GraphSyncer {
	if graph == nil {
		return nil
	}
	return graphAdapter{graph}
}

type graphAdapter struct {
	graph *knowledge.GraphStore
}

func (a graphAdapter) SyncDocument(ctx context.Context, doc ingestion.GraphDocument) error {
	return a.graph.SyncDocument(ctx, knowledge.Document{
		ID:         doc.ID,
		OwnerID:    doc.OwnerID,
		Title:      doc.Title,
		ChunkCount: doc.ChunkCount,
		Topics:     doc.Topics,
	})
}

func printUsage() {
	fmt.Println(`Usage: study-assistant <command>

Commands:
  serve    start the HTTP API server
  migrate  create or update the database schema`)
}
