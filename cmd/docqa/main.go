package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/db"
	"github.com/xxxsen/docqa/internal/embedcache"
	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/handler"
	"github.com/xxxsen/docqa/internal/job"
	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/rag"
	"github.com/xxxsen/docqa/internal/repo"
	"github.com/xxxsen/docqa/internal/schedule"
	"github.com/xxxsen/docqa/internal/service"
	"github.com/xxxsen/docqa/internal/vectorindex"
)

func main() {
	var configPath string
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "document question answering server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load env file: %w", err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the config")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docqa server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			conn, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runServer(ctx, cfg, conn)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			conn, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			if cfg.VectorIndex.Type == "pgvector" {
				if _, err := vectorindex.NewPGVector(ctx, conn, cfg.RAG.Dimension); err != nil {
					return fmt.Errorf("init vector index: %w", err)
				}
			}
			logutil.GetLogger(ctx).Info("migrations applied")
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return conn, nil
}

func buildIndex(ctx context.Context, cfg *config.Config, conn *sql.DB) (vectorindex.Index, error) {
	if cfg.VectorIndex.Type == "memory" {
		logutil.GetLogger(ctx).Warn("using in-memory vector index, vectors are lost on restart")
		return vectorindex.NewMemory(cfg.RAG.Dimension), nil
	}
	return vectorindex.NewPGVector(ctx, conn, cfg.RAG.Dimension)
}

func buildEmbedding(cfg *config.Config, cacheRepo *repo.EmbeddingCacheRepo) (*ai.EmbeddingService, error) {
	embedder, err := ai.BuildEmbedder(cfg.AI, cfg.RAG.Dimension)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	if cfg.AI.DBCache {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.CacheSize, time.Duration(cfg.AI.CacheTTLMinutes)*time.Minute)
	return ai.NewEmbeddingService(embedder, ai.NewRetryPolicy(cfg.AI.EmbedRetry), ai.EmbeddingConfig{
		Dimension:     cfg.RAG.Dimension,
		MaxInputChars: cfg.RAG.EmbedMaxInputChars,
		Concurrency:   cfg.AI.EmbedConcurrency,
	}), nil
}

func buildManager(cfg *config.Config) (*ai.Manager, error) {
	completer, err := ai.BuildGenerator(cfg.AI, cfg.AI.Completion)
	if err != nil {
		return nil, fmt.Errorf("init completion models: %w", err)
	}
	summarizer, err := ai.BuildGenerator(cfg.AI, cfg.AI.Summary)
	if err != nil {
		return nil, fmt.Errorf("init summary models: %w", err)
	}
	manager := ai.NewManager(completer, summarizer, ai.NewRetryPolicy(cfg.AI.CompleteRetry), ai.ManagerConfig{
		MaxInputChars: cfg.AI.MaxInputChars,
	})
	if !manager.Available() {
		logutil.GetLogger(context.Background()).Warn("no completion model configured, answers will be degraded")
	}
	return manager, nil
}

func runServer(ctx context.Context, cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(ctx).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_index", cfg.VectorIndex.Type),
		zap.String("file_store", cfg.FileStore.Type),
		zap.Int("dimension", cfg.RAG.Dimension),
	)

	docRepo := repo.NewDocumentRepo(conn)
	chunkRepo := repo.NewChunkRepo(conn)
	sessionRepo := repo.NewSessionRepo(conn)
	conversationRepo := repo.NewConversationRepo(conn)
	messageRepo := repo.NewMessageRepo(conn)
	queryLogRepo := repo.NewQueryLogRepo(conn)
	embeddingCacheRepo := repo.NewEmbeddingCacheRepo(conn)

	index, err := buildIndex(ctx, cfg, conn)
	if err != nil {
		return fmt.Errorf("init vector index: %w", err)
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	embedding, err := buildEmbedding(cfg, embeddingCacheRepo)
	if err != nil {
		return err
	}
	manager, err := buildManager(cfg)
	if err != nil {
		return err
	}

	retriever := rag.NewRetriever(embedding, index, rag.RetrieverConfig{
		TopK:                cfg.RAG.TopK,
		MinScore:            cfg.RAG.MinScore,
		CandidateMultiplier: cfg.RAG.CandidateMultiplier,
	})
	synthesizer := rag.NewSynthesizer(manager, rag.SynthesizerConfig{HistoryMessages: cfg.RAG.HistoryMessages})

	ingestTimeout := time.Duration(cfg.Ingest.TimeoutMinutes) * time.Minute
	ingestService := service.NewIngestService(docRepo, chunkRepo, index, embedding, manager, store, service.IngestConfig{
		Workers:           cfg.Ingest.Workers,
		QueueSize:         cfg.Ingest.QueueSize,
		Timeout:           ingestTimeout,
		ChunkSize:         cfg.RAG.ChunkSize,
		ChunkOverlap:      cfg.RAG.ChunkOverlap,
		MaxFileSize:       cfg.Upload.MaxFileSize,
		KeepFileThreshold: cfg.Upload.KeepFileThreshold,
		StaleAfter:        time.Duration(cfg.Jobs.StaleProcessingMinutes) * time.Minute,
	})
	documentService := service.NewDocumentService(docRepo, chunkRepo, index, store)
	chatService := service.NewChatService(conversationRepo, messageRepo, queryLogRepo, retriever, synthesizer, service.ChatConfig{
		HistoryMessages: cfg.RAG.HistoryMessages,
	})
	sessionService := service.NewSessionService(sessionRepo, docRepo, chunkRepo, conversationRepo, messageRepo, queryLogRepo, index, store)

	ingestService.Start(ctx)
	defer ingestService.Stop()

	scheduler := schedule.NewCronScheduler()
	staleJob := job.NewStaleIngestJob(ingestService)
	jobs := []struct {
		job  schedule.Job
		spec string
	}{
		{job.NewSessionRetentionJob(sessionService, cfg.Jobs.RetentionDays), cfg.Jobs.RetentionSpec},
		{job.NewEmbeddingCacheCleanupJob(embeddingCacheRepo, cfg.Jobs.EmbeddingCacheMaxDays), cfg.Jobs.EmbeddingCacheSpec},
		{staleJob, cfg.Jobs.StaleIngestSpec},
	}
	for _, item := range jobs {
		if err := scheduler.AddJob(item.job, item.spec); err != nil {
			return fmt.Errorf("schedule %s: %w", item.job.Name(), err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()
	if err := scheduler.Trigger(staleJob.Name()); err != nil {
		return err
	}

	deps := handler.RouterDeps{
		Documents:     handler.NewDocumentHandler(ingestService, documentService, cfg.Upload.MaxFileSize),
		Conversations: handler.NewConversationHandler(chatService),
		Sessions:      handler.NewSessionHandler(sessionService),
		Toucher:       sessionService,
		AskRateLimit:  time.Duration(cfg.AskRateLimitSeconds) * time.Second,
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORS),
			gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/ask/stream$`})),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
