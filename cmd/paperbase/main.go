package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/paperbase/paperbase/internal/agent"
	"github.com/paperbase/paperbase/internal/ai"
	"github.com/paperbase/paperbase/internal/chunker"
	"github.com/paperbase/paperbase/internal/config"
	"github.com/paperbase/paperbase/internal/extract"
	"github.com/paperbase/paperbase/internal/filestore"
	"github.com/paperbase/paperbase/internal/handler"
	"github.com/paperbase/paperbase/internal/job"
	"github.com/paperbase/paperbase/internal/middleware"
	"github.com/paperbase/paperbase/internal/repo"
	"github.com/paperbase/paperbase/internal/schedule"
	"github.com/paperbase/paperbase/internal/service"
	"github.com/paperbase/paperbase/internal/vectorstore"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "paperbase",
		Short: "paperbase pdf question answering server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run paperbase server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			db, err := repo.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := repo.ApplyMigrations(db); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, db)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, db *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_path", cfg.DBPath),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("vector_store", cfg.VectorStore.Type),
	)

	docRepo := repo.NewDocumentRepo(db)
	imageRepo := repo.NewImageRepo(db)
	chunkRepo := repo.NewChunkRepo(db)

	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	var vectors vectorstore.Store
	switch cfg.VectorStore.Type {
	case "pgvector":
		store, err := vectorstore.NewPgvectorStore(cfg.VectorStore.DSN, cfg.AI.EmbedDim)
		if err != nil {
			return fmt.Errorf("init pgvector store: %w", err)
		}
		defer store.Close()
		vectors = store
	default:
		vectors = vectorstore.NewSqliteStore(chunkRepo)
	}

	provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	callTimeout := time.Duration(cfg.AI.TimeoutSecs) * time.Second
	describer := ai.NewDescriber(provider, cfg.AI.VisionModel,
		cfg.Ingest.DescribeWorkers, cfg.Ingest.MaxRetries, callTimeout)
	embedder := ai.NewEmbedder(provider, cfg.AI.EmbedModel, cfg.AI.EmbedDim,
		cfg.Ingest.EmbedBatchSize, cfg.Ingest.MaxRetries, callTimeout)

	ingestService := service.NewIngestService(service.IngestDeps{
		Documents: docRepo,
		Images:    imageRepo,
		Files:     files,
		Vectors:   vectors,
		Extractor: extract.NewPDFExtractor(cfg.Ingest.MinImageBytes),
		Describer: describer,
		Embedder:  embedder,
		Chunker: chunker.New(chunker.Config{
			MaxTokens:        cfg.Ingest.ChunkTokens,
			Overlap:          cfg.Ingest.ChunkOverlap,
			BoundaryLookback: cfg.Ingest.BoundaryLookback,
		}),
	})
	documentService := service.NewDocumentService(docRepo, files, ingestService)
	runner := agent.NewSubprocessAgent(cfg.Agent.Command, cfg.Agent.Args,
		time.Duration(cfg.Agent.TimeoutSecs)*time.Second)
	answerService := service.NewAnswerService(docRepo, embedder, vectors, runner, cfg.Ingest.SearchTopK)

	deps := handler.RouterDeps{
		Documents:  handler.NewDocumentHandler(documentService),
		Ask:        handler.NewAskHandler(answerService),
		RateWindow: time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			// SSE must not pass through the gzip buffer.
			gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`.*/ask$`})),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaper := job.NewReaperJob(docRepo, ingestService)
	if err := reaper.Run(ctx); err != nil {
		logutil.GetLogger(ctx).Error("startup reap failed", zap.Error(err))
	}
	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(reaper, cfg.ReaperCron); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
