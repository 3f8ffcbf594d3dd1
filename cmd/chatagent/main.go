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

	"github.com/dsetyadi/chatagent/internal/ai"
	"github.com/dsetyadi/chatagent/internal/chunker"
	"github.com/dsetyadi/chatagent/internal/config"
	"github.com/dsetyadi/chatagent/internal/db"
	"github.com/dsetyadi/chatagent/internal/embedding"
	"github.com/dsetyadi/chatagent/internal/extract"
	"github.com/dsetyadi/chatagent/internal/filestore"
	"github.com/dsetyadi/chatagent/internal/handler"
	"github.com/dsetyadi/chatagent/internal/job"
	"github.com/dsetyadi/chatagent/internal/middleware"
	"github.com/dsetyadi/chatagent/internal/repo"
	"github.com/dsetyadi/chatagent/internal/schedule"
	"github.com/dsetyadi/chatagent/internal/service"
	"github.com/dsetyadi/chatagent/internal/token"
	"github.com/dsetyadi/chatagent/internal/usagestats"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatagent",
		Short: "document knowledge base with retrieval-augmented chat",
	}
	rootCmd.AddCommand(newRunCmd(), newUsageCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the api server",
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

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	return cmd
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("embedding_model", cfg.AI.EmbeddingModel),
		zap.String("chat_model", cfg.AI.ChatModel),
		zap.String("file_store", cfg.FileStore.Type),
	)

	docRepo := repo.NewDocumentRepo(conn)
	chunkRepo := repo.NewChunkRepo(conn)

	tokenizer, err := token.NewTokenizer(cfg.AI.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("init tokenizer: %w", err)
	}
	split, err := chunker.New(tokenizer, cfg.RAG.MaxTokensPerChunk, cfg.RAG.OverlapTokens)
	if err != nil {
		return fmt.Errorf("init chunker: %w", err)
	}

	embedProvider, err := ai.NewEmbedProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init embed provider: %w", err)
	}
	chatProvider, err := ai.NewChatProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init chat provider: %w", err)
	}
	embedClient := embedding.NewClient(embedProvider, tokenizer, cfg.AI.EmbeddingModel, embedding.Pricing{
		PerThousandTokens:  cfg.RAG.Pricing.PerThousandTokens,
		DefaultPerThousand: cfg.RAG.Pricing.DefaultPerThousand,
	})

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	documentService := service.NewDocumentService(docRepo, chunkRepo, split, embedClient, store, extract.New())
	searchService := service.NewSearchService(embedClient, chunkRepo, cfg.RAG.DefaultTopK, cfg.RAG.MaxContextLength)
	ragService := service.NewRAGService(searchService, chatProvider, cfg.AI.ChatModel,
		cfg.RAG.SystemPrompt, cfg.RAG.UserPromptTemplate, timeout)
	backfillService := service.NewBackfillService(chunkRepo, embedClient, cfg.Jobs.BackfillPageSize)

	deps := handler.RouterDeps{
		Documents:  handler.NewDocumentHandler(documentService),
		Chat:       handler.NewChatHandler(ragService, searchService),
		ChatWindow: time.Duration(cfg.ChatRateLimitSeconds) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingBackfillJob(backfillService), cfg.Jobs.EmbeddingBackfillCron); err != nil {
		return fmt.Errorf("schedule backfill: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening",
		zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func newUsageCmd() *cobra.Command {
	var (
		logPath string
		days    int
		csvPath string
	)
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "summarize embedding usage and cost from server logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if logPath == "" {
				return fmt.Errorf("--log is required")
			}
			f, err := os.Open(logPath)
			if err != nil {
				return err
			}
			defer f.Close()
			entries, err := usagestats.Parse(f)
			if err != nil {
				return err
			}
			var since time.Time
			if days > 0 {
				since = time.Now().AddDate(0, 0, -days)
			}
			usagestats.Render(os.Stdout, usagestats.Analyze(entries, since))
			if csvPath != "" {
				out, err := os.Create(csvPath)
				if err != nil {
					return err
				}
				defer out.Close()
				if err := usagestats.WriteCSV(out, entries); err != nil {
					return err
				}
				fmt.Printf("\nraw records exported to %s\n", csvPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "path to server log file")
	cmd.Flags().IntVar(&days, "days", 30, "only include the last N days (0 = all)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "also export raw records to this csv file")
	return cmd
}
