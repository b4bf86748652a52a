package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/kubilitics/kubilitics-backend/internal/agent"
	"github.com/kubilitics/kubilitics-backend/internal/api/middleware"
	"github.com/kubilitics/kubilitics-backend/internal/api/rest"
	"github.com/kubilitics/kubilitics-backend/internal/api/websocket"
	"github.com/kubilitics/kubilitics-backend/internal/config"
	"github.com/kubilitics/kubilitics-backend/internal/materializer"
	"github.com/kubilitics/kubilitics-backend/internal/notify"
	"github.com/kubilitics/kubilitics-backend/internal/pipeline"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/logger"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/tracing"
	"github.com/kubilitics/kubilitics-backend/internal/preextract"
	"github.com/kubilitics/kubilitics-backend/internal/progress"
	"github.com/kubilitics/kubilitics-backend/internal/repository"
	"github.com/kubilitics/kubilitics-backend/internal/ruleengine"
	"github.com/kubilitics/kubilitics-backend/internal/rules"
	"github.com/kubilitics/kubilitics-backend/internal/taskqueue"
	"github.com/kubilitics/kubilitics-backend/internal/webhook"
)

func main() {
	log.Println("🚀 Triage orchestrator starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("⚠️  Warning: failed to load config: %v. Using defaults.", err)
		cfg = &config.Config{
			Port:           8080,
			DatabasePath:   "./triage.db",
			DatabaseDriver: "sqlite",
			LogLevel:       "info",
			AllowedOrigins: []string{"*"},
			RulesDir:       "./rules",
			WorkerPoolSize: 3,
			WorkspaceRoot:  "./workspaces",
			QueueCapacity:  256,
		}
	}
	log.Printf("📋 Configuration loaded: port=%d, db=%s driver=%s", cfg.Port, cfg.DatabasePath, cfg.DatabaseDriver)

	stdLogger := logger.StdLogger()

	shutdownTracing, err := tracing.Init("triage-orchestrator", cfg.TracingEndpoint, cfg.TracingSampleRate)
	if err != nil {
		log.Printf("⚠️  Warning: tracing init failed: %v", err)
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	log.Println("💾 Initializing database...")
	var repo *repository.SQLRepository
	switch cfg.DatabaseDriver {
	case "postgres":
		repo, err = repository.NewPostgresRepository(cfg.DatabasePath)
	default:
		repo, err = repository.NewSQLiteRepository(cfg.DatabasePath)
	}
	if err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	defer repo.Close()

	if migrationSQL, err := loadMigrations("migrations"); err != nil {
		log.Printf("⚠️  Warning: could not read migrations: %v", err)
	} else if migrationSQL != "" {
		if err := repo.RunMigrations(migrationSQL); err != nil {
			log.Printf("⚠️  Warning: failed to run migrations: %v", err)
		} else {
			log.Println("✅ Database migrations completed")
		}
	}

	instrumentedRepo := repository.NewInstrumentedRepository(repo)

	log.Println("📐 Loading rule catalog...")
	catalog := rules.NewStore(cfg.RulesDir, stdLogger)
	if err := catalog.Load(); err != nil {
		log.Fatalf("❌ Failed to load rule catalog: %v", err)
	}
	if cfg.RulesWatch {
		if err := catalog.Watch(ctx); err != nil {
			log.Printf("⚠️  Warning: rule catalog hot reload disabled: %v", err)
		} else {
			log.Println("✅ Rule catalog hot reload enabled")
		}
	}

	engine := ruleengine.New(stdLogger)

	resolver := materializer.NewCompositeResolver(materializer.NewTokenResolver(cfg.ArtifactFetchBaseURL))
	// PassthroughDecryptor stands in for the external decryption codec
	// (§1 Out of scope) until a deployment wires a real one in.
	mat := materializer.New(cfg.WorkspaceRoot, resolver, materializer.PassthroughDecryptor{}, 0)

	preExtractor := preextract.New(cfg.PreExtractMaxLines, time.Duration(cfg.PreExtractTimeoutSec)*time.Second)

	router := buildAgentRouter(cfg)
	bus := progress.NewBus()
	notifier := notify.NewNotifier(time.Duration(cfg.NotifyTimeoutSec)*time.Second, stdLogger)

	pl := &pipeline.Pipeline{
		Repo:         instrumentedRepo,
		Catalog:      catalog,
		Engine:       engine,
		Materializer: mat,
		PreExtractor: preExtractor,
		Router:       router,
		ProgressBus:  bus,
		Notifier:     notifier,
		AgentTimeout: time.Duration(cfg.AgentTimeoutSec) * time.Second,
		KillGrace:    time.Duration(cfg.AgentKillGraceSec) * time.Second,
		Logger:       stdLogger,
	}

	scheduler := taskqueue.New(instrumentedRepo, pl, stdLogger, cfg.WorkerPoolSize, cfg.QueueCapacity)
	staleThreshold := time.Duration(cfg.StaleTaskMinutes) * time.Minute
	if err := scheduler.Recover(ctx, staleThreshold); err != nil {
		log.Printf("⚠️  Warning: startup recovery sweep failed: %v", err)
	}
	go scheduler.Start(ctx)
	log.Println("✅ Task scheduler started")
	if cfg.WorkspaceRetainHrs > 0 {
		sweeper := materializer.NewSweeper(cfg.WorkspaceRoot, time.Duration(cfg.WorkspaceRetainHrs)*time.Hour)
		go sweeper.Run(ctx.Done(), time.Hour)
	}

	restHandler := rest.NewHandler(instrumentedRepo, scheduler, catalog, bus, router, notifier, stdLogger, 0)
	wsHandler := websocket.NewHandler(bus, stdLogger)
	webhookHandler := webhook.NewHandler(instrumentedRepo, scheduler, cfg.WebhookSharedSecret, "", stdLogger)

	muxRouter := mux.NewRouter()
	apiRouter := muxRouter.PathPrefix("/api/v1").Subrouter()
	rest.SetupRoutes(apiRouter, restHandler, wsHandler)
	apiRouter.HandleFunc("/webhooks/tracker", webhookHandler.ServeTrackerWebhook).Methods("POST")

	muxRouter.HandleFunc("/health", restHandler.Health).Methods("GET")

	muxRouter.Use(middleware.RequestID)
	muxRouter.Use(middleware.StructuredLog)
	muxRouter.Use(middleware.Tracing)
	muxRouter.Use(middleware.SecureHeaders)
	muxRouter.Use(middleware.RateLimit())
	muxRouter.Use(middleware.MaxBodySize(middleware.DefaultStandardMaxBodyBytes, middleware.DefaultAnalyzeMaxBodyBytes))
	muxRouter.Use(middleware.CORSValidation(cfg, stdLogger))
	muxRouter.Use(middleware.Auth(cfg))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Tracker-Signature"},
		AllowCredentials: true,
	})
	handlerWithCORS := c.Handler(muxRouter)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handlerWithCORS,
		ReadTimeout:  time.Duration(cfg.RequestTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Printf("🌐 Server listening on port %d", cfg.Port)
		log.Printf("📡 API available at http://localhost:%d/api/v1", cfg.Port)
		log.Printf("🔌 Progress stream at ws://localhost:%d/api/v1/tasks/{task_id}/stream", cfg.Port)
		log.Printf("❤️  Health check at http://localhost:%d/health", cfg.Port)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	cancel() // stop the scheduler's worker pool and rule-watch goroutine

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server exited gracefully")
}

// buildAgentRouter constructs the bundled providers and orders them per
// cfg.AgentProviders, falling back to both in their declared order when the
// config list is empty; unrecognized provider names are skipped (§4.E).
func buildAgentRouter(cfg *config.Config) *agent.Router {
	available := map[string]agent.Runner{
		"claude_code": agent.NewClaudeCodeProvider(cfg.ClaudeCodeBin),
		"codex":       agent.NewCodexProvider(cfg.CodexBin),
	}

	order := cfg.AgentProviders
	if len(order) == 0 {
		order = []string{"claude_code", "codex"}
	}

	runners := make([]agent.Runner, 0, len(available))
	seen := make(map[string]bool, len(available))
	for _, name := range order {
		if r, ok := available[name]; ok && !seen[name] {
			runners = append(runners, r)
			seen[name] = true
		}
	}
	return agent.NewRouter(runners...)
}

// loadMigrations concatenates every *.sql file under dir in lexical order
// (NN_name.sql naming controls apply order), matching the single
// migrationSQL-string contract Repository.RunMigrations expects.
func loadMigrations(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("read migration %s: %w", name, err)
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String(), nil
}
