package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"automation-hub/backend/internal/api"
	"automation-hub/backend/internal/cache"
	"automation-hub/backend/internal/config"
	"automation-hub/backend/internal/intake"
	"automation-hub/backend/internal/llm"
	"automation-hub/backend/internal/logging"
	"automation-hub/backend/internal/mcp"
	"automation-hub/backend/internal/media"
	"automation-hub/backend/internal/pipeline/podcast"
	"automation-hub/backend/internal/pipeline/videoad"
	"automation-hub/backend/internal/queue"
	"automation-hub/backend/internal/registry"
	"automation-hub/backend/internal/repository"
	"automation-hub/backend/internal/schema"
	"automation-hub/backend/internal/storage"
	selfsigned "automation-hub/backend/internal/tls"
	"automation-hub/backend/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "hub",
		Short: "Automation hub backend",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newWorkerCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, and the worker when enabled",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func newWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the job worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), *configPath)
		},
	}
}

// deps holds the wired application components shared by serve and worker.
type deps struct {
	cfg      *config.Config
	logger   *logging.Logger
	pool     *pgxpool.Pool
	systems  repository.SystemStore
	jobs     repository.JobStore
	queue    interface {
		queue.Producer
		queue.Consumer
	}
	registry *registry.Service
	intake   *intake.Engine
	worker   *worker.Processor
}

func (d *deps) close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

func build(ctx context.Context, configPath string) (*deps, error) {
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger.Info("Configuration loaded")

	d := &deps{cfg: cfg, logger: logger}

	// Storage layer. An empty DB host selects the in-memory stores, which is
	// only useful for local experiments.
	if cfg.DB.Host != "" {
		pool, err := initDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		d.pool = pool
		d.systems = repository.NewPostgresSystemStore(pool)
		d.jobs = repository.NewPostgresJobStore(pool)
		logger.Info("Database connected")
	} else {
		d.systems = repository.NewMemorySystemStore()
		d.jobs = repository.NewMemoryJobStore()
		logger.Warn("No database configured, using in-memory stores")
	}

	var schemaCache cache.SchemaCache
	if cfg.Cache.Backend == "redis" {
		schemaCache = cache.NewRedisSchemaCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	} else {
		schemaCache = cache.NewMemorySchemaCache()
	}

	if cfg.Queue.Backend == "redis" {
		q, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Queue.Stream,
			Group:    cfg.Queue.Group,
			Consumer: cfg.Queue.Consumer,
		})
		if err != nil {
			return nil, err
		}
		d.queue = q
	} else {
		d.queue = queue.NewLocalQueue(cfg.Queue.BufferSize, logger)
	}

	resolver := schema.NewResolver(schemaCache, nil, logger)

	llmClient := llm.NewGeminiClient(llm.GeminiClientConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	mediaClient := media.NewClient(media.Config{
		APIKey:       cfg.Media.APIKey,
		BaseURL:      cfg.Media.BaseURL,
		PollInterval: time.Duration(cfg.Media.PollIntervalMS) * time.Millisecond,
		Timeout:      time.Duration(cfg.Media.TimeoutSeconds) * time.Second,
	})
	store := storage.NewClient(storage.Config{
		BaseURL:    cfg.Storage.BaseURL,
		ServiceKey: cfg.Storage.ServiceKey,
		Bucket:     cfg.Storage.Bucket,
	})

	d.registry = registry.NewService(registry.Config{
		Systems:       d.systems,
		Deployer:      registry.NewCLIDeployer(cfg.Deploy.Command, logger),
		Schemas:       resolver,
		SystemsDir:    cfg.SystemsDir,
		DeployTimeout: time.Duration(cfg.Deploy.TimeoutSeconds) * time.Second,
		Logger:        logger,
	})
	d.intake = intake.NewEngine(d.systems, resolver, llmClient, logger)

	proc, err := worker.NewProcessor(worker.Config{
		Consumer:    d.queue,
		Ledger:      d.jobs,
		Concurrency: cfg.Worker.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize worker: %w", err)
	}
	// Per-pipeline caps mirror each system's upstream provider budget.
	proc.Register(videoad.New(videoad.Config{
		LLM:    llmClient,
		Media:  mediaClient,
		Store:  store,
		Logger: logger,
	}), 5)
	proc.Register(podcast.New(podcast.Config{
		Analyzer: llmClient,
		Logger:   logger,
	}), 10)
	d.worker = proc

	logger.Info("Service layer initialized")
	return d, nil
}

func runServe(ctx context.Context, configPath string) error {
	d, err := build(ctx, configPath)
	if err != nil {
		return err
	}
	defer d.close()

	cfg, logger := d.cfg, d.logger

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if cfg.Worker.Enabled {
		go func() {
			if err := d.worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("worker stopped: %v", err)
			}
		}()
		logger.Info("Worker started, concurrency=%d", cfg.Worker.Concurrency)
	}

	// Create Echo server
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("automation-hub"))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	apiServer := api.NewServer(d.registry, d.intake, d.jobs, d.queue, logger)
	apiServer.RegisterRoutes(e.Group("/api/v1"),
		api.RateLimit(cfg.Intake.RateLimitRPS, cfg.Intake.RateLimitBurst))
	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers. The intake tools share the REST chat
	// routes' rate budget.
	mcpServer := mcp.NewServer(d.intake, d.systems, d.jobs,
		mcp.NewChatLimiter(cfg.Intake.RateLimitRPS, cfg.Intake.RateLimitBurst))
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))
	logger.Info("MCP protocol handlers mounted")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting address=%s tls=%v", addr, cfg.Server.TLS.Enable)
		if cfg.Server.TLS.Enable {
			if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			if _, err := os.Stat(cfg.Server.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.Server.TLS.Hostnames) > 0 {
					if err := selfsigned.GenerateSelfSignedCert(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, cfg.Server.TLS.Hostnames); err != nil {
						logger.Error("failed to generate self-signed cert: %v", err)
					}
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received: %v", sig)
		stopWorker()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error: %v", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

func runWorker(ctx context.Context, configPath string) error {
	d, err := build(ctx, configPath)
	if err != nil {
		return err
	}
	defer d.close()

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d.logger.Info("Worker starting, concurrency=%d", d.cfg.Worker.Concurrency)
	if err := d.worker.Run(runCtx); err != nil && runCtx.Err() == nil {
		return err
	}
	d.logger.Info("Worker stopped gracefully")
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
