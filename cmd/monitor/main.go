package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/redteam-monitor/backend/internal/api/handlers"
	"github.com/redteam-monitor/backend/internal/arxiv"
	"github.com/redteam-monitor/backend/internal/digest"
	"github.com/redteam-monitor/backend/internal/enrich"
	"github.com/redteam-monitor/backend/internal/llm"
	"github.com/redteam-monitor/backend/internal/metrics"
	"github.com/redteam-monitor/backend/internal/pipeline"
	"github.com/redteam-monitor/backend/internal/query"
	"github.com/redteam-monitor/backend/internal/scheduler"
	"github.com/redteam-monitor/backend/internal/storage/sqlite"
	"github.com/redteam-monitor/backend/pkg/config"
	appLogger "github.com/redteam-monitor/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	metrics.Init()

	app := &cli.App{
		Name:  "monitor",
		Usage: "Collect, enrich, and publish AI red-teaming research papers from arXiv",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "days",
				Value: 7,
				Usage: "lookback window in days",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "collect",
				Usage: "Fetch recent papers from arXiv into the store",
				Action: func(c *cli.Context) error {
					env, err := newEnv(cfg)
					if err != nil {
						return err
					}
					defer env.close()
					return env.runner.RunCollection(signalContext(), c.Int("days"))
				},
			},
			{
				Name:  "process",
				Usage: "Enrich collected papers with the configured LLM",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "cap the number of papers processed this run",
					},
				},
				Action: func(c *cli.Context) error {
					env, err := newEnv(cfg)
					if err != nil {
						return err
					}
					defer env.close()
					return env.runner.RunProcessing(signalContext(), c.Int("limit"))
				},
			},
			{
				Name:  "digest",
				Usage: "Build and email the research digest",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "min-relevance",
						Value: cfg.Email.MinRelevance,
						Usage: "minimum relevance score for digest inclusion",
					},
				},
				Action: func(c *cli.Context) error {
					env, err := newEnv(cfg)
					if err != nil {
						return err
					}
					defer env.close()
					return env.runner.RunDigest(signalContext(), c.Int("days"), c.Int("min-relevance"))
				},
			},
			{
				Name:  "serve",
				Usage: "Serve the dashboard API",
				Action: func(c *cli.Context) error {
					env, err := newEnv(cfg)
					if err != nil {
						return err
					}
					defer env.close()
					return serveAPI(env, cfg)
				},
			},
			{
				Name:  "schedule",
				Usage: "Run as a service with recurring collect/process/digest jobs",
				Action: func(c *cli.Context) error {
					env, err := newEnv(cfg)
					if err != nil {
						return err
					}
					defer env.close()

					sched := scheduler.New(env.runner, *cfg)
					err = sched.Run(signalContext())
					if err == context.Canceled {
						return nil
					}
					return err
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		appLogger.Error("Command failed", zap.Error(err))
		os.Exit(1)
	}
}

// env holds the wired components shared by every command.
type env struct {
	store  *sqlite.Store
	facade *query.Facade
	runner *pipeline.Runner
}

func newEnv(cfg *config.Config) (*env, error) {
	store, err := sqlite.NewStore(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// A missing API key only matters for processing runs; the runner
	// reports it there instead of blocking collection or digests.
	var engine *enrich.Engine
	generator, err := llm.New(cfg.LLM)
	if err != nil {
		appLogger.Warn("Text generator unavailable", zap.Error(err))
	} else {
		engine = enrich.NewEngine(generator, cfg.LLM)
	}

	collector := arxiv.NewClient(cfg.Arxiv)
	facade := query.NewFacade(store)
	builder := digest.NewBuilder()
	mailer := digest.NewMailer(cfg.Email)

	runner := pipeline.NewRunner(store, collector, engine, facade, builder, mailer, cfg.Arxiv.MaxResults)

	return &env{store: store, facade: facade, runner: runner}, nil
}

func (e *env) close() {
	e.store.Close()
}

func serveAPI(e *env, cfg *config.Config) error {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, OPTIONS",
	}))

	papersHandler := handlers.NewPapersHandler(e.facade)

	api := app.Group("/api/v1")
	api.Get("/papers", papersHandler.ListPapers)
	api.Get("/categories", papersHandler.ListCategories)
	api.Get("/stats", papersHandler.GetStats)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
	return nil
}

// signalContext cancels on SIGINT/SIGTERM so a long run exits between
// statements; already-committed papers stay committed.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()
	return ctx
}
