package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"seatwatch/internal/config"
	"seatwatch/internal/database"
	"seatwatch/internal/database/migration"
	handlers "seatwatch/internal/http/handler"
	"seatwatch/internal/http/middleware"
	"seatwatch/internal/inference"
	"seatwatch/internal/otel"
	"seatwatch/internal/pipeline"
	"seatwatch/internal/repository/postgres"
	"seatwatch/internal/service"
	"seatwatch/internal/storage"
	"seatwatch/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc := time.UTC

	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	shutdownTracing, err := otel.Init(ctx, loc)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, loc, cfg.Database.Host); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	evRepo := postgres.NewEventPostgres(db)
	evSvc := service.NewEventService(objStore, evRepo)

	// Decode the use-case configuration and build the pipeline from it.
	uc, err := config.LoadUseCase(cfg.Pipeline)
	if err != nil {
		log.Fatalf("failed to load use-case configuration: %v", err)
	}

	conv, err := inference.NewConverter(inference.COCOClassNames(), uc.ClassFilter, uc.Params.ConfidenceThreshold)
	if err != nil {
		log.Fatalf("failed to build inference converter: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	wMetrics, err := worker.NewMetrics(reg)
	if err != nil {
		log.Fatalf("failed to register worker metrics: %v", err)
	}

	w := worker.New(cfg.Pipeline.QueueSize, buildPipeline(uc), evSvc, wMetrics)
	go w.Run(ctx)

	// The active use case is swapped on config file reload, so the
	// /pipeline/config handler always reflects what the worker runs.
	var ucMu sync.RWMutex
	activeUC := uc

	if cfg.Pipeline.ConfigFile != "" {
		watcher, err := config.NewWatcher(cfg.Pipeline.ConfigFile, func(next *config.UseCase) {
			w.SetPipeline(buildPipeline(next))
			ucMu.Lock()
			activeUC = next
			ucMu.Unlock()
		})
		if err != nil {
			log.Fatalf("failed to watch use-case config: %v", err)
		}
		go watcher.Run(ctx)
	}

	promMw, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatalf("failed to register http metrics: %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())
	app.Use(promMw.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	handlers.RegisterRoutes(app, db, evSvc, w, conv, func() fiber.Map {
		ucMu.RLock()
		defer ucMu.RUnlock()
		return fiber.Map{
			"logic":               activeUC.Params.Logic,
			"eventTtl":            activeUC.Params.EventTTL,
			"confidenceThreshold": activeUC.Params.ConfidenceThreshold,
			"classFilter":         activeUC.ClassFilter,
			"polygon":             activeUC.AreaOfInterest.Polygon.Coordinates,
		}
	})

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	addr := ":" + cfg.Port

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

// buildPipeline assembles the detection pipeline for a use case:
// region-of-interest and class filtering ahead of the business logic.
func buildPipeline(uc *config.UseCase) *pipeline.Pipeline {
	var logic pipeline.Logic
	switch uc.Params.Logic {
	case config.LogicPresence:
		logic = pipeline.NewPresenceLogic(uc.Params.EventTTL)
	default:
		logic = pipeline.NewSeatLogic(pipeline.SeatLogicConfig{
			RowTolerance:   uc.Params.RowTolerance,
			MinSeatsPerRow: uc.Params.MinSeatsPerRow,
		})
	}

	return pipeline.New(logic,
		pipeline.NewRegionOfInterest(uc.AreaOfInterest.Polygon.Coordinates),
		pipeline.NewClassFilter(uc.ClassFilter),
	)
}
