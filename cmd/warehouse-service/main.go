package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/events"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/handler"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/service"
	"github.com/warehousetch/warehouse-backend/pkg/config"
	"github.com/warehousetch/warehouse-backend/pkg/database"
	"github.com/warehousetch/warehouse-backend/pkg/httputil"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
	"github.com/warehousetch/warehouse-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("warehouse-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("warehouse-service", cfg.Server.Environment)
	log.Info().Msg("starting Warehouse Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewWarehouseEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	lotRepo := repository.NewLotRepository(db)
	zoneRepo := repository.NewZoneRepository(db)
	deductionLogRepo := repository.NewDeductionLogRepository(db)
	transferLogRepo := repository.NewTransferLogRepository(db)
	stocktakeRepo := repository.NewStocktakeRepository(db)

	// Initialize services
	capacityKG := cfg.Warehouse.LocationCapacityKG
	capacityService := service.NewCapacityService(lotRepo, capacityKG, log)
	lotService := service.NewLotService(db, lotRepo, capacityKG, log)
	allocatorService := service.NewAllocatorService(db, lotRepo, zoneRepo, publisher, capacityKG, log)
	availabilityService := service.NewAvailabilityService(lotRepo, log)
	deductionService := service.NewDeductionService(db, lotRepo, deductionLogRepo, publisher, log)
	transferService := service.NewTransferService(db, lotRepo, transferLogRepo, publisher, capacityKG, log)
	stocktakeService := service.NewStocktakeService(db, stocktakeRepo, lotRepo, publisher, log)
	dashboardService := service.NewDashboardService(lotRepo, zoneRepo, stocktakeRepo, capacityKG, log)

	// Initialize handlers
	lotHandler := handler.NewLotHandler(allocatorService, lotService, capacityService, log)
	stockHandler := handler.NewStockHandler(availabilityService, deductionService, log)
	transferHandler := handler.NewTransferHandler(transferService, log)
	stocktakeHandler := handler.NewStocktakeHandler(stocktakeService, log)
	dashboardHandler := handler.NewDashboardHandler(dashboardService, zoneRepo, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(httputil.ActorMiddleware) // Extract acting user from headers

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			// Allow localhost variations (development)
			if origin == "http://localhost:3000" || origin == "http://localhost:5173" {
				return true
			}
			// Allow *.warehousetch.io for production
			if len(origin) > 17 && origin[len(origin)-17:] == ".warehousetch.io" {
				return true
			}
			return origin == "https://warehousetch.io"
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-User-Email", "X-User-Name"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "warehouse-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/warehouse", func(r chi.Router) {
		// Zone routes
		r.Route("/zones", func(r chi.Router) {
			r.Get("/", dashboardHandler.ListZones)
			r.Get("/utilization", dashboardHandler.ZoneUtilization)
			r.Get("/{id}", dashboardHandler.GetZone)
		})

		// Lot routes
		r.Route("/lots", func(r chi.Router) {
			r.Get("/", lotHandler.ListAll)
			r.Post("/", lotHandler.Intake)
			r.Get("/expiring", lotHandler.ListExpiring)
			r.Get("/low-stock", lotHandler.ListLowStock)
			r.Get("/product/{code}", lotHandler.ListByProduct)
			r.Delete("/product/{code}", lotHandler.DeleteByProduct)
			r.Get("/location/{location}", lotHandler.GetByLocation)
			r.Get("/{id}", lotHandler.Get)
			r.Put("/{id}/quantity", lotHandler.UpdateQuantity)
			r.Post("/{id}/distribute", lotHandler.Distribute)
		})

		// Capacity routes
		r.Route("/capacity", func(r chi.Router) {
			r.Get("/{location}", lotHandler.AvailableWeight)
			r.Get("/{location}/{lotID}", lotHandler.Headroom)
		})

		// Stock routes
		r.Route("/stock", func(r chi.Router) {
			r.Post("/availability", stockHandler.CheckAvailability)
			r.Post("/deduct", stockHandler.Deduct)
			r.Get("/deductions/product/{code}", stockHandler.DeductionLogsByProduct)
			r.Get("/deductions/export/{ref}", stockHandler.DeductionLogsByExport)
		})

		// Transfer routes
		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", transferHandler.Recent)
			r.Post("/", transferHandler.Transfer)
			r.Get("/actor/{email}", transferHandler.LogsByActor)
		})

		// Stocktake routes
		r.Route("/stocktakes", func(r chi.Router) {
			r.Get("/", stocktakeHandler.List)
			r.Post("/", stocktakeHandler.Start)
			r.Get("/active", stocktakeHandler.Active)
			r.Post("/lines/{lineID}/count", stocktakeHandler.SubmitCount)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/lines", stocktakeHandler.Lines)
				r.Post("/assign", stocktakeHandler.Assign)
				r.Post("/reset", stocktakeHandler.Reset)
				r.Post("/remove-lines", stocktakeHandler.RemoveLines)
				r.Post("/finalize", stocktakeHandler.Finalize)
				r.Delete("/", stocktakeHandler.Cancel)
				r.Get("/report", stocktakeHandler.Report)
			})
		})

		// Dashboard
		r.Get("/dashboard/stats", dashboardHandler.GetStats)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
