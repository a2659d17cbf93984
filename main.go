package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dextersy/label-dashboard-sub004/config"
	"github.com/dextersy/label-dashboard-sub004/internal/cache"
	"github.com/dextersy/label-dashboard-sub004/internal/clock"
	"github.com/dextersy/label-dashboard-sub004/internal/consumer"
	"github.com/dextersy/label-dashboard-sub004/internal/handler"
	"github.com/dextersy/label-dashboard-sub004/internal/middleware"
	"github.com/dextersy/label-dashboard-sub004/internal/repository"
	"github.com/dextersy/label-dashboard-sub004/internal/service"
	"github.com/dextersy/label-dashboard-sub004/internal/worker"
	"github.com/dextersy/label-dashboard-sub004/pkg/database"
	"github.com/dextersy/label-dashboard-sub004/pkg/rabbitmq"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := database.NewPostgresDB(cfg.DSN())
	store := repository.NewStore(db)
	clk := clock.NewSystem()

	// Availability cache is optional
	var availability service.AvailabilityCache
	if cfg.RedisAddr != "" {
		rdb := cache.NewClient(cfg.RedisAddr, cfg.RedisPassword)
		defer rdb.Close()
		availability = cache.NewAvailabilityCache(rdb, cache.DefaultAvailabilityTTL)
		log.Printf("availability cache enabled at %s", cfg.RedisAddr)
	}

	// RabbitMQ publisher: ticket notifications for the delivery workers
	mqPublisher, err := rabbitmq.NewPublisher(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect publisher to RabbitMQ: %v", err)
	}
	defer mqPublisher.Close()

	// RabbitMQ consumer: sync events, ticket types and referrers from the catalog
	mqConsumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, rabbitmq.CatalogTopology())
	if err != nil {
		log.Fatalf("failed to connect to RabbitMQ: %v", err)
	}
	defer mqConsumer.Close()

	msgs, err := mqConsumer.Consume()
	if err != nil {
		log.Fatalf("failed to start consuming: %v", err)
	}
	consumer.NewCatalogConsumer(store, availability).Start(msgs)

	// Services
	notifier := service.NewBrokerNotifier(mqPublisher)
	inventorySvc := service.NewInventoryService(store.TicketTypes, availability, clk)
	referralSvc := service.NewReferralService(store.Referrers)
	orderSvc := service.NewOrderService(store, inventorySvc, referralSvc, clk, service.FeePolicy{
		Bps:   cfg.ProcessingFeeBps,
		Fixed: cfg.ProcessingFeeFixed,
	}, cfg.MaxEntriesPerOrder)
	paymentSvc := service.NewPaymentService(store, inventorySvc, notifier, clk)
	checkinSvc := service.NewCheckInService(store, []byte(cfg.CheckinJWTSecret), cfg.CheckinSessionTTL, clk)
	transferSvc := service.NewTransferService(store, notifier, clk)

	// Sweeper: expire unpaid orders, retry failed issuance
	sweeper := worker.NewSweeper(paymentSvc, worker.SweeperConfig{
		Interval:   cfg.SweepInterval,
		PendingTTL: cfg.PendingOrderTTL,
		RetryAfter: cfg.IssuanceRetryAfter,
	})
	go sweeper.Run(ctx)

	// Echo
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Validator = middleware.NewRequestValidator()
	e.Use(echoMw.RequestLoggerWithConfig(echoMw.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v echoMw.RequestLoggerValues) error {
			log.Printf("%s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(echoMw.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "ticketing-service"})
	})

	handler.NewAvailabilityHandler(inventorySvc).RegisterRoutes(e)
	handler.NewOrderHandler(orderSvc, paymentSvc, transferSvc).RegisterRoutes(e)
	handler.NewWebhookHandler(paymentSvc).RegisterRoutes(e)
	handler.NewCheckInHandler(checkinSvc).RegisterRoutes(e)

	go func() {
		log.Printf("Ticketing Service starting on :%s", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
