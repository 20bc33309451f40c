package main

import (
	"log"
	"net/http"
	"time"

	"order-service/cache"
	"order-service/config"
	"order-service/consumers"
	"order-service/controllers"
	"order-service/database"
	"order-service/inventory"
	"order-service/middlewares"
	"order-service/rabbitmq"
	"order-service/services"
	"order-service/shipping"
	"order-service/store"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()

	if err := database.InitDB(); err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer database.CloseDB()

	cfg := config.LoadConfig()

	if err := cache.Init(cfg); err != nil {
		log.Printf("Warning: Redis unavailable, continuing without cache: %v", err)
	}
	defer cache.Close()

	rmq, err := rabbitmq.NewRabbitMQ(cfg)
	if err != nil {
		log.Fatalf("RabbitMQ initialization failed: %v", err)
	}
	defer rmq.Close()

	if err := rmq.SetupQueues(); err != nil {
		log.Fatalf("Failed to setup RabbitMQ queues: %v", err)
	}

	sqlStore := store.NewSQLStore(database.DB)
	ledger := inventory.NewSQLLedger(database.DB)
	carrier := shipping.NewClient(cfg.CarrierBaseURL, cfg.CarrierToken)

	orderService := &services.OrderService{
		Catalog:         sqlStore,
		Ledger:          ledger,
		Estimator:       carrier,
		Store:           sqlStore,
		Events:          rmq,
		PaymentDeadline: time.Duration(cfg.PaymentDeadlineMinutes) * time.Minute,
	}
	lifecycleService := &services.LifecycleService{
		Store:  sqlStore,
		Ledger: ledger,
		Events: rmq,
	}

	go consumers.StartOrderConsumer(rmq.Channel, cfg, lifecycleService)

	controllers.Setup(orderService, lifecycleService, sqlStore)
	controllers.SetFeeEstimator(carrier)
	controllers.SetWebhookToken(cfg.CarrierWebhookToken)

	r := gin.Default()

	r.Use(middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := r.Group("/api")
	authGroup.Use(middlewares.AuthMiddleware())
	{
		authGroup.POST("/orders", controllers.CreateOrder)
		authGroup.GET("/orders", controllers.GetUserOrders)
		authGroup.GET("/orders/:id", controllers.GetOrderDetails)
		authGroup.PATCH("/orders/:id/cancel", controllers.CancelOrder)
		authGroup.POST("/orders/calculate-fee", controllers.CalculateFee)
	}

	adminGroup := r.Group("/api/admin")
	adminGroup.Use(middlewares.AuthMiddleware(), middlewares.AdminMiddleware())
	{
		adminGroup.PUT("/orders/:id/status", controllers.UpdateOrderStatus)
	}

	r.POST("/webhooks/carrier", controllers.CarrierWebhook)

	port := ":8080"
	log.Printf("Order service starting on port %s", port)
	if err := r.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
