package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"courier-sync/internal/cache"
	"courier-sync/internal/config"
	"courier-sync/internal/ingestion"
	"courier-sync/internal/logger"
	"courier-sync/internal/parcel/service"
	"courier-sync/internal/realtime"
	"courier-sync/internal/routes"
	"courier-sync/internal/storage/postgres"
	pkgmqtt "courier-sync/pkg/mqtt"
)

// notificationRetention bounds how long read and unread notifications
// are kept before the prune job deletes them.
const notificationRetention = 30 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	env := cfg.Server.Environment
	if env == "" {
		env = "development"
	}
	if err := logger.Init(env); err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("environment", env),
	)

	if cfg.Database.Host == "" || cfg.Database.DBName == "" {
		logger.Fatal("Database configuration is missing. Please set DB_HOST and DB_NAME environment variables.")
	}
	if cfg.JWT.Secret == "" {
		logger.Fatal("JWT secret is missing. Please set JWT_SECRET environment variable.")
	}

	db, err := postgres.NewDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	trackingCache := cache.NewTrackingCache(cfg.Redis)
	defer trackingCache.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := trackingCache.Ping(pingCtx); err != nil {
		logger.Warn("Redis unavailable, tracking lookups fall back to the database", zap.Error(err))
	}
	pingCancel()

	hub := realtime.NewHub(zap.L())

	parcelRepository := postgres.NewParcelRepository(db)
	notificationRepository := postgres.NewNotificationRepository(db)
	parcelService := service.NewService(parcelRepository, notificationRepository, trackingCache, hub, zap.L())

	pruneCtx, pruneCancel := context.WithCancel(context.Background())
	defer pruneCancel()
	go parcelService.StartNotificationPruneJob(pruneCtx, time.Hour, notificationRetention)

	processor := ingestion.NewProcessor(parcelRepository, trackingCache, hub, 100, 4, 1024, 5*time.Second, zap.L())
	processor.Start()
	defer processor.Stop()

	if cfg.MQTT.Broker != "" {
		ingestClient, err := ingestion.NewMQTTIngestionClient(&ingestion.MQTTIngestionConfig{
			ClientConfig: &pkgmqtt.Config{
				Broker:               cfg.MQTT.Broker,
				ClientID:             cfg.MQTT.ClientID,
				Username:             cfg.MQTT.Username,
				Password:             cfg.MQTT.Password,
				CleanSession:         true,
				KeepAlive:            30,
				ConnectTimeout:       10,
				AutoReconnect:        true,
				MaxReconnectInterval: time.Minute,
			},
			TrackingTopic: cfg.MQTT.TrackingTopic,
			QoS:           byte(cfg.MQTT.QoS),
		}, processor, zap.L())
		if err != nil {
			logger.Fatal("Failed to build MQTT ingestion client", zap.Error(err))
		}
		if err := ingestClient.Start(); err != nil {
			logger.Fatal("Failed to start MQTT ingestion", zap.Error(err))
		}
		defer ingestClient.Stop()
	} else {
		logger.Warn("MQTT broker not configured, device tracking feed disabled")
	}

	router := routes.SetupRoutes(cfg, db, parcelService, notificationRepository, hub)

	host := cfg.Server.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	addr := net.JoinHostPort(host, port)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting",
			zap.String("address", addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Failed to shutdown server", zap.Error(err))
	}

	logger.Info("Server exited properly")
}
