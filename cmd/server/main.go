package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/config"
	"github.com/skinsociete/notification-engine/internal/database"
	"github.com/skinsociete/notification-engine/internal/events"
	"github.com/skinsociete/notification-engine/internal/handlers"
	"github.com/skinsociete/notification-engine/internal/jobs"
	"github.com/skinsociete/notification-engine/internal/lock"
	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/push"
	"github.com/skinsociete/notification-engine/internal/repository"
	cron "github.com/skinsociete/notification-engine/internal/scheduler"
	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/skinsociete/notification-engine/internal/templates"
	"github.com/skinsociete/notification-engine/pkg/logger"
	"github.com/skinsociete/notification-engine/pkg/middleware"
)

func main() {
	// Load configuration from environment / .env file
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	logger.InitLogger(cfg.LogLevel)
	logger.Log.Info("Logger initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectDB(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Database connection error")
	}
	defer func() {
		if err := db.Client().Disconnect(context.Background()); err != nil {
			logrus.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}()

	// --- Repositories ---
	userRepo := repository.NewUserRepository(db)
	behaviorRepo := repository.NewBehaviorRepository(db)
	preferenceRepo := repository.NewPreferenceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	scheduledRepo := repository.NewScheduledRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	productRepo := repository.NewProductRepository(db)

	if err := database.EnsureIndexes(ctx, userRepo, behaviorRepo, preferenceRepo, notificationRepo, scheduledRepo, activityRepo); err != nil {
		logrus.WithError(err).Fatal("Index setup failed")
	}

	registry := templates.Default()
	if err := templateRepo.UpsertTemplates(ctx, registry.All()); err != nil {
		logrus.WithError(err).Fatal("Template seeding failed")
	}

	// --- Infrastructure ---
	locker := newLocker(ctx, cfg)
	sender := newPushSender(ctx, cfg)
	clock := services.SystemClock{}
	loc := cfg.Location()

	// --- Services ---
	resolver := services.NewResolver(userRepo, behaviorRepo, preferenceRepo, clock, loc)
	gate := services.NewPolicyGate(notificationRepo, clock, loc)
	dispatcher := services.NewDispatcher(resolver, gate, registry, sender, notificationRepo, clock, push.EnvelopeOptions{
		AndroidChannelID: cfg.AndroidChannelID,
		AndroidColor:     cfg.AndroidColor,
	}, loc)
	deliveryService := services.NewDeliveryService(scheduledRepo, dispatcher, registry, clock)

	notifier := services.NewAsyncNotifier(dispatcher, 4, 1024)
	notifier.Start()

	tracker := services.NewBehaviorTracker(services.TrackerDeps{
		Behaviors: behaviorRepo,
		Users:     userRepo,
		Prefs:     preferenceRepo,
		Products:  productRepo,
		Events:    activityRepo,
		Notifier:  notifier,
		Scheduler: deliveryService,
		Locker:    locker,
		Clock:     clock,
		Policy:    services.StreakResetPolicy(strings.ToLower(cfg.StreakResetPolicy)),
		Fallback:  loc,
	})
	preferenceService := services.NewPreferenceService(preferenceRepo, clock, cfg.DefaultTimezone)
	notificationService := services.NewNotificationService(notificationRepo, tracker, clock)

	// --- Handlers ---
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	preferenceHandler := handlers.NewPreferenceHandler(preferenceService)
	eventHandler := handlers.NewEventHandler(tracker)
	adminHandler := handlers.NewAdminHandler(dispatcher, deliveryService)

	// Initialize Gorilla Mux router
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	// Notification routes for the signed-in user
	protectedRoutes := router.PathPrefix("/notifications").Subrouter()
	protectedRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedRoutes.Use(middleware.UpdateLastActiveMiddleware(userRepo))
	protectedRoutes.HandleFunc("", notificationHandler.GetUserNotificationsHandler).Methods("GET")
	protectedRoutes.HandleFunc("/preferences", preferenceHandler.GetPreferencesHandler).Methods("GET")
	protectedRoutes.HandleFunc("/preferences", preferenceHandler.UpdatePreferencesHandler).Methods("PUT")
	protectedRoutes.HandleFunc("/devices", preferenceHandler.RegisterDeviceHandler).Methods("POST")
	protectedRoutes.HandleFunc("/{id}/opened", notificationHandler.MarkOpenedHandler).Methods("POST")

	// Event ingestion for internal services
	eventRoutes := router.PathPrefix("/events").Subrouter()
	eventRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	eventRoutes.Use(middleware.RequireRole("service"))
	eventRoutes.HandleFunc("", eventHandler.RecordEventHandler).Methods("POST")

	// Admin routes
	adminRoutes := router.PathPrefix("/admin").Subrouter()
	adminRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	adminRoutes.Use(middleware.RequireRole("admin"))
	adminRoutes.HandleFunc("/notifications/send", adminHandler.SendNotificationHandler).Methods("POST")
	adminRoutes.HandleFunc("/notifications/scheduled", adminHandler.ScheduleNotificationHandler).Methods("POST")
	adminRoutes.HandleFunc("/notifications/scheduled/{id}", adminHandler.CancelScheduledHandler).Methods("DELETE")

	// Apply middleware for logging
	router.Use(middleware.LoggingMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: c.Handler(router),
	}

	// --- Background workers ---
	var consumer *events.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		consumer = events.NewConsumer(events.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup), tracker)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logrus.WithError(err).Error("Behavior event consumer stopped")
			}
		}()
	}

	var scheduler *cron.Scheduler
	if cfg.SchedulerEnabled {
		scheduler = cron.NewScheduler(locker, cfg.SweepTimeout)
		reminders := jobs.NewReminderJobs(jobs.Deps{
			Behaviors:   behaviorRepo,
			Prefs:       preferenceRepo,
			Sent:        notificationRepo,
			Scheduled:   scheduledRepo,
			Resolver:    resolver,
			Sender:      dispatcher,
			Registry:    registry,
			Clock:       clock,
			Fallback:    loc,
			StreakHours: cfg.StreakProtectionHours,
		})
		if err := cron.Register(scheduler, reminders, deliveryService); err != nil {
			logrus.WithError(err).Fatal("Failed to register scheduled jobs")
		}
		scheduler.Start()
	}

	go func() {
		logrus.WithField("port", cfg.Port).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("Scheduler did not stop in time")
		}
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close Kafka reader")
		}
	}
	if err := notifier.Stop(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Notification queue not drained")
	}
}

// newLocker uses Redis when configured so that locks hold across instances.
func newLocker(ctx context.Context, cfg *config.Config) lock.Locker {
	if cfg.RedisAddr == "" {
		logrus.Info("REDIS_ADDR not set, using in-process locks")
		return lock.NewLocal()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Fatal("Redis connection error")
	}
	return lock.NewRedis(client, "notification-engine")
}

// newPushSender registers the configured transports behind a rate limit.
func newPushSender(ctx context.Context, cfg *config.Config) push.Sender {
	router := push.NewRouter()
	if cfg.FCMCredentialsFile != "" {
		fcm, err := push.NewFCMSender(ctx, cfg.FCMCredentialsFile)
		if err != nil {
			logrus.WithError(err).Fatal("FCM setup failed")
		}
		router.Register(models.PlatformAndroid, fcm)
	} else {
		logrus.Warn("FCM_CREDENTIALS_FILE not set, Android pushes will fail")
	}
	if cfg.APNSKeyFile != "" {
		apns, err := push.NewAPNSSender(push.APNSConfig{
			KeyFile:    cfg.APNSKeyFile,
			KeyID:      cfg.APNSKeyID,
			TeamID:     cfg.APNSTeamID,
			Topic:      cfg.APNSTopic,
			Production: cfg.APNSProduction,
		})
		if err != nil {
			logrus.WithError(err).Fatal("APNs setup failed")
		}
		router.Register(models.PlatformIOS, apns)
	} else {
		logrus.Warn("APNS_KEY_FILE not set, iOS pushes will fail")
	}
	return push.NewRateLimited(router, cfg.PushRatePerSec)
}
