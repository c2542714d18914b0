package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/otcheredev/clinicflow/internal/cache"
	"github.com/otcheredev/clinicflow/internal/config"
	"github.com/otcheredev/clinicflow/internal/database"
	"github.com/otcheredev/clinicflow/internal/handlers"
	"github.com/otcheredev/clinicflow/internal/middleware"
	"github.com/otcheredev/clinicflow/internal/notify"
	"github.com/otcheredev/clinicflow/internal/repository"
	"github.com/otcheredev/clinicflow/internal/services"
	"github.com/otcheredev/clinicflow/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type stores struct {
	clinics       services.ClinicStore
	visits        services.VisitStore
	prescriptions services.PrescriptionStore
	audit         services.AuditStore
	pinger        handlers.Pinger
	close         func() error
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		m := repository.NewMemoryStore()
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		return &stores{
			clinics:       m.Clinics(),
			visits:        m.Visits(),
			prescriptions: m.Prescriptions(),
			audit:         m.Audit(),
			pinger:        m,
			close:         func() error { return nil },
		}, nil
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	return &stores{
		clinics:       repository.NewClinicRepository(db.DB),
		visits:        repository.NewVisitRepository(db.DB),
		prescriptions: repository.NewPrescriptionRepository(db.DB),
		audit:         repository.NewAuditRepository(db.DB),
		pinger:        db,
		close:         db.Close,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().
		Str("storage", cfg.Storage.Driver).
		Str("notify", cfg.Notify.Backend).
		Msg("Starting clinicflow")

	st, err := openStores(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer st.close()

	checks := map[string]handlers.Pinger{"storage": st.pinger}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		log.Info().Str("addr", cfg.Redis.Addr()).Msg("Redis connected")
	}

	var tokenCache cache.Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.Type == "redis" {
			tokenCache = cache.NewRedisCache(redisClient, "clinicflow")
			log.Info().Msg("Redis cache initialized")
		} else {
			memCache := cache.NewMemoryCache(time.Minute)
			defer memCache.Close()
			tokenCache = memCache
			log.Info().Msg("Memory cache initialized")
		}
		checks["cache"] = tokenCache
	} else {
		log.Info().Msg("Token cache disabled")
	}

	// Background work (the redis relay) stops when ctx is cancelled.
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := notify.NewHub()
	var sinks []notify.Sink
	if cfg.Notify.Backend == config.NotifyRedis {
		sinks = append(sinks, notify.NewRedisSink(redisClient, cfg.Notify.ChannelPrefix))
		relay := notify.NewRedisRelay(redisClient, cfg.Notify.ChannelPrefix, hub)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Redis notification relay stopped")
			}
		}()
	} else {
		sinks = append(sinks, hub)
	}

	var kafkaSink *notify.KafkaSink
	if len(cfg.Notify.KafkaBrokers) > 0 {
		kafkaSink = notify.NewKafkaSink(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		sinks = append(sinks, kafkaSink)
		log.Info().Strs("brokers", cfg.Notify.KafkaBrokers).Str("topic", cfg.Notify.KafkaTopic).Msg("Kafka event export enabled")
	}

	dispatcher := notify.NewDispatcher(cfg.Notify.QueueSize, cfg.Notify.SinkTimeout, sinks...)

	auditor := services.NewAuditor(st.audit)
	clinicService := services.NewClinicService(st.clinics, auditor, tokenCache, cfg.Cache.TokenTTL, cfg.Server.PublicBaseURL)
	visitService := services.NewVisitService(st.clinics, st.visits, st.prescriptions, dispatcher, auditor)
	prescriptionService := services.NewPrescriptionService(
		st.clinics, st.visits, st.prescriptions, dispatcher, auditor,
		cfg.Visits.RequireStartBeforeIssue,
	)

	router := handlers.NewRouter(handlers.RouterConfig{
		Identity: middleware.IdentityConfig{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.Auth.Issuer,
		},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
		Metrics:        cfg.Metrics.Enabled,
		Health:         handlers.NewHealthHandler(checks),
		Clinics:        handlers.NewClinicHandler(clinicService),
		Visits:         handlers.NewVisitHandler(visitService),
		Prescriptions:  handlers.NewPrescriptionHandler(prescriptionService),
		WebSocket:      handlers.NewWebSocketHandler(hub, clinicService, cfg.CORS.WebSocketOrigins),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	stop()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Notification queue not drained")
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close kafka writer")
		}
	}

	log.Info().Msg("Server stopped")
}
