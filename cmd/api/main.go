package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appaccess "github.com/bryanwahyu/facegate/internal/application/access"
	appai "github.com/bryanwahyu/facegate/internal/application/ai"
	"github.com/bryanwahyu/facegate/internal/config"
	domain "github.com/bryanwahyu/facegate/internal/domain/access"
	"github.com/bryanwahyu/facegate/internal/infra/actuator/mqttdoor"
	aiopenai "github.com/bryanwahyu/facegate/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/facegate/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/facegate/internal/infra/db/postgres"
	"github.com/bryanwahyu/facegate/internal/infra/httpserver"
	"github.com/bryanwahyu/facegate/internal/infra/recognition/ntech"
	minioStore "github.com/bryanwahyu/facegate/internal/infra/storage"
	"github.com/bryanwahyu/facegate/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect audit store
	var db *sql.DB
	var audit domain.AuditLog
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		audit = postgresp.NewAuditRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		audit = mysqlp.NewAuditRepository(db)
	}
	defer db.Close()

	// init minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	// init recognition provider
	recog := ntech.New(cfg.Ntech.BaseURL, cfg.Ntech.Token,
		time.Duration(cfg.Ntech.TimeoutSeconds)*time.Second)

	// init door publisher (connects in background, publish fails fast until up)
	door := mqttdoor.New(cfg.MQTT.BrokerURL, cfg.MQTT.Topic)
	defer door.Close()

	// init service
	svc := &appaccess.Service{
		Recog:          recog,
		Assets:         store,
		Audit:          audit,
		Door:           door,
		Clock:          appaccess.SystemClock{},
		UnlockDuration: time.Duration(cfg.Access.UnlockDurationMS) * time.Millisecond,
	}

	// AI review is optional, only wired when a key is configured
	var aiSvc *appai.Service
	if cfg.OpenAI.APIKey != "" {
		aiSvc = appai.NewService(aiopenai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model), audit)
	}

	defaults := domain.DecideOptions{
		SimilarityThreshold: cfg.Access.SimilarityThreshold,
		MaxCandidates:       cfg.Access.MaxCandidates,
		LivenessThreshold:   cfg.Access.LivenessThreshold,
	}

	// init router
	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimitMiddleware(30, 5))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	mux.Get("/health", middleware.HealthHandler(map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
		"broker":   &middleware.BrokerHealthChecker{Connected: door.Connected},
		"storage":  middleware.PingCheckFunc(store.Ping),
	}))
	mux.Get("/health/live", middleware.LivenessHandler)
	mux.Get("/health/ready", middleware.ReadinessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Mount("/", httpserver.NewRouter(svc, aiSvc, defaults, cfg.Server.APIKey))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
