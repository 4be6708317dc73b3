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

	"github.com/redis/go-redis/v9"

	"github.com/casescope/hub/internal/authority"
	"github.com/casescope/hub/internal/config"
	"github.com/casescope/hub/internal/db"
	"github.com/casescope/hub/internal/engine"
	"github.com/casescope/hub/internal/router"
	"github.com/casescope/hub/internal/service"
	"github.com/casescope/hub/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	database, err := db.Open(cfg)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database, cfg.DBDriver); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	log.Println("audit database migrations applied")

	objStore, err := store.NewMinioStore(store.MinioOptions{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("object store: %v", err)
	}

	auth := authority.NewHTTPClient(cfg.AuthorityBaseURL)
	eng := engine.NewHTTPEngine(cfg.EngineBaseURL, cfg.EnginePollLimit,
		time.Duration(cfg.EnginePollMillis)*time.Millisecond)

	var threadStore service.ThreadStore
	switch cfg.ThreadStore {
	case "redis":
		threadStore = service.NewRedisThreadStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	default:
		threadStore = service.NewMemoryThreadStore()
	}

	audit := service.NewAuditService(database)
	dir := service.NewDirectory(auth, objStore, cfg.SystemUsername, cfg.SystemPassword)
	authSvc := service.NewAuthService(auth, dir, cfg.JWTSecret, cfg.TokenExpiryHours)
	threads := service.NewThreadManager(threadStore, eng)
	resolver := service.NewResolver(objStore, eng, audit, cfg.SignURLTTLHours)
	pipeline := service.NewPipeline(threads, eng, resolver, audit)

	handler := router.New(cfg, router.Deps{
		Auth:     authSvc,
		Pipeline: pipeline,
		Resolver: resolver,
		Threads:  threads,
		Dir:      dir,
		Audit:    audit,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // generation turns can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Root context cancelled on shutdown — propagates to the scheduler.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	scheduler := service.NewSyncScheduler(dir, time.Duration(cfg.SyncIntervalMinutes)*time.Minute)
	go scheduler.Start(rootCtx)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("casescope hub listening on :%s (thread_store=%s db=%s)", cfg.Port, cfg.ThreadStore, cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-done
	log.Println("shutting down...")
	rootCancel() // stop scheduler

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("stopped")
}
