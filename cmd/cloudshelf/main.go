package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cloudshelf/cloudshelf/internal/api"
	"github.com/cloudshelf/cloudshelf/internal/config"
	"github.com/cloudshelf/cloudshelf/internal/db"
	"github.com/cloudshelf/cloudshelf/internal/jobs"
	"github.com/cloudshelf/cloudshelf/internal/refresh"
	"github.com/cloudshelf/cloudshelf/internal/scheduler"
	"github.com/cloudshelf/cloudshelf/internal/version"
)

func main() {
	cfg := config.Load()

	if cfg.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}))
	}

	ver := version.Load()
	log.Printf("CloudShelf %s starting...", ver.Version)

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	cfg.MergeFromDB(database.DB)

	// Fail fast if Redis is unreachable; asynq only surfaces connection
	// problems once the worker loop is running.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	pingErr := rdb.Ping(pingCtx).Err()
	cancelPing()
	rdb.Close()
	if pingErr != nil {
		log.Fatalf("redis connection failed: %v", pingErr)
	}

	queue := jobs.NewQueue(cfg.RedisAddr)
	cache := refresh.NewCache()

	srv, err := api.NewServer(cfg, database, queue, cache)
	if err != nil {
		log.Fatalf("server init failed: %v", err)
	}

	jobs.RegisterHandlers(queue, cfg, srv.TaskRepo(), srv.SettingsRepo(), cache, srv.WSHub())

	if err := queue.Start(context.Background()); err != nil {
		log.Fatalf("job queue failed to start: %v", err)
	}

	sched := scheduler.New(func() {
		if _, err := jobs.StartRefresh(cfg, srv.TaskRepo(), queue, false, nil); err != nil {
			log.Printf("[scheduler] scheduled refresh not started: %v", err)
		}
	})
	srv.SetScheduler(sched)
	if err := sched.Start(cfg.RefreshSchedule); err != nil {
		log.Printf("[scheduler] ignoring stored schedule: %v", err)
	}

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("listening on :%d", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
	sched.Stop()
	queue.Stop()
}
