package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"equiptrack.io/internal/audit"
	"equiptrack.io/internal/auth"
	"equiptrack.io/internal/config"
	"equiptrack.io/internal/equipment"
	"equiptrack.io/internal/files"
	"equiptrack.io/internal/httpapi"
	"equiptrack.io/internal/obs"
	"equiptrack.io/internal/ratelimit"
)

var version = "0.3.0"

func main() {
	obs.Init()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.AuthSecret == "" {
		log.Fatal("missing EQUIPTRACK_AUTH_SECRET")
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("missing EQUIPTRACK_PG_DSN")
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	authSvc, err := auth.NewService(auth.NewPGStore(db), cfg.AuthSecret,
		auth.WithTokenTTL(cfg.TokenTTL))
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	equipStore := equipment.NewPGStore(db)
	equipSvc := equipment.NewService(equipStore)

	disk, err := files.NewDiskStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("upload dir: %v", err)
	}
	fileSvc := files.NewService(files.NewPGStore(db), disk, equipStore)

	recorder := audit.NewRecorder(audit.NewPGSink(db))
	defer recorder.Close()

	ctx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()

	var limiter ratelimit.Store
	switch cfg.RateLimitBackend {
	case config.RateLimitPostgres:
		pg := ratelimit.NewPostgres(db, cfg.RateLimitMax, cfg.RateLimitWindow)
		pg.StartSweeper(ctx, cfg.RateLimitWindow)
		limiter = pg
	default:
		mem := ratelimit.NewMemory(cfg.RateLimitMax, cfg.RateLimitWindow)
		mem.StartSweeper(ctx, cfg.RateLimitWindow)
		limiter = mem
	}

	api := httpapi.New(httpapi.Options{
		Auth:       authSvc,
		Equipment:  equipSvc,
		Files:      fileSvc,
		Disk:       disk,
		Recorder:   recorder,
		Limiter:    limiter,
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Version:    version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting equiptrack-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = db.Close()
	log.Println("Stopped")
}
