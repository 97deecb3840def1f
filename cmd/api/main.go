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
	"github.com/redis/go-redis/v9"

	"github.com/luckysitara/fluffy-succotash/internal/audit"
	"github.com/luckysitara/fluffy-succotash/internal/auth"
	"github.com/luckysitara/fluffy-succotash/internal/cases"
	"github.com/luckysitara/fluffy-succotash/internal/httpapi"
	"github.com/luckysitara/fluffy-succotash/internal/migrate"
	"github.com/luckysitara/fluffy-succotash/internal/obs"
)

var version = "1.0.0"

func main() {
	obs.Init()

	dsn := os.Getenv("CASEFILE_PG_DSN")
	if dsn == "" {
		log.Fatal("CASEFILE_PG_DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Initial super admin, applied only on an empty users table.
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := migrate.EnsureAdmin(bootCtx, db,
		os.Getenv("CASEFILE_ADMIN_USERNAME"),
		os.Getenv("CASEFILE_ADMIN_EMAIL"),
		os.Getenv("CASEFILE_ADMIN_PASSWORD")); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}
	bootCancel()

	// Reset tokens live in Redis when configured, in memory otherwise.
	var resets auth.ResetTokenStore
	if addr := os.Getenv("CASEFILE_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("CASEFILE_REDIS_PASSWORD"),
		})
		resets = auth.NewRedisResetStore(client)
	}

	userStore := auth.NewPGUserStore(db)
	orgStore := auth.NewPGOrganizationStore(db)
	authSvc, err := auth.NewService(userStore, orgStore, resets)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	uploadDir := os.Getenv("CASEFILE_UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	fileStore, err := cases.NewLocalFileStore(uploadDir)
	if err != nil {
		log.Fatalf("file store: %v", err)
	}
	caseSvc, err := cases.NewService(
		cases.NewPGCaseStore(db),
		cases.NewPGAssignmentStore(db),
		cases.NewPGEvidenceStore(db),
		fileStore,
		userStore,
		orgStore,
	)
	if err != nil {
		log.Fatalf("case service: %v", err)
	}

	recorder, err := audit.NewRecorder(audit.NewPGStore(db))
	if err != nil {
		log.Fatalf("audit recorder: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, authSvc, caseSvc, recorder, httpapi.Config{
		Version: version,
	})

	addr := os.Getenv("CASEFILE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting casefile-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
