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

	"github.com/lkrnac/manucap-sub004/internal/api"
	"github.com/lkrnac/manucap-sub004/internal/auth"
	"github.com/lkrnac/manucap-sub004/internal/config"
	"github.com/lkrnac/manucap-sub004/internal/db"
	"github.com/lkrnac/manucap-sub004/internal/job"
	"github.com/lkrnac/manucap-sub004/internal/session"
	"github.com/lkrnac/manucap-sub004/internal/spell"
)

func main() {
	cfg := config.Load()

	// Ensure data directory exists
	os.MkdirAll(cfg.DataPath, 0755)

	// Initialize database
	database, err := db.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Ensure admin user exists
	if err := database.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}
	log.Printf("Admin user ensured: %s", cfg.AdminUsername)

	// Spell checker client
	checker := spell.NewClient(cfg.SpellCheckURL, 15*time.Second)
	log.Printf("Spell check endpoint: %s", cfg.SpellCheckURL)

	// Editing sessions
	sessions := session.NewManager(database, checker, cfg.SaveDebounce)

	// Background jobs
	jobQueue := job.NewJobQueue(database.DB())
	jobQueue.RegisterHandler(job.JobSpellCheckTrack, func(ctx context.Context, j *job.Job, progress func(float64)) error {
		s, err := sessions.Open(j.TrackID)
		if err != nil {
			return err
		}
		return s.CheckAllSpelling(ctx, progress)
	})
	jobQueue.Start()

	// Initialize JWT service
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	// Create router
	router := api.NewRouter(database, jwtService, sessions, jobQueue, cfg)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: router}

	// Graceful shutdown: flush open sessions before exit
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		jobQueue.Stop()
		sessions.CloseAll()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}
