package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lkrnac/manucap-sub004/internal/api/handlers"
	"github.com/lkrnac/manucap-sub004/internal/api/middleware"
	"github.com/lkrnac/manucap-sub004/internal/auth"
	"github.com/lkrnac/manucap-sub004/internal/config"
	"github.com/lkrnac/manucap-sub004/internal/db"
	"github.com/lkrnac/manucap-sub004/internal/job"
	"github.com/lkrnac/manucap-sub004/internal/session"
)

func NewRouter(database *db.Database, jwtService *auth.JWTService, sessions *session.Manager, jobQueue *job.JobQueue, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(middleware.CORSHandler(cfg.CORSOrigins)))
	r.Use(middleware.MaxBodySize(1 << 20))

	// Handlers
	authHandler := handlers.NewAuthHandler(database, jwtService)
	tracksHandler := handlers.NewTracksHandler(database, sessions)
	commandsHandler := handlers.NewCommandsHandler(sessions)
	jobsHandler := handlers.NewJobsHandler(database, jobQueue)

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)
	spellLimiter := middleware.NewRateLimiter(120, time.Minute)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Auth (public)
		r.With(loginLimiter.Handler).Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(jwtService))

			// Auth
			r.Get("/auth/me", authHandler.Me)

			// Tracks
			r.Get("/tracks", tracksHandler.ListTracks)
			r.With(middleware.RequireRole("admin")).Post("/tracks", tracksHandler.CreateTrack)
			r.Get("/tracks/{trackID}", tracksHandler.GetTrack)
			r.Delete("/tracks/{trackID}/session", tracksHandler.CloseSession)

			// Editing
			r.Get("/tracks/{trackID}/cues", tracksHandler.GetCues)
			r.Get("/tracks/{trackID}/rows", tracksHandler.GetRows)
			r.Get("/tracks/{trackID}/alerts", tracksHandler.GetAlerts)
			r.Post("/tracks/{trackID}/commands", commandsHandler.Apply)
			r.Post("/tracks/{trackID}/cues/{index}/comments", tracksHandler.AddComment)

			// Import / export
			r.Post("/tracks/{trackID}/import", tracksHandler.ImportVTT)
			r.Get("/tracks/{trackID}/export", tracksHandler.ExportVTT)

			// Spelling
			r.With(spellLimiter.Handler).Post("/tracks/{trackID}/cues/{index}/spellcheck", tracksHandler.CheckSpelling)
			r.Post("/tracks/{trackID}/ignores", tracksHandler.IgnoreKeyword)
			r.Post("/tracks/{trackID}/spellcheck", jobsHandler.StartSpellCheck)
			r.Get("/tracks/{trackID}/jobs", jobsHandler.ListJobs)
			r.Get("/jobs/{jobID}", jobsHandler.GetJob)
			r.Delete("/jobs/{jobID}", jobsHandler.CancelJob)

			// Search / replace
			r.Get("/tracks/{trackID}/search", tracksHandler.Search)
			r.Post("/tracks/{trackID}/replace", tracksHandler.Replace)
		})
	})

	return r
}
