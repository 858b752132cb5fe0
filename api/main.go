package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"techmatch/api/auth"
	"techmatch/api/config"
	"techmatch/api/handler"
	"techmatch/api/hub"
	"techmatch/api/model"
	"techmatch/api/monitor"
	"techmatch/api/report"
	"techmatch/api/sla"
	"techmatch/api/storage"
	"techmatch/api/store"
	"techmatch/api/timeline"
)

var Version = "dev"

func main() {
	cfg := config.Load()

	policy := model.DefaultSLAPolicy()
	if cfg.SLAPolicy != "" {
		p, err := model.LoadSLAPolicy(cfg.SLAPolicy)
		if err != nil {
			log.Fatalf("sla policy: %v", err)
		}
		policy = p
		log.Printf("SLA policy loaded from %s", cfg.SLAPolicy)
	}

	db, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		log.Fatalf("migration: %v", err)
	}

	var s3Client *storage.Client
	if cfg.S3Endpoint != "" {
		s3Client, err = storage.NewClient(storage.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Printf("WARNING: S3 storage unavailable (%v)", err)
			s3Client = nil
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s3Client.EnsureBucket(ctx, cfg.S3Bucket); err != nil {
				log.Printf("WARNING: S3 bucket %s: %v", cfg.S3Bucket, err)
			}
			cancel()
			log.Println("S3 storage connected at " + s3Client.Endpoint())
		}
	}

	// Parse allowed origins: always include localhost, plus configured extras.
	allowedOrigins := []string{"http://localhost:5173", "http://localhost:3000"}
	if cfg.AllowedOrigins != "" {
		for _, o := range strings.Split(cfg.AllowedOrigins, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}

	ws := hub.New(allowedOrigins)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go ws.Run(hubCtx)

	evaluator := sla.NewEvaluator(nil)
	events := timeline.NewPostgresStore(db.Pool)

	mon := &monitor.Monitor{
		DB:           db,
		WS:           ws,
		Events:       events,
		Evaluator:    evaluator,
		Interval:     cfg.MonitorInterval,
		MarkBreaches: cfg.MarkBreaches,
	}
	monCtx, monCancel := context.WithCancel(context.Background())
	defer monCancel()
	go mon.Run(monCtx)

	var archive report.Archiver
	if s3Client != nil {
		archive = s3Client
	}
	reports := report.New(db, archive, cfg.S3Bucket, evaluator)
	if err := reports.Schedule(cfg.ReportSchedule); err != nil {
		log.Fatalf("report schedule: %v", err)
	}
	reports.Start()

	h := handler.New(db, events, ws, evaluator, policy).
		WithMonitor(mon).
		WithReports(reports)
	if s3Client != nil {
		h.WithObjectStore(s3Client)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", auth.AssertionHeader},
		AllowCredentials: true,
	}))

	if cfg.AccessTeamDomain != "" && cfg.AccessAUD != "" {
		validator := auth.NewValidator(cfg.AccessTeamDomain, cfg.AccessAUD)
		r.Use(validator.Middleware)
		log.Println("access auth enabled")
	}

	if cfg.APIToken != "" {
		r.Use(bearerAuth(cfg.APIToken))
		log.Println("API token auth enabled")
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"version": Version})
		})
		r.Get("/jobs", h.ListJobs)
		r.Post("/jobs", h.CreateJob)
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Use(handler.ValidateJobID)
			r.Get("/", h.GetJob)
			r.Get("/sla", h.GetJobSLA)
			r.Get("/events", h.ListJobEvents)
			r.Post("/assign", h.AssignJob)
			r.Post("/stages/{stage}/complete", h.CompleteStage)
			r.Post("/cancel", h.CancelJob)
		})
		r.Get("/events", h.ListRecentEvents)
		r.Get("/sla/overview", h.Overview)
		r.Post("/sla/evaluate", h.Evaluate)
		r.Get("/reports/latest", h.LatestReport)
		r.Post("/reports/run", h.RunReport)
	})

	r.Get("/ws", ws.HandleConnect)

	if cfg.UIDir != "" {
		fileServer(r, cfg.UIDir)
	}

	srv := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("techmatch %s listening on %s:%s", Version, cfg.BindAddr, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	monCancel()
	reports.Stop()
	hubCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for WebSocket upgrade and health check
			if r.URL.Path == "/ws" || r.URL.Path == "/api/health" || r.URL.Path == "/api/version" {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(header[7:]), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func fileServer(r chi.Router, dir string) {
	fs := http.FileServer(http.Dir(dir))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(dir + r.URL.Path); os.IsNotExist(err) {
			http.ServeFile(w, r, dir+"/index.html")
			return
		}
		fs.ServeHTTP(w, r)
	})
}
