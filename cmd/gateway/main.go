package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/mindengage-courses/internal/access"
	api "github.com/mind-engage/mindengage-courses/internal/api/http"
	auth "github.com/mind-engage/mindengage-courses/internal/auth/middleware"
	"github.com/mind-engage/mindengage-courses/internal/catalog"
	"github.com/mind-engage/mindengage-courses/internal/config"
	"github.com/mind-engage/mindengage-courses/internal/db"
	"github.com/mind-engage/mindengage-courses/internal/events"
	"github.com/mind-engage/mindengage-courses/internal/exam"
	"github.com/mind-engage/mindengage-courses/internal/gradesync"
	"github.com/mind-engage/mindengage-courses/internal/metrics"
	"github.com/mind-engage/mindengage-courses/internal/progress"
	"github.com/mind-engage/mindengage-courses/internal/quiz"
)

func main() {
	cfg := config.Load()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	if err := auth.SeedAdmin(ctx, dbh, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	// --- Events ---
	pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		log.Fatalf("events publisher: %v", err)
	}
	defer pub.Close()
	rec := events.NewRecorder(cfg.SiteID, pub)

	// --- Engines ---
	cat := catalog.NewSQLStore(dbh)
	accessGate := access.NewGate(dbh, cfg.TrialLength, rec)
	progressGate := progress.NewGate(dbh, cat, rec)
	quizSvc := quiz.NewService(dbh, cat, progressGate, rec)
	examSvc := exam.NewService(exam.NewSQLStore(dbh), cat, rec, cfg.ExamPassScore)

	var syncer *gradesync.Syncer
	if cfg.GradebookEnabled {
		client := gradesync.NewHTTPClient(gradesync.ClientConfig{
			TokenURL:     cfg.GradebookTokenURL,
			ClientID:     cfg.GradebookClientID,
			ClientSecret: cfg.GradebookClientSecret,
			Scopes: []string{
				"https://purl.imsglobal.org/spec/lti-ags/scope/lineitem",
				"https://purl.imsglobal.org/spec/lti-ags/scope/score",
			},
		})
		syncer = gradesync.New(&gradesync.SQLStore{DB: dbh}, client, cfg.GradebookLineItemsURL, nil)
		examSvc.OnComplete(func(ctx context.Context, res exam.Result) {
			// detached: the request context ends with the response
			go func(attemptID string) {
				sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := syncer.SyncAttempt(sctx, attemptID); err != nil {
					log.Printf("gradebook sync %s: %v", attemptID, err)
				}
			}(res.ID)
		})
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.Mount(r, api.Deps{
		DB:                 dbh,
		Auth:               auth.NewAuthService(cfg.AuthHMACSecret),
		EnableLocalAuth:    cfg.EnableLocalAuth,
		AllowClaimFallback: cfg.Mode == config.ModeOffline,
		Catalog:            cat,
		Access:             accessGate,
		Progress:           progressGate,
		Quiz:               quizSvc,
		Exam:               examSvc,
		Gradebook:          syncer,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
