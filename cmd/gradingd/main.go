package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-grading/internal/api/http"
	"github.com/mind-engage/mindengage-grading/internal/attempt"
	auth "github.com/mind-engage/mindengage-grading/internal/auth/middleware"
	"github.com/mind-engage/mindengage-grading/internal/config"
	"github.com/mind-engage/mindengage-grading/internal/db"
	"github.com/mind-engage/mindengage-grading/internal/gradebook"
	"github.com/mind-engage/mindengage-grading/internal/gradebook/agshttp"
	"github.com/mind-engage/mindengage-grading/internal/grading"
	"github.com/mind-engage/mindengage-grading/internal/logging"
	"github.com/mind-engage/mindengage-grading/internal/metrics"
	"github.com/mind-engage/mindengage-grading/internal/notify"
	"github.com/mind-engage/mindengage-grading/internal/question"
	"github.com/mind-engage/mindengage-grading/internal/review"
)

func main() {
	configDir := flag.String("config", "", "directory holding config.yaml")
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, "gradingd:", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	loader := config.NewLoader(configDir)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	log, level, err := logging.New(cfg.Log, cfg.Mode)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// Only the log level is applied live; everything else needs a restart.
	loader.Watch(func(next config.Config) {
		if err := level.UnmarshalText([]byte(next.Log.Level)); err != nil {
			log.Warn("config reload: bad log level", zap.String("level", next.Log.Level))
			return
		}
		log.Info("config reloaded", zap.String("log_level", next.Log.Level))
	}, func(err error) {
		log.Warn("config reload rejected", zap.Error(err))
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DB.Driver), cfg.DB.DSN)
	cancel()
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer dbh.Close()

	m := metrics.New()

	sinks, err := buildNotifier(ctx, cfg, dbh, m, log)
	defer sinks.close()
	if err != nil {
		return err
	}
	notifier := sinks.notifier

	// --- Services ---
	questions := question.NewSQLStore(dbh)
	engine := grading.NewEngine(
		grading.WithLogger(log.Named("grading")),
		grading.WithMetrics(m),
		grading.WithWorkers(cfg.Grading.Workers),
	)
	reviews := review.NewService(review.NewSQLStore(dbh),
		review.WithQuestions(questions),
		review.WithNotifier(notifier),
		review.WithMetrics(m),
		review.WithLogger(log.Named("review")),
		review.WithAutoClaim(cfg.Review.AutoClaim),
	)
	attempts := attempt.NewService(attempt.NewSQLStore(dbh), reviews, questions, engine,
		attempt.WithNotifier(notifier),
		attempt.WithMetrics(m),
		attempt.WithLogger(log.Named("attempt")),
	)
	if sinks.gradebook != nil {
		sinks.gradebook.SetResults(attempts)
	}

	authSvc := auth.NewAuthService(cfg.Auth.HMACSecret, cfg.Auth.TokenTTL)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.Middleware(log.Named("http")), middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "If-Match"},
		ExposedHeaders:   []string{"Content-Length", "ETag", "X-QTI-Skipped"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Auth.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, auth.Credentials{
			AdminUser:     cfg.Auth.AdminUser,
			AdminPassHash: cfg.Auth.AdminPassHash,
			DevLogins:     cfg.Mode == config.ModeOffline,
		}, log.Named("auth")))
	}

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		api.Mount(pr, api.Deps{
			Questions: questions,
			Engine:    engine,
			Review:    reviews,
			Attempts:  attempts,
			Events:    sinks.events,
			Gradebook: sinks.gradebook,
			Log:       log.Named("api"),
		})
	})

	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("mode", string(cfg.Mode)),
			zap.String("db", cfg.DB.Driver),
			zap.Strings("notify", cfg.Notify.Drivers),
			zap.String("config", loader.File()),
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type notifiers struct {
	notifier  notify.Notifier
	events    *notify.EventLog
	gradebook *gradebook.Syncer
	close     func()
}

// buildNotifier fans out to every configured driver. The event log and the
// gradebook syncer are returned separately so the API can expose them.
func buildNotifier(ctx context.Context, cfg config.Config, dbh *sql.DB, m *metrics.Metrics, log *zap.Logger) (notifiers, error) {
	var (
		out notify.Multi
		ns  = notifiers{close: func() {}}
	)
	for _, d := range cfg.Notify.Drivers {
		switch d {
		case "log":
			out = append(out, notify.Log{L: log.Named("events")})
		case "eventlog":
			ns.events = notify.NewEventLog(dbh, cfg.Notify.SiteID)
			out = append(out, ns.events)
		case "redis":
			client, err := notify.DialRedis(ctx, cfg.Notify.RedisAddr, cfg.Notify.RedisPassword, cfg.Notify.RedisDB)
			if err != nil {
				return ns, fmt.Errorf("notify redis: %w", err)
			}
			ns.close = func() { _ = client.Close() }
			out = append(out, notify.NewRedis(client, cfg.Notify.Channel))
		case "gradebook":
			gb := cfg.Gradebook
			ags := agshttp.New(agshttp.Config{
				TokenURL:     gb.TokenURL,
				ClientID:     gb.ClientID,
				ClientSecret: gb.ClientSecret,
				Scopes:       gb.Scopes,
				Timeout:      gb.Timeout,
			})
			ns.gradebook = gradebook.New(gradebook.NewSQLStore(dbh), ags,
				gradebook.WithLogger(log.Named("gradebook")),
				gradebook.WithMetrics(m),
			)
			out = append(out, ns.gradebook)
		default:
			return ns, fmt.Errorf("notify: unknown driver %q", d)
		}
	}
	if len(out) == 0 {
		ns.notifier = notify.Nop{}
		return ns, nil
	}
	ns.notifier = out
	return ns, nil
}
