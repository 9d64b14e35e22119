package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/supportrelay/chatwoot-ai-bridge/internal/ai"
	"github.com/supportrelay/chatwoot-ai-bridge/internal/chatwoot"
	"github.com/supportrelay/chatwoot-ai-bridge/internal/config"
	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/logger"
	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/sl"
	"github.com/supportrelay/chatwoot-ai-bridge/internal/tasks"
)

func main() {
	_ = godotenv.Load()

	conf := config.MustLoad()
	log := logger.Setup(conf.Env)

	log.Info("starting chatwoot-ai-bridge", slog.String("env", conf.Env))
	log.Debug("debug messages enabled")

	// --- DB ---
	db, err := sql.Open("postgres", conf.DatabaseURL)
	if err != nil {
		log.Error("db open", sl.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Error("db ping", sl.Err(err))
		os.Exit(1)
	}
	if err := chatwoot.EnsureSchema(ctx, db); err != nil {
		log.Error("ensure schema", sl.Err(err))
		os.Exit(1)
	}
	log.Info("database ready")

	// --- Chatwoot side ---
	client := chatwoot.NewClient(
		conf.Chatwoot.BaseURL,
		conf.Chatwoot.AccountID,
		conf.Chatwoot.APIToken,
		conf.HTTPTimeout,
		log,
	)
	store := chatwoot.NewStore(db, log)

	teams := chatwoot.NewTeamDirectory(client, conf.TeamCache.TTL, conf.TeamCache.Enabled, log)
	if conf.TeamCache.Enabled {
		if mapping, err := teams.Refresh(ctx); err != nil {
			log.Warn("initial team cache refresh failed", sl.Err(err))
		} else {
			log.Info("team cache initialized", slog.Int("teams", len(mapping)))
		}
	} else {
		log.Info("team caching disabled, teams fetched per lookup")
	}

	// --- AI backend ---
	var backend ai.Backend
	switch conf.AI.Provider {
	case "openai":
		backend = ai.NewOpenAIBackend(conf.AI.OpenAIKey, conf.AI.OpenAIModel, log)
	default:
		backend = ai.NewDifyClient(conf.AI.DifyAPIURL, conf.AI.DifyAPIKey, conf.HTTPTimeout, log)
	}
	log.Info("ai backend selected", slog.String("provider", conf.AI.Provider))

	// --- Background tasks ---
	dispatcher := tasks.NewDispatcher(tasks.Options{
		Workers:    conf.Tasks.Workers,
		QueueSize:  conf.Tasks.QueueSize,
		Retries:    conf.Tasks.Retries,
		Backoff:    conf.Tasks.Backoff,
		JobTimeout: conf.Tasks.JobTimeout,
	}, log)
	defer dispatcher.Close()

	// --- Service + router ---
	svc := chatwoot.NewService(store, client, backend, teams, dispatcher, chatwoot.Notices{
		OpenedExternal: conf.Messages.OpenedExternal,
		ErrorInternal:  conf.Messages.ErrorInternal,
	}, log)
	handler := chatwoot.NewHandler(svc, db, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	chatwoot.RegisterRoutes(r, handler)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	log.Info("listening", slog.String("port", conf.Port))
	if err := http.ListenAndServe(":"+conf.Port, r); err != nil {
		log.Error("server error", sl.Err(err))
		os.Exit(1)
	}
}
