package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sessionworks/authgate/internal/storage/mongodb"
	"github.com/sessionworks/authgate/internal/storage/postgres"
	"github.com/sessionworks/authgate/modules/authapi"
	"github.com/sessionworks/authgate/pkg/auth"
	"github.com/sessionworks/authgate/pkg/config"
	"github.com/sessionworks/authgate/pkg/httpserver"
	"github.com/sessionworks/authgate/pkg/idp"
	"github.com/sessionworks/authgate/pkg/logger"
	"github.com/sessionworks/authgate/pkg/mongo"
	"github.com/sessionworks/authgate/pkg/pg"
	"github.com/sessionworks/authgate/pkg/session"
)

type appConfig struct {
	Env   string `env:"APP_ENV" envDefault:"development"`
	Store string `env:"AUTH_STORE" envDefault:"postgres"`
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("authgate exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var appCfg appConfig
	config.MustLoad(&appCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Env, "authgate"))

	var sessionCfg session.Config
	config.MustLoad(&sessionCfg)
	sessions, err := session.New(sessionCfg)
	if err != nil {
		// No fallback secret: refusing to start beats signing tokens with a
		// value an attacker can guess.
		return fmt.Errorf("session service: %w", err)
	}

	store, err := openStorage(ctx, appCfg.Store, log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	var idpCfg idp.Config
	config.MustLoad(&idpCfg)
	verifier := idp.New(idpCfg)

	passwordAuth := auth.NewPasswordService(store, auth.WithPasswordLogger(log))
	federatedAuth := auth.NewFederatedService(store, verifier, auth.WithFederatedLogger(log))

	api := authapi.NewService(passwordAuth, federatedAuth, sessions, store,
		authapi.WithLogger(log),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Mount("/auth", api.Handle())

	var httpCfg httpserver.Config
	config.MustLoad(&httpCfg)

	return httpserver.New(httpCfg, log).Run(ctx, r)
}

// openStorage selects the repository backend. Postgres is the default;
// MongoDB is kept for deployments that already run their user store there.
func openStorage(ctx context.Context, store string, log *slog.Logger) (auth.Storage, error) {
	switch store {
	case "postgres":
		var cfg pg.Config
		config.MustLoad(&cfg)

		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
			return nil, err
		}
		return postgres.New(pool), nil

	case "mongodb":
		var cfg mongo.Config
		config.MustLoad(&cfg)

		db, err := mongo.NewWithDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s := mongodb.New(db)
		if err := s.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown AUTH_STORE %q", store)
	}
}
