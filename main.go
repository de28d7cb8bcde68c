package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/ender-calendar-be/internal/api"
	"github.com/isdelr/ender-calendar-be/internal/auth"
	"github.com/isdelr/ender-calendar-be/internal/config"
	"github.com/isdelr/ender-calendar-be/internal/database"
	"github.com/isdelr/ender-calendar-be/internal/logger"
	"github.com/isdelr/ender-calendar-be/internal/models"
	"github.com/isdelr/ender-calendar-be/internal/policy"
	"github.com/isdelr/ender-calendar-be/internal/services"
	"github.com/isdelr/ender-calendar-be/internal/store"
	"github.com/isdelr/ender-calendar-be/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:   "calendar",
		Usage:  "Shared event calendar API server.",
		Action: serve,
		Commands: []*cli.Command{
			serveCommand(),
			createUserCommand(),
			purgeAdminEventsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Application failed")
	}
}

// application bundles what every command needs.
type application struct {
	cfg    *config.Config
	db     *sql.DB
	store  store.Store
	engine *policy.Engine
	users  *services.UserService
}

func setup(ctx context.Context) (*application, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(cfg.LogLevel, !cfg.IsProduction())

	// Set up database; accounts always live in SQLite.
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	var eventStore store.Store
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		eventStore = store.NewRedisStore(rdb)
		if err := eventStore.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis not reachable yet")
		}
	default:
		eventStore = store.NewSQLiteStore(db)
	}
	log.Info().Str("backend", cfg.StoreBackend).Msg("Event store ready")

	engine := policy.New(cfg.Admin.Email, cfg.Admin.EventPolicy)
	if cfg.Admin.Email == "" {
		log.Warn().Msg("ADMIN_EMAIL not set, nobody can publish global admin events")
	}

	return &application{
		cfg:    cfg,
		db:     db,
		store:  eventStore,
		engine: engine,
		users:  services.NewUserService(db, engine),
	}, nil
}

func (a *application) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close event store")
	}
	a.db.Close()
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API server (default).",
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	cfg := app.cfg

	if cfg.EphemeralSecret {
		log.Warn().Msg("JWT_SECRET not set, using a random development secret; sessions end on restart")
	}
	if cfg.Admin.Email != "" && cfg.Admin.Username != "" && cfg.Admin.Password != "" {
		if _, err := app.users.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return fmt.Errorf("failed to seed admin account: %w", err)
		}
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.TokenTTL))
	if err != nil {
		return err
	}
	verifiers := []auth.Verifier{tokens}
	if cfg.Identity.JWKSURL != "" {
		jwks, err := auth.NewJWKSVerifier(ctx, cfg.Identity.JWKSURL, cfg.Identity.Issuer, cfg.Identity.Audience)
		if err != nil {
			return err
		}
		verifiers = append(verifiers, jwks)
		log.Info().Str("jwks_url", cfg.Identity.JWKSURL).Msg("External identity provider enabled")
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run(ctx)

	eventService := services.NewEventService(app.store, app.engine, hub)

	// Set up router
	router := api.NewRouter(hub, auth.NewAuthenticator(verifiers...), tokens, eventService, app.users, api.Options{
		AllowedOrigins:    cfg.AllowedOrigins,
		LegacyOpenListing: cfg.LegacyOpenListing,
		SecureCookies:     cfg.IsProduction(),
	})
	if cfg.LegacyOpenListing {
		log.Warn().Msg("Legacy open listing enabled, GET /api/events returns every event")
	}

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	select {
	case err := <-errCh:
		return fmt.Errorf("ListenAndServe(): %w", err)
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exiting")
	return nil
}

func createUserCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-user",
		Usage: "Create a user account.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Required: true},
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"NEW_USER_PASSWORD"}},
		},
		Action: func(c *cli.Context) error {
			app, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer app.Close()

			user, err := app.users.CreateUser(c.Context, c.String("username"), c.String("email"), c.String("password"))
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			log.Info().Str("user_id", user.ID).Str("email", user.Email).Bool("admin", app.users.IsAdmin(user)).Msg("User created")
			return nil
		},
	}
}

func purgeAdminEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge-admin-events",
		Usage: "Delete every event created by the administrator account.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Usage: "Actually delete. Without it the command only counts."},
		},
		Action: func(c *cli.Context) error {
			app, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.cfg.Admin.Email == "" {
				return errors.New("ADMIN_EMAIL is not configured")
			}
			admin, err := app.users.GetUserByEmail(c.Context, app.cfg.Admin.Email)
			if err != nil {
				return fmt.Errorf("failed to find admin account: %w", err)
			}

			if !c.Bool("yes") {
				owned, err := app.store.QueryByOwner(c.Context, admin.ID)
				if err != nil {
					return err
				}
				log.Warn().Int("events", len(owned)).Msg("Dry run: re-run with --yes to delete these administrator events")
				return nil
			}

			events := services.NewEventService(app.store, app.engine, nil)
			n, err := events.DeleteOwnAdminEvents(c.Context, &models.Viewer{UserID: admin.ID, Email: admin.Email})
			if err != nil {
				return err
			}
			log.Info().Int("deleted", n).Msg("Administrator events deleted")
			return nil
		},
	}
}
