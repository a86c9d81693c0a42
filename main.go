package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/goals-be/internal/api"
	"github.com/isdelr/goals-be/internal/auth"
	"github.com/isdelr/goals-be/internal/config"
	"github.com/isdelr/goals-be/internal/database"
	"github.com/isdelr/goals-be/internal/logger"
	"github.com/isdelr/goals-be/internal/monitoring"
	"github.com/isdelr/goals-be/internal/services"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "goals-server",
		Short:         "Personal goals API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default $CONFIG_FILE)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, db, err := setup(cmd.Context(), configPath)
				if err != nil {
					return err
				}
				return db.Close()
			},
		},
		&cobra.Command{
			Use:   "prune-events",
			Short: "Delete activity events older than the retention period and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, db, err := setup(cmd.Context(), configPath)
				if err != nil {
					return err
				}
				defer db.Close()

				scheduler := monitoring.NewScheduler(services.NewEventService(db), cfg.EventRetention, cfg.PruneSchedule)
				n, err := scheduler.PruneOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Pruned %d events\n", n)
				return nil
			},
		},
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// setup loads configuration, initialises logging and opens the migrated
// database.
func setup(ctx context.Context, configPath string) (*config.Config, *database.DB, error) {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, nil, fmt.Errorf("failed to initialise logger: %w", err)
	}

	// Set up database
	db, err := database.New(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return cfg, db, nil
}

func serve(configPath string) error {
	cfg, db, err := setup(context.Background(), configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.EphemeralSecret {
		log.Warn().Msg("JWT_SECRET is not set; using a random secret, tokens will not survive a restart")
	}

	// Set up auth
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	hasher, err := auth.NewHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}

	// Set up services
	eventService := services.NewEventService(db)
	userService := services.NewUserService(db, hasher, eventService)
	goalService := services.NewGoalService(db, eventService)

	// Set up and run the background scheduler
	scheduler := monitoring.NewScheduler(eventService, cfg.EventRetention, cfg.PruneSchedule)
	if err := scheduler.Start(); err != nil {
		return err
	}

	// Set up router
	router := api.NewRouter(api.Deps{
		Users:       userService,
		Goals:       goalService,
		Events:      eventService,
		Tokens:      tokens,
		Limiter:     auth.NewLimiter(cfg.AuthRatePerMinute, cfg.AuthBurst),
		DB:          db,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("env", cfg.Env).Str("driver", cfg.DatabaseDriver).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("ListenAndServe(): %w", err)
	}
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	scheduler.Stop(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exiting")
	return nil
}
