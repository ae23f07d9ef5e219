package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/caresched/caresched/internal/config"
	"github.com/caresched/caresched/internal/domain/scheduling"
	"github.com/caresched/caresched/internal/platform/auth"
	"github.com/caresched/caresched/internal/platform/db"
	"github.com/caresched/caresched/internal/platform/meeting"
	"github.com/caresched/caresched/internal/platform/middleware"
	"github.com/caresched/caresched/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "caresched-server",
		Short: "Appointment scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			return nil
		},
	})

	return cmd
}

// tokenCmd issues a signed token for manual testing against a running server.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			userStr, _ := cmd.Flags().GetString("user")
			providerStr, _ := cmd.Flags().GetString("provider")
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSecret == "" {
				return fmt.Errorf("AUTH_SECRET is not configured")
			}

			userID := uuid.New()
			if userStr != "" {
				if userID, err = uuid.Parse(userStr); err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
			}

			claims := auth.Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   userID.String(),
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
					IssuedAt:  jwt.NewNumericDate(time.Now()),
				},
				Role:  role,
				Email: email,
			}
			if providerStr != "" {
				if _, err := uuid.Parse(providerStr); err != nil {
					return fmt.Errorf("invalid --provider: %w", err)
				}
				claims.ProviderID = providerStr
			}

			token, err := auth.IssueToken([]byte(cfg.AuthSecret), claims)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("role", "patient", "Role claim: patient, provider or admin")
	cmd.Flags().String("user", "", "User id (defaults to a fresh uuid)")
	cmd.Flags().String("provider", "", "Provider id, for provider tokens")
	cmd.Flags().String("email", "", "Email claim")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Storage
	var (
		slots     scheduling.SlotRepository
		appts     scheduling.AppointmentRepository
		meetings  scheduling.MeetingRepository
		waitlist  scheduling.WaitlistRepository
		txRunner  scheduling.TxRunner
		dbHealthy echo.HandlerFunc
	)
	switch cfg.Store {
	case "memory":
		store := scheduling.NewMemStore()
		slots = store.Slots()
		appts = store.Appointments()
		meetings = store.Meetings()
		waitlist = store.Waitlist()
		txRunner = store
		logger.Warn().Msg("using in-memory store, data will not survive restarts")
	default:
		pgPool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to database")

		slots = scheduling.NewSlotRepoPG(pgPool)
		appts = scheduling.NewAppointmentRepoPG(pgPool)
		meetings = scheduling.NewMeetingRepoPG(pgPool)
		waitlist = scheduling.NewWaitlistRepoPG(pgPool)
		txRunner = db.NewTxRunner(pgPool)
		dbHealthy = db.HealthHandler(pgPool)
	}

	// Meeting provider
	var provisioner meeting.Provisioner
	switch cfg.MeetingProvider {
	case "zoom":
		provisioner = meeting.NewZoom(meeting.ZoomConfig{
			AccountID:    cfg.ZoomAccountID,
			ClientID:     cfg.ZoomClientID,
			ClientSecret: cfg.ZoomClientSecret,
		}, 15*time.Second)
	default:
		provisioner = meeting.NewSimulated(cfg.MeetingBaseURL)
	}
	logger.Info().Str("provider", provisioner.Name()).Msg("meeting provisioning configured")

	// Notifications
	sender := &notification.LogEmailSender{Logger: logger}
	manager := notification.NewManager(sender, notification.NewTemplateEngine())
	notifier := scheduling.NewEmailNotifier(manager)

	// Core service
	window := scheduling.AccessWindow{Lead: cfg.JoinWindowLead(), Trail: cfg.JoinWindowTrail()}
	svc := scheduling.NewService(txRunner, slots, appts, meetings, waitlist, provisioner, notifier, window)
	handler := scheduling.NewHandler(svc)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	// Health checks, outside auth
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if dbHealthy != nil {
		e.GET("/health/db", dbHealthy)
	}

	// API group
	apiV1 := e.Group("/api/v1")

	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware([]byte(cfg.AuthSecret)))
	} else {
		apiV1.Use(auth.JWTMiddleware([]byte(cfg.AuthSecret)))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	handler.RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
