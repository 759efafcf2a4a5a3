package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/tradepost/tradepost/internal/app"
	"github.com/tradepost/tradepost/internal/config"
	"github.com/tradepost/tradepost/internal/domain"
	"github.com/tradepost/tradepost/internal/health"
	"github.com/tradepost/tradepost/internal/http/handler"
	"github.com/tradepost/tradepost/internal/http/response"
	"github.com/tradepost/tradepost/internal/http/router"
	"github.com/tradepost/tradepost/internal/observability"
	"github.com/tradepost/tradepost/internal/repository"
	"github.com/tradepost/tradepost/internal/security"
	"github.com/tradepost/tradepost/internal/service"
	"github.com/tradepost/tradepost/internal/uploads"
)

func main() {
	root := &cobra.Command{Use: "tradepost", Short: "Marketplace backend with session-based auth"}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newSeedAdminCommand())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
			if err != nil {
				return err
			}
			runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
			if err != nil {
				return err
			}
			response.SetDebugDetail(cfg.Debug)

			db, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			if err := repository.Migrate(db); err != nil {
				return err
			}

			users := repository.NewUserRepository(db)
			roles := repository.NewRoleRepository(db)
			sessionRepo := repository.NewSessionRepository(db)
			posts := repository.NewPostRepository(db)

			var throttleStore service.ThrottleStore = service.NewMemoryThrottleStore()
			checkers := []health.Checker{health.NewDatabaseChecker(db)}
			if cfg.RedisAddr != "" {
				client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
				throttleStore = service.NewRedisThrottleStore(client, "")
				checkers = append(checkers, health.NewRedisChecker(client))
			}

			sessions := service.NewSessionService(sessionRepo, cfg.SessionIdleTimeout)
			throttle := service.NewLoginThrottle(throttleStore, cfg.LoginMaxAttempts, cfg.LoginLockoutWindow)
			auth := service.NewAuthService(users, roles, sessions, throttle)
			postSvc := service.NewPostService(posts)
			uploadStore := uploads.NewDiskStore(cfg.UploadDir, cfg.UploadMaxBytes)

			readiness := health.NewProbeRunner(5*time.Second, 3*time.Second, checkers...)

			h := router.NewRouter(router.Dependencies{
				AuthHandler:    handler.NewAuthHandler(auth, sessions, uploadStore, cfg.CookieSecure),
				PostHandler:    handler.NewPostHandler(postSvc, uploadStore),
				AdminHandler:   handler.NewAdminHandler(users, postSvc, sessions),
				Sessions:       sessions,
				MaxBodyBytes:   cfg.UploadMaxBytes,
				PublicDir:      cfg.PublicDir,
				UploadDir:      cfg.UploadDir,
				Readiness:      readiness,
				EnableOTelHTTP: cfg.OTELTracesEnabled,
			})

			server := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           h,
				ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			}

			stopSweeper := app.StartSessionSweeper(sessions, cfg.SessionSweepInterval, logger)
			a := app.New(cfg, logger, server, runtime, sessions, readiness, stopSweeper)
			return a.Run(ctx)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and seed roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			if err := repository.Migrate(db); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func newSeedAdminCommand() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an account holding the admin role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !security.ValidEmail(email) {
				return fmt.Errorf("invalid admin email %q", email)
			}
			if !security.ValidPassword(password) {
				return fmt.Errorf("admin password does not meet the policy")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			if err := repository.Migrate(db); err != nil {
				return err
			}

			digest, err := security.HashPassword(password)
			if err != nil {
				return err
			}
			users := repository.NewUserRepository(db)
			user := &domain.User{FullName: name, Email: email, PasswordHash: digest}
			if err := users.Create(user); err != nil {
				return err
			}
			roles := repository.NewRoleRepository(db)
			for _, roleName := range []string{domain.RoleUser, domain.RoleAdmin} {
				role, err := roles.FindByName(roleName)
				if err != nil {
					return err
				}
				if err := users.AddRole(user.ID, role.ID); err != nil {
					return err
				}
			}
			fmt.Printf("admin %s created (id=%d)\n", email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.Flags().StringVar(&name, "name", "Administrator", "admin display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
