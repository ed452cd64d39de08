package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetworks/fleetgate/internal/access"
	"github.com/fleetworks/fleetgate/internal/auth"
	"github.com/fleetworks/fleetgate/internal/db/bunx"
	"github.com/fleetworks/fleetgate/internal/repository"
	"github.com/fleetworks/fleetgate/internal/server"
	"github.com/fleetworks/fleetgate/internal/services/groups"
	"github.com/fleetworks/fleetgate/internal/services/iam"
	"github.com/fleetworks/fleetgate/internal/services/robots"
	"github.com/fleetworks/fleetgate/internal/services/settings"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fleet access API server",
	Long:  `Starts the HTTP server exposing the auth, group, robot, and settings endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required")
		}

		// Connect to database
		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		log.Printf("Connected to database")

		// Initialize repositories
		userRepo := repository.NewBunUserRepository(db)
		groupRepo := repository.NewBunGroupRepository(db)
		robotRepo := repository.NewBunRobotRepository(db)
		permRepo := repository.NewBunPermissionRepository(db)
		settingRepo := repository.NewBunSettingRepository(db)

		issuer, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			return fmt.Errorf("configure token issuer: %w", err)
		}

		rules := access.Ruleset{GroupMemberUsage: cfg.GroupMemberUsage}

		// Initialize services
		iamService := iam.NewService(userRepo, issuer)
		groupService := groups.NewService(groupRepo, userRepo)
		robotService := robots.NewService(robotRepo, permRepo, groupRepo, userRepo, rules)
		settingService := settings.NewService(settingRepo, robotRepo, permRepo)

		// Assemble the shared router with the production wiring.
		handler := server.NewH2CHandler(server.RouterOptions{
			IAMService:     iamService,
			GroupService:   groupService,
			RobotService:   robotService,
			SettingService: settingService,
			Verifier:       issuer,
		})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s", cfg.ServerAddr)
			serverErrors <- srv.ListenAndServe()
		}()

		// Wait for interrupt signal
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Printf("Received signal %v, shutting down gracefully", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			log.Printf("Server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
