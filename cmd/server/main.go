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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/sujalbistaa/kiwiblue/internal/chat"
	"github.com/sujalbistaa/kiwiblue/internal/config"
	"github.com/sujalbistaa/kiwiblue/internal/db"
	"github.com/sujalbistaa/kiwiblue/internal/feed"
	"github.com/sujalbistaa/kiwiblue/internal/jobs"
	routes "github.com/sujalbistaa/kiwiblue/internal/http"
	"github.com/sujalbistaa/kiwiblue/internal/referral"
	"github.com/sujalbistaa/kiwiblue/internal/scheduler"
	"github.com/sujalbistaa/kiwiblue/internal/store"
	"github.com/sujalbistaa/kiwiblue/internal/swipe"
	"github.com/sujalbistaa/kiwiblue/internal/ws"
)

var skipMigrate bool

var rootCmd = &cobra.Command{
	Use:   "kiwiblue",
	Short: "KiwiBlue matching and monetization engine",
	Long: `KiwiBlue serves the swipe deck, settles contact unlocks and referral
rewards, and keeps the conversation ledger with live push.

Run with no subcommand to start the server.`,
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not run migrations on startup")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	database, err := db.Init(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	log.Println("Running database migrations...")
	if err := db.Migrate(database); err != nil {
		return err
	}
	log.Println("Migrations complete.")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 1. Initialize Database
	database, err := db.Init(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	// 2. Run Migrations
	if !skipMigrate {
		log.Println("Running database migrations...")
		if err := db.Migrate(database); err != nil {
			return err
		}
		log.Println("Migrations complete.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize WebSocket Hub, relayed through Redis when configured
	hub := ws.NewHub()
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		if err := hub.Relay(ctx, rdb); err != nil {
			return err
		}
		log.Println("Push relay via Redis enabled")
	}
	go hub.Run()
	defer hub.Close()

	// 4. Services
	st := store.New(database)
	env := &routes.Env{
		Feed:   feed.NewComposer(st),
		Jobs:   jobs.NewBoard(st),
		Swipes: swipe.NewProcessor(st, swipe.Options{DailyQuota: cfg.DailyQuota, ReceiptTTL: cfg.ReceiptTTL}),
		Referrals: referral.NewSettlement(st, referral.Rewards{
			ReferrerCredits: cfg.ReferrerCredits,
			ReferrerQuota:   cfg.ReferrerQuota,
			ReferredCredits: cfg.ReferredCredits,
			ReferredQuota:   cfg.ReferredQuota,
		}),
		Chat: chat.NewLedger(st, hub),
		Hub:  hub,
	}

	// 5. Initialize Gin Router and Routes
	router := gin.Default()
	limiters := routes.SetupRoutes(router, env, routes.Options{
		CORSOrigin:   cfg.CORSOrigin,
		AdminToken:   cfg.AdminToken,
		SwipeRPS:     cfg.SwipeRPS,
		SwipeBurst:   cfg.SwipeBurst,
		MessageRPS:   cfg.MessageRPS,
		MessageBurst: cfg.MessageBurst,
	})

	// 6. Housekeeping
	pruners := make([]scheduler.Pruner, 0, len(limiters))
	for _, l := range limiters {
		pruners = append(pruners, l)
	}
	sched := scheduler.New(st, pruners...)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Println("Server exiting")
	return nil
}
