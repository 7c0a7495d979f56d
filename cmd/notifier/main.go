package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zenphony/notifier/internal/config"
	"github.com/zenphony/notifier/internal/database"
	"github.com/zenphony/notifier/internal/logging"
	"github.com/zenphony/notifier/internal/reminder"
	"github.com/zenphony/notifier/internal/server"
)

func main() {
	testUser := flag.String("test", "", "send a test notification to the given user id and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.Environment)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	engine, err := reminder.NewEngine(reminder.ZoneName)
	if err != nil {
		logger.Error("load time zone", "error", err)
		os.Exit(1)
	}

	srv := server.New(db, cfg, engine, logger)

	if *testUser != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		res, err := srv.Dispatcher().DispatchTest(ctx, *testUser)
		if err != nil {
			logger.Error("test dispatch", "user", *testUser, "error", err)
			os.Exit(1)
		}
		logger.Info("test notification sent", "user", *testUser, "sent", res.Sent, "failed", res.Failed, "total", res.Total)
		return
	}

	if err := srv.Dispatcher().Start(); err != nil {
		logger.Error("start dispatcher", "error", err)
		os.Exit(1)
	}
	defer srv.Dispatcher().Stop()

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			srv.RateLimiter().Cleanup()
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("notifier listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
