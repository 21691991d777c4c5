package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/events"
	"github.com/Tyrowin/roomchat/internal/history"
	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "roomchat: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := server.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := history.Open(startCtx, cfg.History, logger)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close history", "error", err)
		}
	}()

	observers := events.Multi{events.NewLogger(logger)}
	if cfg.Events.NATSURL != "" {
		publisher, err := events.ConnectNATS(cfg.Events.NATSURL, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("close nats publisher", "error", err)
			}
		}()
		observers = append(observers, publisher)
		logger.Info("publishing events to nats", "url", cfg.Events.NATSURL)
	}

	svc := chat.NewService(chat.Options{
		History:           store,
		Events:            observers,
		Logger:            logger,
		MaxNicknameLength: cfg.MaxNicknameLength,
		RateLimit: chat.RateLimit{
			Burst:          cfg.RateLimit.Burst,
			RefillInterval: cfg.RateLimit.RefillInterval,
		},
	})

	srv := server.New(cfg, svc, logger)
	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info("roomchat server started",
		"tcp_addr", cfg.TCPAddr,
		"http_addr", cfg.HTTPAddr,
		"history", cfg.History.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
