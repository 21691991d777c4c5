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

	"github.com/Tyrowin/roomchat/internal/client"
)

func main() {
	addr := flag.String("addr", "localhost:12345", "chat server TCP address")
	verbose := flag.Bool("v", false, "log client diagnostics to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := client.Dial(dialCtx, *addr, os.Stdout, logger)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not reach the server: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Connected to the server.")

	if err := c.Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(1)
	}
}
