package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/careloop/booking-platform/internal/config"
	"github.com/careloop/booking-platform/internal/notifications"
	"github.com/careloop/booking-platform/pkg/logging"
)

// Tails the notification stream for one user and prints each event as a
// JSON line. Handy for verifying delivery end to end without a browser.
// Reconnect behavior follows STREAM_MAX_ATTEMPTS and STREAM_BACKOFF_STEP.
func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "API base URL")
	token := flag.String("token", os.Getenv("LISTEN_TOKEN"), "bearer token of the stream user")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	if *token == "" {
		logger.Error("token required via -token or LISTEN_TOKEN")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens := notifications.TokenSource(func(context.Context) (string, error) {
		return *token, nil
	})
	client := notifications.NewStreamClient(*baseURL, tokens, cfg.StreamMaxAttempts, cfg.StreamBackoffStep, logger)

	err := client.Run(ctx, func(n notifications.Notification) {
		line, mErr := json.Marshal(n)
		if mErr != nil {
			logger.Error("failed to encode notification", "error", mErr)
			return
		}
		fmt.Println(string(line))
	})
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, notifications.ErrRetriesExhausted):
		logger.Error("stream closed after exhausting retries", "error", err)
		os.Exit(1)
	default:
		logger.Error("stream failed", "error", err)
		os.Exit(1)
	}
}
