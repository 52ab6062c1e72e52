package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kapu/hololive-widget-go/internal/server"
	"github.com/kapu/hololive-widget-go/internal/util"
	"github.com/kapu/hololive-widget-go/internal/watch"
	"go.uber.org/zap"
)

var (
	wsURL     = flag.String("url", "ws://localhost:8080/ws", "Widget server WebSocket endpoint")
	target    = flag.String("target", "", "Display target to subscribe to, e.g. event-42")
	retries   = flag.Int("retries", 5, "Reconnect attempts before giving up")
	retryWait = flag.Duration("retry-delay", 5*time.Second, "Delay between reconnect attempts")
	logLevel  = flag.String("log-level", "info", "Log level")
)

func main() {
	flag.Parse()
	if *target == "" {
		fmt.Fprintln(os.Stderr, "-target is required")
		os.Exit(2)
	}

	logger, err := util.NewLogger(*logLevel, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client := watch.NewClient(watch.Config{
		URL:                  *wsURL,
		Target:               *target,
		MaxReconnectAttempts: *retries,
		ReconnectDelay:       *retryWait,
	}, logger)
	client.OnLabel(func(message server.LabelMessage) {
		fmt.Printf("%s\t%s\t%s\n", time.Now().Format(time.TimeOnly), message.Target, message.Label)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Run(ctx); err != nil {
		logger.Error("Watch stopped", zap.Error(err))
		os.Exit(1)
	}
}
