// Package main runs the notice consumer: it subscribes to the message
// channel and, per event, geocodes the notice address and then extracts the
// structured contents of its first attachment.
//
// The channel connection is retried at startup before the process gives up
// with exit code 1. SIGINT/SIGTERM stops the subscription, lets in-flight
// events finish and closes every client.
package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/config"
	"github.com/JakeFAU/noticewatch/internal/logging"
	"github.com/JakeFAU/noticewatch/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	boot := logging.Bootstrap(server.ConsumerService, os.Stderr)
	defer boot.Sync() //nolint:errcheck // stderr sync fails on some platforms

	cfg, err := config.Load("")
	if err != nil {
		boot.Error("load config failed", zap.Error(err))
		return 1
	}

	ctx := context.Background()
	cons, err := server.BuildConsumer(ctx, cfg)
	if err != nil {
		boot.Error("consumer init failed", zap.Error(err))
		return 1
	}
	if err := cons.Run(ctx); err != nil {
		boot.Error("consumer stopped", zap.Error(err))
		return 1
	}
	return 0
}
