// Package main runs the notice publisher: every interval it pulls the current
// disclosure window, claims unseen notices in the dedup store, persists them
// and emits one event per notice on the message channel.
//
// Configuration comes from NOTICEWATCH_* environment variables, an optional
// .env file and the YAML file named by NOTICEWATCH_CONFIG_FILE. The process
// exits 1 when configuration is invalid or the dedup store does not answer at
// startup, and drains in order on SIGINT/SIGTERM.
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
	boot := logging.Bootstrap(server.PublisherService, os.Stderr)
	defer boot.Sync() //nolint:errcheck // stderr sync fails on some platforms

	cfg, err := config.Load("")
	if err != nil {
		boot.Error("load config failed", zap.Error(err))
		return 1
	}

	ctx := context.Background()
	pub, err := server.BuildPublisher(ctx, cfg)
	if err != nil {
		boot.Error("publisher init failed", zap.Error(err))
		return 1
	}
	if err := pub.Run(ctx); err != nil {
		boot.Error("publisher stopped", zap.Error(err))
		return 1
	}
	return 0
}
