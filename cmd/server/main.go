package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linechat/internal/chat"
	"linechat/internal/logging"
	"linechat/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, true)

	room := chat.NewRoom(cfg.QueueCapacity, logging.Component(log, "room"))
	srv := server.New(*cfg, room, logging.Component(log, "server"))

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Info().Str("signal", received.String()).Msg("signal received")

	if err := srv.Shutdown(shutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
		os.Exit(1)
	}
}
