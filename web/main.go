package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/df07/go-raycasting-scene/pkg/config"
	"github.com/df07/go-raycasting-scene/pkg/logger"
	"github.com/df07/go-raycasting-scene/web/server"
	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to a YAML config file")
	port := flag.Int("port", 0, "Port to serve on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	fileCfg := logger.FileConfig{}
	if cfg.Logging.LogFile != "" {
		fileCfg = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	log, err := logger.New(cfg.Logging.Level, fileCfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	webServer := server.NewServer(cfg, log)
	log.Info("Raycasting Scene Web Server", zap.Int("port", cfg.Server.Port))

	if err := webServer.Start(); err != nil {
		log.Error("server stopped", zap.Error(err))
		webServer.Close()
		_ = log.Sync()
		os.Exit(1)
	}
}
