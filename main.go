package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env file: %v", err)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	logger := NewLogger(cfg.LogFile)
	defer logger.Sync()

	var db *DB
	if cfg.DBPath != "" {
		db, err = OpenDB(cfg.DBPath)
		if err != nil {
			logger.Fatalw("open database", "path", cfg.DBPath, "err", err)
		}
		defer db.Close()
	}

	clock := clockwork.NewRealClock()
	activity := NewActivityLog(db, logger)
	defer activity.Stop()

	engine := NewEngine(cfg, clock, logger, activity)

	archiver := NewArchiver(engine, db, clock, cfg.SnapshotInterval(), logger)
	archiver.Start()
	defer archiver.Stop()

	hub := NewHub(engine, cfg.MaxConnsPerIP, cfg.MaxTotalConns)
	go hub.Run()

	admin := NewAdminAuth(cfg.AdminPassHash, db, logger)
	handler := SetupRoutes(hub, cfg, admin, logger)

	server := &http.Server{Addr: cfg.Addr, Handler: handler}

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infow("lounge server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatalw("listen", "err", err)
		}
	}()

	<-stop
	logger.Info("shutting down")
	server.Close()
}
