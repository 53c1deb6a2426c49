package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	shutdownFlush   = 250 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	setupLogging(cfg)

	if cfg.MatchID == "" {
		cfg.MatchID = GenerateUUID()
		log.Warnf("no match id configured, using %s", cfg.MatchID)
	}

	var db *DB
	if cfg.DBPath != "" {
		db, err = OpenDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
	}
	analytics := NewAnalytics(db)

	rules := DefaultMatchConfig()
	rules.ReconnectGrace = cfg.ReconnectGrace
	gameCfg := GameConfig{
		MatchID:   cfg.MatchID,
		Privacy:   cfg.Privacy,
		Rules:     rules,
		Analytics: analytics,
	}
	if db != nil {
		gameCfg.Reporter = db
	}
	game := NewGame(gameCfg)
	go game.Run()

	hub := NewHub(game, NewTickets(cfg.TicketSecret))
	hub.matchmakerKey = cfg.MatchmakerKey
	hubStop := make(chan struct{})
	go hub.Run(hubStop)

	server := &http.Server{Addr: cfg.Addr, Handler: SetupRoutes(hub, cfg.PublicURL)}
	go func() {
		log.WithField("match", cfg.MatchID).Printf("Server starting on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("Shutting down...")
		game.Stop()
		<-game.Done()
		time.Sleep(shutdownFlush)
	case <-game.Done():
		log.Printf("Match over, lingering for %s", cfg.Linger)
		select {
		case <-time.After(cfg.Linger):
		case <-stop:
		}
	}

	hub.CloseAll()
	close(hubStop)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("server shutdown: %v", err)
	}
	game.WaitReports()
	analytics.Stop()
}
