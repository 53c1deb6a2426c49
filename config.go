package main

import (
	"flag"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Config is the process configuration handed over by the orchestrator
type Config struct {
	Addr           string
	MatchID        string
	Privacy        string
	DBPath         string
	TicketSecret   string
	MatchmakerKey  string
	PublicURL      string
	ReconnectGrace time.Duration
	Linger         time.Duration
	LogLevel       string
	LogFormat      string
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Warnf("invalid %s=%q, using %s", key, raw, def)
		return def
	}
	return d
}

// LoadConfig reads flags, falling back to environment variables
func LoadConfig(args []string) (Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", envOr("ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.MatchID, "match", envOr("MATCH_ID", ""), "Match id served by this process (generated if empty)")
	fs.StringVar(&cfg.Privacy, "privacy", envOr("MATCH_PRIVACY", "public"), "Visibility tag of the match")
	fs.StringVar(&cfg.DBPath, "db", envOr("DB_PATH", "matches.db"), "SQLite path for results and analytics (empty disables)")
	fs.StringVar(&cfg.TicketSecret, "ticket-secret", envOr("TICKET_SECRET", ""), "HMAC secret for handshake tickets (empty disables)")
	fs.StringVar(&cfg.MatchmakerKey, "matchmaker-key", envOr("MATCHMAKER_KEY", ""), "Bearer key required on POST /session (empty disables)")
	fs.StringVar(&cfg.PublicURL, "public-url", envOr("PUBLIC_URL", "http://localhost:8080"), "Externally reachable base URL, used in invite links")
	fs.DurationVar(&cfg.ReconnectGrace, "reconnect-grace", envDuration("RECONNECT_GRACE", 60*time.Second), "How long a dropped player may take to reconnect")
	fs.DurationVar(&cfg.Linger, "linger", envDuration("LINGER", 5*time.Second), "How long to keep serving after game over")
	fs.StringVar(&cfg.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level")
	fs.StringVar(&cfg.LogFormat, "log-format", envOr("LOG_FORMAT", "text"), "Log format: text or json")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// setupLogging configures the global logrus logger
func setupLogging(cfg Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("invalid log level %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
