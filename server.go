package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/matryer/way"
	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

const (
	maxIDLen   = 64
	qrCodeSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub, publicURL string) *way.Router {
	router := way.NewRouter()
	router.HandleFunc("GET", "/ws", hub.serveWS)
	router.HandleFunc("GET", "/healthz", hub.serveHealth)
	router.HandleFunc("POST", "/session", hub.serveCreateSession)
	router.HandleFunc("GET", "/invite/:player", hub.serveInvite(publicURL))
	return router
}

// serveWS is the connection gate: the handshake must name the match and the
// player, and nothing is created for a handshake that does not.
func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	matchID, playerID := q.Get("match"), q.Get("player")
	if matchID == "" || playerID == "" {
		http.Error(w, "match and player are required", http.StatusBadRequest)
		return
	}
	if len(matchID) > maxIDLen || len(playerID) > maxIDLen {
		http.Error(w, "id too long", http.StatusBadRequest)
		return
	}
	if matchID != h.game.MatchID() {
		http.Error(w, "unknown match", http.StatusNotFound)
		return
	}
	if err := h.tickets.Verify(q.Get("token"), matchID, playerID); err != nil {
		log.WithFields(log.Fields{"player": playerID}).Warnf("handshake refused: %v", err)
		http.Error(w, "invalid ticket", http.StatusUnauthorized)
		return
	}

	ip := extractIP(r)
	if !h.CanAccept(ip) {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade error: %v", err)
		return
	}

	h.TrackConnect(ip)

	client := NewClient(h, conn, playerID, ip)
	h.register <- client

	go client.WritePump()
	go client.ReadPump()
}

type healthResponse struct {
	Status
	Clients int `json:"clients"`
	Conns   int `json:"conns"`
}

// serveHealth is the liveness probe for the orchestrator
func (h *Hub) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{Status: h.game.Status(), Clients: h.ClientCount(), Conns: h.TotalConns()})
}

// CreateSessionRequest is the matchmaking call that provisions the match
type CreateSessionRequest struct {
	Match   string   `json:"match"`
	Players []string `json:"players"`
}

// CreateSessionResponse hands back one handshake ticket per player
type CreateSessionResponse struct {
	Match   string            `json:"match"`
	Tickets map[string]string `json:"tickets,omitempty"`
}

func (h *Hub) serveCreateSession(w http.ResponseWriter, r *http.Request) {
	if h.matchmakerKey != "" {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.matchmakerKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	if len(req.Players) != 2 || req.Players[0] == "" || req.Players[1] == "" || req.Players[0] == req.Players[1] {
		http.Error(w, "exactly two distinct player ids are required", http.StatusBadRequest)
		return
	}

	if err := h.game.Reserve(req.Match, req.Players); err != nil {
		status := http.StatusConflict
		if errors.Is(err, ErrGameOver) {
			status = http.StatusGone
		}
		http.Error(w, err.Error(), status)
		return
	}

	resp := CreateSessionResponse{Match: h.game.MatchID()}
	if h.tickets != nil {
		resp.Tickets = make(map[string]string, len(req.Players))
		for _, pid := range req.Players {
			tok, err := h.tickets.Issue(resp.Match, pid)
			if err != nil {
				http.Error(w, "could not issue ticket", http.StatusInternalServerError)
				return
			}
			resp.Tickets[pid] = tok
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// JoinURL builds the websocket address a player connects to
func JoinURL(publicURL, matchID, playerID, token string) string {
	base := strings.TrimSuffix(publicURL, "/")
	base = strings.Replace(base, "http", "ws", 1)
	q := url.Values{}
	q.Set("match", matchID)
	q.Set("player", playerID)
	if token != "" {
		q.Set("token", token)
	}
	return base + "/ws?" + q.Encode()
}

// serveInvite renders a player's join address as a QR code. When tickets
// are enforced the caller must already hold that player's ticket.
func (h *Hub) serveInvite(publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := way.Param(r.Context(), "player")
		if playerID == "" || len(playerID) > maxIDLen {
			http.Error(w, "bad player", http.StatusBadRequest)
			return
		}
		token := r.URL.Query().Get("token")
		if err := h.tickets.Verify(token, h.game.MatchID(), playerID); err != nil {
			http.Error(w, "invalid ticket", http.StatusUnauthorized)
			return
		}
		link := JoinURL(publicURL, h.game.MatchID(), playerID, token)
		png, err := qrcode.Encode(link, qrcode.Medium, qrCodeSize)
		if err != nil {
			http.Error(w, "could not render invite", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(png)
	}
}
