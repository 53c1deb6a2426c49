package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const ticketExpiry = 2 * time.Hour

var (
	ErrTicketInvalid  = errors.New("invalid ticket")
	ErrTicketMismatch = errors.New("ticket does not match handshake")
)

// Tickets issues and checks the handshake tokens that bind a connection to
// a reserved slot. A nil *Tickets accepts every handshake.
type Tickets struct {
	secret []byte
	expiry time.Duration
}

// NewTickets returns nil when no secret is configured
func NewTickets(secret string) *Tickets {
	if secret == "" {
		return nil
	}
	return &Tickets{secret: []byte(secret), expiry: ticketExpiry}
}

// Issue signs a ticket for one player of one match
func (t *Tickets) Issue(matchID, playerID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"mid": matchID,
		"pid": playerID,
		"exp": now.Add(t.expiry).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify checks the signature and that the ticket names this handshake
func (t *Tickets) Verify(tokenStr, matchID, playerID string) error {
	if t == nil {
		return nil
	}
	if tokenStr == "" {
		return fmt.Errorf("%w: missing", ErrTicketInvalid)
	}
	token, err := jwt.Parse(tokenStr, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTicketInvalid, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ErrTicketInvalid
	}
	mid, _ := claims["mid"].(string)
	pid, _ := claims["pid"].(string)
	if mid != matchID || pid != playerID {
		return ErrTicketMismatch
	}
	return nil
}
