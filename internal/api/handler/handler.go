// Package handler is the gin-facing edge: anonymous identity issuance
// and the WebSocket upgrade. Everything after the handshake lives in
// chathub.
package handler

import (
	"log/slog"
	"time"

	"mullmine/backend/internal/account"
	"mullmine/backend/internal/chathub"
)

type Handler struct {
	Hub      *chathub.Hub
	Router   *chathub.Router
	Accounts *account.Service
	Log      *slog.Logger

	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewHandler(hub *chathub.Hub, router *chathub.Router, accounts *account.Service, log *slog.Logger, jwtSecret string, tokenTTL time.Duration) *Handler {
	return &Handler{
		Hub:       hub,
		Router:    router,
		Accounts:  accounts,
		Log:       log,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}
