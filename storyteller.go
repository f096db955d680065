/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Storyteller rooms
//
// Players connect a websocket to $prefix/ws and join a room by code, or
// create one by joining with an empty code. Once enough players are seated
// the game starts: a rotating storyteller picks a card and tells an
// association, the others add decoys from their hands, and everyone guesses
// which card was the storyteller's.
//
// Routes:
//   - $prefix/                  test client
//   - $prefix/ws                websocket for the lobby and every room
//   - $prefix/room/:roomid/qr   PNG QR code of a room's join link
//   - $prefix/cards/*filepath   card images, when --packs is set

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/Seednode/storyteller/internal/catalog"
	"github.com/Seednode/storyteller/internal/game"
	"github.com/Seednode/storyteller/internal/session"
)

const builtinCards = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// minPackSize is the smallest pack that can refill every hand after a
// full table.
func minPackSize(cfg *Config) int {
	return cfg.maxPlayers * (game.HandSize + 1)
}

func loadCatalog(cfg *Config) (*catalog.Catalog, error) {
	if cfg.packs == "" {
		return catalog.New(catalog.Builtin(builtinCards)), nil
	}

	packs, err := catalog.Load(cfg.fs, cfg.packs, minPackSize(cfg))
	if err != nil {
		return nil, fmt.Errorf("loading card packs from %s: %w", cfg.packs, err)
	}

	for _, p := range packs.Packs() {
		cfg.log.Info("START: Loaded card pack", zap.String("pack", p.ID), zap.Int("cards", len(p.Images)))
	}

	return packs, nil
}

// newLobby builds the room registry, sharing rooms through redis when
// --redis-url is set. The returned func releases the backend.
func newLobby(ctx context.Context, cfg *Config) (*session.Lobby, func(), error) {
	packs, err := loadCatalog(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := session.Options{
		Node:        cfg.nodeID,
		Catalog:     packs,
		Settings:    cfg.settings(),
		Logger:      cfg.log,
		IdleTimeout: cfg.sessionTimeout,
	}
	closer := func() {}

	if cfg.redisURL != "" {
		ro, err := redis.ParseURL(cfg.redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing redis url: %w", err)
		}

		client := redis.NewClient(ro)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", ro.Addr, err)
		}

		opts.Bus = session.NewRedisBus(client)
		opts.Directory = session.NewRedisDirectory(client, cfg.sessionTimeout)
		closer = func() { _ = client.Close() }

		cfg.log.Info("START: Sharing rooms through redis", zap.String("addr", ro.Addr))
	}

	return session.NewLobby(session.NewRegistry(ctx, opts)), closer, nil
}

func serveWS(cfg *Config, lobby *session.Lobby, identity *session.Identity) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID, err := identity.PlayerID(w, r)
		if err != nil {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		// The upgrade writes its own response, so a fresh cookie has to be
		// passed along explicitly.
		header := http.Header{}
		if cookies := w.Header().Values("Set-Cookie"); len(cookies) > 0 {
			header["Set-Cookie"] = cookies
		}

		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			cfg.log.Warn("SERVE: Websocket upgrade failed", zap.String("ip", realIP(r)), zap.Error(err))
			return
		}

		cfg.log.Info("SERVE: Websocket connected", zap.String("player", playerID), zap.String("ip", realIP(r)))

		client := session.NewClient(conn, playerID)
		lobby.Enter(client)

		go client.WritePump()
		client.ReadPump(lobby)

		cfg.log.Info("SERVE: Websocket closed", zap.String("player", playerID))
	}
}

// serveQR generates a PNG QR code for a room's join link.
func serveQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		link := url.URL{
			Scheme:   scheme,
			Host:     r.Host,
			Path:     cfg.prefix + "/",
			RawQuery: url.Values{"room": {roomID}}.Encode(),
		}

		const qrSize = 320
		png, err := qrcode.Encode(link.String(), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

func registerStoryteller(cfg *Config, mux *httprouter.Router, lobby *session.Lobby, identity *session.Identity) {
	mux.GET(cfg.prefix+"/ws", serveWS(cfg, lobby, identity))

	mux.GET(cfg.prefix+"/room/:roomid/qr", serveQR(cfg))

	if cfg.packs != "" {
		mux.GET(cfg.prefix+"/cards/*filepath", serveCards(cfg, cfg.fs, cfg.packs))
	}
}
