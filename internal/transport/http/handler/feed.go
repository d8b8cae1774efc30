package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/planboard/notify/internal/application/feed"
	"github.com/planboard/notify/internal/domain"
	"github.com/planboard/notify/internal/transport/http/middleware"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// FeedEventInsert is the only event type sent on the feed socket.
const FeedEventInsert = "insert"

// FeedEvent is one change-feed message written to the socket.
type FeedEvent struct {
	Type         string                  `json:"type"`
	Notification domain.NotificationView `json:"notification"`
}

// FeedHandler streams the caller's notification inserts over a websocket.
type FeedHandler struct {
	hub      feed.Opener
	upgrader websocket.Upgrader
}

func NewFeedHandler(hub feed.Opener, allowedOrigins []string) *FeedHandler {
	return &FeedHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.ContainsFunc(allowed, func(a string) bool {
			return strings.EqualFold(strings.TrimSpace(a), u.Scheme+"://"+u.Host)
		})
	}
}

func (h *FeedHandler) Serve(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.Warn("feed upgrade failed", "user_id", claims.UserID, "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	listener := feed.NewListener(h.hub)
	err = listener.Start(ctx, claims.UserID, func(n domain.Notification) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(FeedEvent{Type: FeedEventInsert, Notification: domain.NewNotificationView(n)}); err != nil {
			slog.Debug("feed write failed", "user_id", claims.UserID, "err", err)
			cancel()
		}
	})
	if err != nil {
		slog.Error("feed subscribe failed", "user_id", claims.UserID, "err", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "feed unavailable"), time.Now().Add(writeWait))
		return
	}
	defer listener.Stop()
	slog.Debug("feed connected", "user_id", claims.UserID)

	go pingLoop(ctx, conn)
	readUntilClosed(conn)
	slog.Debug("feed disconnected", "user_id", claims.UserID)
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Unblocks the reader when the feed side ends first.
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains client frames so control messages are processed.
// Clients do not send data on this socket.
func readUntilClosed(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
