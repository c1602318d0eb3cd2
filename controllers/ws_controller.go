package controllers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// wsFrame is one server-to-client message.
type wsFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// LiveController streams notifications and state changes over a websocket.
type LiveController struct {
	engine   *services.Engine
	hub      *services.Hub
	feed     *store.Feed
	upgrader websocket.Upgrader
}

// NewLiveController creates a new LiveController instance.
func NewLiveController(engine *services.Engine, hub *services.Hub, feed *store.Feed) *LiveController {
	return &LiveController{
		engine: engine,
		hub:    hub,
		feed:   feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowedOrigin,
		},
	}
}

// allowedOrigin accepts same-host requests, requests without Origin and configured CORS origins.
func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range config.Get().AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// Stream upgrades the connection. The first frame is the current state; later frames are
// notifications and fresh state whenever the user's data changes.
func (l *LiveController) Stream(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	conn, err := l.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		utils.Sugar.Warnf("websocket upgrade failed for user %d: %v", userID, err)
		return
	}
	defer conn.Close()

	notes, stopNotes := l.hub.Subscribe(userID)
	defer stopNotes()
	changes, stopChanges := l.feed.Subscribe(userID)
	defer stopChanges()

	// clients only send control frames; reading drives pong handling and close detection
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	reqCtx := ctx.Request.Context()
	if !l.sendState(reqCtx, conn, userID) {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-reqCtx.Done():
			return
		case n, ok := <-notes:
			if !ok {
				return
			}
			if !write(conn, wsFrame{Type: "notification", Data: n}) {
				return
			}
		case _, ok := <-changes:
			if !ok {
				return
			}
			if !l.sendState(reqCtx, conn, userID) {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (l *LiveController) sendState(ctx context.Context, conn *websocket.Conn, userID uint) bool {
	state, err := l.engine.State(ctx, userID)
	if err != nil {
		utils.Sugar.Warnf("live state for user %d failed: %v", userID, err)
		return true
	}
	return write(conn, wsFrame{Type: "state", Data: stateResponse(state)})
}

func write(conn *websocket.Conn, f wsFrame) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(f) == nil
}
