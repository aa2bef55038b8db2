package webview

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callview/internal/config"
	"github.com/dkeye/callview/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one connected browser page.
type client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *client) trySend(op viewOp) error {
	b, err := json.Marshal(op)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("client closed")
	}
	select {
	case c.send <- b:
		return nil
	default:
		return errors.New("backpressure")
	}
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

// SetupRouter serves the call page and the view websocket.
func (w *WebView) SetupRouter(cfg *config.Config) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/api/ws/view", w.handleWS)

	log.Info().Str("module", "webview").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

func (w *WebView) handleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "webview").Msg("ws upgrade")
		return
	}
	cl := &client{conn: ws, send: make(chan []byte, 64)}

	w.mu.Lock()
	w.clients[cl] = struct{}{}
	w.replayLocked(cl)
	w.mu.Unlock()
	log.Info().Str("module", "webview").Msg("view client connected")

	go w.writePump(cl)
	go w.readPump(cl)
}

func (w *WebView) writePump(c *client) {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "webview").Msg("writePump write error")
			return
		}
	}
}

func (w *WebView) readPump(c *client) {
	defer func() {
		w.mu.Lock()
		delete(w.clients, c)
		w.mu.Unlock()
		c.close()
		log.Info().Str("module", "webview").Msg("view client disconnected")
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Op          string `json:"op"`
			Participant string `json:"participant"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Error().Err(err).Str("module", "webview").Msg("bad client message")
			continue
		}
		if msg.Op == "select" && msg.Participant != "" {
			w.tileSelected.Emit(domain.Identity(msg.Participant))
		}
	}
}
