package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 页面与接口同源部署
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// hub 按会话分组管理 websocket 连接，推送流程快照。
type hub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
	log     logrus.FieldLogger
}

func newHub(log logrus.FieldLogger) *hub {
	return &hub{clients: make(map[string]map[*wsClient]struct{}), log: log}
}

func (h *hub) register(session string, conn *websocket.Conn) *wsClient {
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[session] == nil {
		h.clients[session] = make(map[*wsClient]struct{})
	}
	h.clients[session][c] = struct{}{}
	return c
}

func (h *hub) unregister(session string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[session]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, session)
	}
}

// broadcast never blocks: a client with a full queue misses the message.
func (h *hub) broadcast(session string, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).Warn("marshal websocket message failed")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[session] {
		select {
		case c.send <- msg:
		default:
			h.log.WithField("session_id", session).Warn("websocket queue full, message dropped")
		}
	}
}

func (h *hub) sendTo(session string, c *wsClient, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[session][c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *hub) count(session string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[session])
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for session, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, session)
	}
}

func (h *hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只用于感知断开，客户端消息被忽略。
func (h *hub) readPump(session string, c *wsClient) {
	defer h.unregister(session, c)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleWorkflowSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	session := sessionID(c)
	client := s.hub.register(session, conn)
	log := s.log.WithField("session_id", session)
	log.WithField("subscribers", s.hub.count(session)).Debug("websocket connected")
	// 连接建立后先推送一次当前状态
	s.hub.sendTo(session, client, s.snapshot(session))
	go s.hub.writePump(client)
	s.hub.readPump(session, client)
	log.WithField("subscribers", s.hub.count(session)).Debug("websocket closed")
}
