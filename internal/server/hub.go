package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// LabelMessage is pushed to every subscriber of a target.
type LabelMessage struct {
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Hub is a countdown TargetStore backed by WebSocket subscribers. A target
// exists while at least one client is subscribed to it.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	subs    map[string]map[*client]struct{}
	labels  map[string]string
	closed  bool
	attach  func(targetID string)
	clients sync.WaitGroup
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	target    string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
		subs:   make(map[string]map[*client]struct{}),
		labels: make(map[string]string),
	}
}

func (h *Hub) Exists(ctx context.Context, targetID string) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[targetID]) > 0, nil
}

// Write fans the label out to the target's subscribers. A subscriber whose
// buffer is full is disconnected.
func (h *Hub) Write(ctx context.Context, targetID, label string) error {
	payload, err := json.Marshal(LabelMessage{Target: targetID, Label: label})
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.labels[targetID] = label
	var slow []*client
	for c := range h.subs[targetID] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow WebSocket subscriber", zap.String("target", targetID))
		c.close()
	}
	return nil
}

// OnAttach sets fn to run each time a client subscribes to a target, after
// the target already exists.
func (h *Hub) OnAttach(fn func(targetID string)) {
	h.mu.Lock()
	h.attach = fn
	h.mu.Unlock()
}

// Subscribers counts clients attached to targetID.
func (h *Hub) Subscribers(targetID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[targetID])
}

// ServeWS upgrades the request and subscribes the connection to the target
// named by the "target" query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("target"))
	if target == "" {
		http.Error(w, "missing target", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		target: target,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	if !h.register(c) {
		conn.Close()
		return
	}

	h.logger.Debug("WebSocket subscriber attached", zap.String("target", target))

	h.mu.RLock()
	attach := h.attach
	h.mu.RUnlock()
	if attach != nil {
		attach(target)
	}

	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}

	set, ok := h.subs[c.target]
	if !ok {
		set = make(map[*client]struct{})
		h.subs[c.target] = set
	}
	set[c] = struct{}{}
	h.clients.Add(1)

	if label, ok := h.labels[c.target]; ok {
		if payload, err := json.Marshal(LabelMessage{Target: c.target, Label: label}); err == nil {
			c.send <- payload
		}
	}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[c.target]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, c.target)
		delete(h.labels, c.target)
	}
	h.clients.Done()
}

// Close disconnects every subscriber and waits for them to unregister.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, set := range h.subs {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
	h.clients.Wait()
	h.logger.Info("WebSocket hub closed", zap.Int("clients", len(all)))
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		c.conn.Close()
	})
}

func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("WebSocket read error", zap.String("target", c.target), zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
