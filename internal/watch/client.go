package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kapu/hololive-widget-go/internal/server"
	"go.uber.org/zap"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type LabelCallback func(message server.LabelMessage)

type StateCallback func(state State)

type labelEntry struct {
	id       int
	callback LabelCallback
}

type stateEntry struct {
	id       int
	callback StateCallback
}

type Config struct {
	// URL is the server's /ws endpoint, e.g. ws://localhost:8080/ws.
	URL                  string
	Target               string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

// Client subscribes to one display target on a widget server and reports
// every label the server pushes. Dropped connections are re-dialled up to
// MaxReconnectAttempts times in a row.
type Client struct {
	cfg    Config
	logger *zap.Logger

	stateMu sync.RWMutex
	state   State

	callbacksMu    sync.RWMutex
	labelCallbacks []labelEntry
	stateCallbacks []stateEntry
	nextID         int
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, logger: logger, state: StateDisconnected, nextID: 1}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid watch url: %w", err)
	}
	q := u.Query()
	q.Set("target", c.cfg.Target)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run connects and listens until ctx is cancelled or reconnecting gives up.
func (c *Client) Run(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	attempts := 0
	for {
		c.setState(StateConnecting)
		connected, err := c.session(ctx, endpoint)
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}
		if connected {
			attempts = 0
		}
		attempts++
		if attempts > c.cfg.MaxReconnectAttempts {
			c.setState(StateFailed)
			return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
		}

		c.setState(StateReconnecting)
		c.logger.Info("Scheduling reconnect",
			zap.Int("attempt", attempts),
			zap.Int("max", c.cfg.MaxReconnectAttempts),
			zap.Duration("delay", c.cfg.ReconnectDelay),
			zap.Error(err),
		)

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(StateDisconnected)
			return nil
		case <-timer.C:
		}
	}
}

// session dials once and reads until the connection drops. connected
// reports whether the dial succeeded.
func (c *Client) session(ctx context.Context, endpoint string) (connected bool, err error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	c.setState(StateConnected)
	c.logger.Info("Watching target",
		zap.String("url", c.cfg.URL),
		zap.String("target", c.cfg.Target))

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var message server.LabelMessage
	if err := json.Unmarshal(data, &message); err != nil {
		dataStr := string(data)
		if len(dataStr) > 200 {
			dataStr = dataStr[:200]
		}
		c.logger.Error("Failed to parse label message",
			zap.Error(err),
			zap.String("data", dataStr),
		)
		return
	}

	c.callbacksMu.RLock()
	callbacks := make([]labelEntry, len(c.labelCallbacks))
	copy(callbacks, c.labelCallbacks)
	c.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(message)
	}
}

// OnLabel registers callback and returns a function that removes it.
func (c *Client) OnLabel(callback LabelCallback) func() {
	c.callbacksMu.Lock()
	id := c.nextID
	c.nextID++
	c.labelCallbacks = append(c.labelCallbacks, labelEntry{id: id, callback: callback})
	c.callbacksMu.Unlock()

	return func() {
		c.callbacksMu.Lock()
		defer c.callbacksMu.Unlock()
		for i, entry := range c.labelCallbacks {
			if entry.id == id {
				c.labelCallbacks = append(c.labelCallbacks[:i], c.labelCallbacks[i+1:]...)
				break
			}
		}
	}
}

func (c *Client) OnStateChange(callback StateCallback) func() {
	c.callbacksMu.Lock()
	id := c.nextID
	c.nextID++
	c.stateCallbacks = append(c.stateCallbacks, stateEntry{id: id, callback: callback})
	c.callbacksMu.Unlock()

	return func() {
		c.callbacksMu.Lock()
		defer c.callbacksMu.Unlock()
		for i, entry := range c.stateCallbacks {
			if entry.id == id {
				c.stateCallbacks = append(c.stateCallbacks[:i], c.stateCallbacks[i+1:]...)
				break
			}
		}
	}
}

func (c *Client) setState(newState State) {
	c.stateMu.Lock()
	oldState := c.state
	c.state = newState
	c.stateMu.Unlock()

	if oldState == newState {
		return
	}

	c.logger.Debug("Watch state changed",
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)

	c.callbacksMu.RLock()
	callbacks := make([]stateEntry, len(c.stateCallbacks))
	copy(callbacks, c.stateCallbacks)
	c.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(newState)
	}
}

func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}
