package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/venthub/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger the client writes to.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler handles one message on a command topic. Returned errors are
// logged; the message is acknowledged either way.
type MessageHandler func(topic string, payload []byte) error

// Client is the hub's broker connection. It publishes vent state, events and
// command acks, and owns the single subscription to the command tree.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	clientID string
	qos      byte

	connected atomic.Bool
	connects  atomic.Int64

	mu           sync.Mutex
	commands     MessageHandler
	onReconnect  func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the broker and waits for the first session. The retained
// hub status switches to online on every (re)connect; the will switches it
// back to offline if the hub disappears without Close.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		clientID: cfg.Broker.ClientID,
		qos:      byte(cfg.QoS),
	}

	opts := newClientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.logWarn("mqtt reconnecting", "broker", brokerURL(cfg.Broker))
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: %s: timeout after %v", ErrConnectionFailed, brokerURL(cfg.Broker), connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(cfg.Broker), err)
	}

	// The connect handler runs asynchronously and may not have fired yet.
	c.connected.Store(true)
	return c, nil
}

// handleConnect runs on the first connect and after every reconnect. With a
// clean session the broker has forgotten the command subscription, so it
// is re-created here. From the second connect on, onReconnect fires so the
// hub can republish retained vent state the broker may have lost.
func (c *Client) handleConnect() {
	c.connected.Store(true)
	first := c.connects.Add(1) == 1

	c.client.Publish(Topics{}.SystemStatus(), c.qos, true, statusPayload(c.clientID, StatusOnline, ""))

	c.mu.Lock()
	commands, onReconnect := c.commands, c.onReconnect
	c.mu.Unlock()

	if commands != nil {
		token := c.client.Subscribe(Topics{}.AllCommands(), c.qos, c.wrapHandler(commands))
		go func() {
			if !token.WaitTimeout(ackTimeout) {
				c.logWarn("command subscription not confirmed", "timeout", ackTimeout.String())
			} else if err := token.Error(); err != nil {
				c.logWarn("command subscription failed", "error", err)
			}
		}()
	}
	if !first && onReconnect != nil {
		onReconnect()
	}
}

func (c *Client) handleConnectionLost(err error) {
	c.connected.Store(false)
	c.mu.Lock()
	fn := c.onDisconnect
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// SetOnReconnect registers fn to run after the connection comes back.
// It is not called for the initial connect.
func (c *Client) SetOnReconnect(fn func()) {
	c.mu.Lock()
	c.onReconnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers fn to run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures and reconnects.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// IsConnected reports whether the broker session is up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// HealthCheck fails when ctx is done or the broker session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.client.Publish(Topics{}.SystemStatus(), c.qos, true,
			statusPayload(c.clientID, StatusOffline, ReasonShutdown))
		token.WaitTimeout(ackTimeout)
	}
	c.client.Disconnect(quiesceMillis)
	c.connected.Store(false)
	return nil
}

// wrapHandler adapts h to paho and recovers its panics.
func (c *Client) wrapHandler(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logError("mqtt command handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := h(msg.Topic(), msg.Payload()); err != nil {
			c.logWarn("mqtt command rejected", "topic", msg.Topic(), "error", err)
		}
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	c.mu.Lock()
	l := c.logger
	c.mu.Unlock()
	if l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	c.mu.Lock()
	l := c.logger
	c.mu.Unlock()
	if l != nil {
		l.Error(msg, args...)
	}
}
