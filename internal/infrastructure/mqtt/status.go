package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/venthub/internal/infrastructure/config"
)

const (
	connectTimeout  = 10 * time.Second
	ackTimeout      = 5 * time.Second
	keepAlive       = 60 * time.Second
	quiesceMillis   = 1000
	maxPayloadBytes = 256 << 10
)

// Hub status values on venthub/status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Reasons attached to an offline status.
const (
	ReasonShutdown   = "shutdown"
	ReasonConnection = "connection_lost"
)

// HubStatus is the retained payload on venthub/status. The broker publishes
// the ReasonConnection variant as the will when the hub drops off.
type HubStatus struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func statusPayload(clientID, status, reason string) []byte {
	// HubStatus has no field json can fail on.
	b, _ := json.Marshal(HubStatus{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	return b
}

func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// newClientOptions maps the mqtt config section onto paho options. The
// session is clean: the command subscription is re-created on every
// connect instead of being kept by the broker.
func newClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetBinaryWill(Topics{}.SystemStatus(),
		statusPayload(cfg.Broker.ClientID, StatusOffline, ReasonConnection), 1, true)
	return opts
}
