package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/venthub/internal/infrastructure/metrics"
	"github.com/nerrad567/venthub/internal/infrastructure/mqtt"
)

// commandPayload is the JSON body of a group command message.
type commandPayload struct {
	ID    string `json:"id,omitempty"`
	Angle *int   `json:"angle"`
}

// CommandAck is published on venthub/ack/<id> after a group command.
type CommandAck struct {
	ID         string    `json:"id"`
	TargetType string    `json:"target_type"`
	Target     string    `json:"target,omitempty"`
	Angle      int       `json:"angle"`
	Requested  int       `json:"requested"`
	Updated    []string  `json:"updated"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// handleCommand executes a group command received over MQTT. The sender
// may supply an id to correlate the acknowledgement; otherwise one is
// generated.
func (h *Hub) handleCommand(topic string, payload []byte) error {
	kind, target, err := mqtt.ParseCommandTopic(topic)
	if err != nil {
		metrics.IncMQTTCommand(false)
		return err
	}

	var body commandPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		metrics.IncMQTTCommand(false)
		return fmt.Errorf("decoding command on %s: %w", topic, err)
	}
	if body.Angle == nil {
		metrics.IncMQTTCommand(false)
		return fmt.Errorf("command on %s has no angle", topic)
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	}

	res, err := h.SetGroupAngle(h.baseContext(), kind, target, *body.Angle)
	metrics.IncMQTTCommand(err == nil)

	ack := CommandAck{
		ID:         body.ID,
		TargetType: kind,
		Target:     target,
		Angle:      res.Angle,
		Requested:  res.Requested,
		Updated:    make([]string, 0, len(res.Updated)),
		Timestamp:  time.Now().UTC(),
	}
	for _, d := range res.Updated {
		ack.Updated = append(ack.Updated, d.ID)
	}
	if err != nil {
		ack.Error = err.Error()
	}
	h.publishAck(ack)

	h.logger.Info("mqtt command handled", "command_id", body.ID, "target_type", kind,
		"target", target, "requested", ack.Requested, "updated", len(ack.Updated))
	return err
}
