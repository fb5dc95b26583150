package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every hub topic.
const TopicPrefix = "venthub"

// Command target kinds carried in the command topic.
const (
	CommandAll   = "all"
	CommandRoom  = "room"
	CommandFloor = "floor"
)

// Topics provides builders for hub MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("a1b2c3")
//	// Returns: "venthub/state/a1b2c3"
type Topics struct{}

// SystemStatus returns the hub online/offline topic (retained, LWT).
//
// Example: venthub/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/status"
}

// DeviceState returns the retained state topic for one vent.
//
// Example: venthub/state/a1b2c3
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// Event returns the topic for hub events such as device discovery.
//
// Example: venthub/event/discovered
func (Topics) Event(name string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, name)
}

// Command returns the group command topic. target is ignored for CommandAll.
//
// Examples: venthub/command/all, venthub/command/room/bedroom
func (Topics) Command(kind, target string) string {
	if kind == CommandAll {
		return TopicPrefix + "/command/" + CommandAll
	}
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, kind, target)
}

// Ack returns the acknowledgement topic for a command.
//
// Example: venthub/ack/4c1f...
func (Topics) Ack(commandID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, commandID)
}

// AllCommands matches every group command.
//
// Pattern: venthub/command/#
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/#"
}

// ParseCommandTopic splits a command topic into its kind and target.
// Room and floor labels may contain '/', so everything after the kind is
// the target.
func ParseCommandTopic(topic string) (kind, target string, err error) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not a command topic", ErrInvalidTopic, topic)
	}
	kind, target, _ = strings.Cut(rest, "/")
	switch kind {
	case CommandAll:
		if target != "" {
			return "", "", fmt.Errorf("%w: %q takes no target", ErrInvalidTopic, topic)
		}
		return kind, "", nil
	case CommandRoom, CommandFloor:
		if target == "" {
			return "", "", fmt.Errorf("%w: %q has no target", ErrInvalidTopic, topic)
		}
		return kind, target, nil
	default:
		return "", "", fmt.Errorf("%w: unknown command kind %q", ErrInvalidTopic, kind)
	}
}
