// Package mqtt connects the vent hub to an MQTT broker.
//
// The broker is the hub's push channel towards home-automation consumers.
// The hub publishes:
//   - venthub/status: retained online/offline status, with a will for crashes
//   - venthub/state/<device_id>: retained JSON state for every vent
//   - venthub/event/<name>: hub events such as newly discovered vents
//   - venthub/ack/<command_id>: results of group commands
//
// and subscribes to venthub/command/{all|room/<room>|floor/<floor>}.
//
// Sessions are clean, so the command subscription is re-created on every
// reconnect. SetOnReconnect lets the hub republish retained vent state in
// case the broker restarted without persistence.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeCommands(func(topic string, payload []byte) error {
//	    kind, target, err := mqtt.ParseCommandTopic(topic)
//	    ...
//	})
//
//	client.PublishState(d.ID, d)
package mqtt
