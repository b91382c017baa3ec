package busclient

// Topic names for the four logical pub/sub channels this system speaks on.
// The original system used bare TCP ports for these channels (8005, 8006,
// 8011, 8017); on an MQTT transport they become topic names instead.
const (
	TopicCAN     = "boardd/can"
	TopicHealth  = "boardd/health"
	TopicSendCAN = "boardd/sendcan"
	TopicThermal = "boardd/thermal"
)

// qosByTopic assigns publish QoS per topic. CAN frames and health reports
// are high-rate and loss-tolerant (at most once); nothing here needs a
// broker-side delivery guarantee.
var qosByTopic = map[string]byte{
	TopicCAN:     0,
	TopicHealth:  0,
	TopicSendCAN: 0,
	TopicThermal: 0,
}
