package telemetry

import (
	"fmt"
	"strings"
)

// Kind identifies which Tasmota message a topic carries.
type Kind string

// Topic kinds the bridge subscribes to.
const (
	KindSensor Kind = "SENSOR"
	KindPower  Kind = "POWER"
)

// Topic prefixes used by Tasmota firmware.
const (
	sensorTopicPrefix = "tele"
	powerTopicPrefix  = "stat"
)

// minTopicSegments is the {prefix}/{device}/{kind} shape.
const minTopicSegments = 3

// SensorTopic returns the telemetry topic for a device.
//
// Example: tele/pompa/SENSOR
func SensorTopic(device string) string {
	return fmt.Sprintf("%s/%s/%s", sensorTopicPrefix, device, KindSensor)
}

// PowerTopic returns the relay state topic for a device.
//
// Example: stat/pompa/POWER
func PowerTopic(device string) string {
	return fmt.Sprintf("%s/%s/%s", powerTopicPrefix, device, KindPower)
}

// DeviceTopics returns every topic the bridge subscribes to for the given
// devices, in device order with SENSOR before POWER.
func DeviceTopics(devices []string) []string {
	topics := make([]string, 0, len(devices)*2)
	for _, device := range devices {
		topics = append(topics, SensorTopic(device), PowerTopic(device))
	}
	return topics
}

// DeviceTopic is a parsed {prefix}/{device}/{kind} topic.
type DeviceTopic struct {
	Prefix string
	Device string
	Kind   Kind
}

// ParseTopic splits a broker topic into its device and kind.
//
// The kind is taken from the last segment and is returned verbatim even when
// it is neither SENSOR nor POWER; callers decide what to do with it.
func ParseTopic(topic string) (DeviceTopic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicSegments || parts[1] == "" {
		return DeviceTopic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return DeviceTopic{
		Prefix: parts[0],
		Device: parts[1],
		Kind:   Kind(parts[len(parts)-1]),
	}, nil
}
