package bridge

import (
	"fmt"
	"os"
	"strings"
)

// clientIDPrefix identifies this program on the broker.
const clientIDPrefix = "MQTT2Graphite"

// ClientID builds the session identity from a process id and host name.
//
// Example: MQTT2Graphite_4242-sensors.example.net
func ClientID(pid int, host string) string {
	return fmt.Sprintf("%s_%d-%s", clientIDPrefix, pid, host)
}

// NewClientID derives the session identity for the running process.
// It is computed once at startup and reused for every reconnect.
func NewClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return ClientID(os.Getpid(), host)
}

// PresenceTopic expands a presence topic template containing a single %s
// with the client id. A template without %s gets the id appended as a path
// segment.
func PresenceTopic(template, clientID string) string {
	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, clientID)
	}
	return strings.TrimRight(template, "/") + "/" + clientID
}
