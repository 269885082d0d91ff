package telemetry

import (
	"strconv"
	"strings"
)

// MetricLine is one carbon plaintext record.
type MetricLine struct {
	Prefix    string
	Device    string
	Name      string
	Value     string
	Timestamp int64
}

// Path returns the dotted metric path, e.g. "tasmota.pompa.Power".
func (l MetricLine) Path() string {
	return l.Prefix + "." + l.Device + "." + l.Name
}

// String renders the line exactly as it is sent to the collector,
// including the trailing newline.
func (l MetricLine) String() string {
	var b strings.Builder
	l.writeTo(&b)
	return b.String()
}

func (l MetricLine) writeTo(b *strings.Builder) {
	b.WriteString(l.Prefix)
	b.WriteByte('.')
	b.WriteString(l.Device)
	b.WriteByte('.')
	b.WriteString(l.Name)
	b.WriteByte(' ')
	b.WriteString(l.Value)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(l.Timestamp, 10))
	b.WriteByte('\n')
}

// Encode concatenates lines into a single carbon payload.
// It returns nil for an empty batch.
func Encode(lines []MetricLine) []byte {
	if len(lines) == 0 {
		return nil
	}
	var b strings.Builder
	for _, l := range lines {
		l.writeTo(&b)
	}
	return []byte(b.String())
}
