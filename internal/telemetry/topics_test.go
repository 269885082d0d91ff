package telemetry

import (
	"errors"
	"reflect"
	"testing"
)

func TestDeviceTopics(t *testing.T) {
	got := DeviceTopics([]string{"pompa", "boiler"})
	want := []string{
		"tele/pompa/SENSOR",
		"stat/pompa/POWER",
		"tele/boiler/SENSOR",
		"stat/boiler/POWER",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeviceTopics() = %v, want %v", got, want)
	}
}

func TestParseTopic(t *testing.T) {
	got, err := ParseTopic("tele/pompa/SENSOR")
	if err != nil {
		t.Fatalf("ParseTopic() error = %v", err)
	}
	want := DeviceTopic{Prefix: "tele", Device: "pompa", Kind: KindSensor}
	if got != want {
		t.Errorf("ParseTopic() = %+v, want %+v", got, want)
	}

	if _, err := ParseTopic("tele/pompa"); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("ParseTopic(short) error = %v, want ErrInvalidTopic", err)
	}
}

func TestMetricLine_String(t *testing.T) {
	l := MetricLine{Prefix: "tasmota", Device: "pompa", Name: "Power", Value: "12.5", Timestamp: 1700000000}
	if got, want := l.String(), "tasmota.pompa.Power 12.5 1700000000\n"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestEncode_Empty(t *testing.T) {
	if got := Encode(nil); got != nil {
		t.Errorf("Encode(nil) = %q, want nil", got)
	}
}
