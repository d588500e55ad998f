package lsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelayExclusionPredicate(t *testing.T) {
	pred := RelayExclusionPredicate("host-a", false)

	assert.False(t, pred(StreamDescriptor{Name: "_relay_eeg", Hostname: "host-a"}))
	assert.False(t, pred(StreamDescriptor{Name: "_monitor_eeg", Hostname: "host-a"}))
	assert.False(t, pred(StreamDescriptor{Name: "ctl", ContentType: "control", Hostname: "host-a"}))
	assert.False(t, pred(StreamDescriptor{Name: "markers", ContentType: "Markers", Hostname: "host-a"}))
	assert.False(t, pred(StreamDescriptor{Name: "eeg", Hostname: "host-b"}))
	assert.True(t, pred(StreamDescriptor{Name: "eeg", ContentType: "EEG", Hostname: "host-a"}))
}

func TestRelayExclusionPredicate_nonLocalAllowed(t *testing.T) {
	pred := RelayExclusionPredicate("host-a", true)
	assert.True(t, pred(StreamDescriptor{Name: "eeg", Hostname: "host-b"}))
	assert.False(t, pred(StreamDescriptor{Name: "_relay_eeg", Hostname: "host-b"}))
}

func TestMonitorAggregationPredicate(t *testing.T) {
	pred := MonitorAggregationPredicate()
	assert.True(t, pred(StreamDescriptor{Name: "_monitor_eeg"}))
	assert.False(t, pred(StreamDescriptor{Name: "eeg"}))
}

func TestStreamDescriptorValidate(t *testing.T) {
	d := StreamDescriptor{ChannelCount: 4, ChannelLabels: []string{"a", "b"}}
	fixed, diag := d.Validate()
	assert.Nil(t, fixed.ChannelLabels)
	assert.NotEmpty(t, diag)

	d2 := StreamDescriptor{ChannelCount: 2, ChannelLabels: []string{"a", "b"}}
	fixed2, diag2 := d2.Validate()
	assert.Equal(t, []string{"a", "b"}, fixed2.ChannelLabels)
	assert.Empty(t, diag2)
}

func TestStreamKey(t *testing.T) {
	d := StreamDescriptor{Name: "eeg", SourceID: "s1", Hostname: "h1", ChannelCount: 4, ContentType: "EEG"}
	k1 := NewStreamKey(d, false)
	k2 := NewStreamKey(d, false)
	assert.Equal(t, k1, k2)

	d.ContentType = "other"
	k3 := NewStreamKey(d, true)
	k4 := NewStreamKey(d, true)
	assert.Equal(t, k3, k4)
	assert.NotEqual(t, NewStreamKey(StreamDescriptor{Name: "eeg", SourceID: "s1", Hostname: "h1", ChannelCount: 4, ContentType: "EEG"}, true), k3)
}
