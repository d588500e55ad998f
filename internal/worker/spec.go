// Package worker implements the Stream Worker state machine and its Relay
// Worker specialisation.
package worker

import (
	"github.com/labstreaming/lsltools/internal/lsl"
	"github.com/labstreaming/lsltools/internal/sample"
)

// Spec is the process-boundary record handed from parent to child at
// spawn time: everything a Stream Worker needs to run standalone.
type Spec struct {
	Descriptor      lsl.StreamDescriptor `json:"descriptor"`
	ChannelFns      []sample.Tag         `json:"channel_fns"`
	Latency         float64              `json:"latency"`
	MaxTime         float64              `json:"max_time"`    // seconds elapsed since start_time; 0 = unlimited
	MaxSamples      int64                `json:"max_samples"` // 0 = unlimited
	MonitorInterval float64              `json:"monitor_interval"`
	MulticastAddr   string               `json:"multicast_addr"`

	// Relay-only fields; zero value means "not a relay".
	RelayUpstreamName        string `json:"relay_upstream_name,omitempty"`
	RelayUpstreamContentType string `json:"relay_upstream_content_type,omitempty"`
	RelayUpstreamHostname    string `json:"relay_upstream_hostname,omitempty"`
	RelayReEncodeTimestamps  bool   `json:"relay_re_encode_timestamps,omitempty"`
}

// IsRelay reports whether this spec describes a Relay Worker.
func (s Spec) IsRelay() bool { return s.RelayUpstreamName != "" }

// Phase is one of the Stream Worker state machine's states.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhasePaused   Phase = "paused"
	PhaseStopping Phase = "stopping"
	PhaseTerminal Phase = "terminal"
)

// State is a worker's current run state.
type State struct {
	StartTime   *float64 `json:"start_time,omitempty"`
	StopTime    *float64 `json:"stop_time,omitempty"`
	LogicalTime float64  `json:"logical_time"`
	ElapsedTime float64  `json:"elapsed_time"`
	SampleCount int64    `json:"sample_count"`
	Latency     float64  `json:"latency"`
	Phase       Phase    `json:"phase"`
}

// Status is a worker status heartbeat, emitted on every monitor tick and
// phase transition.
type Status struct {
	Name        string  `json:"name"`
	Phase       Phase   `json:"phase"`
	SampleCount int64   `json:"sample_count"`
	LogicalTime float64 `json:"logical_time"`
	Ready       bool    `json:"ready,omitempty"`
	Err         string  `json:"err,omitempty"`
}
