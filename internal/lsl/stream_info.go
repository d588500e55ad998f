// Package lsl is a minimal stand-in for the Lab Streaming Layer client
// library: outlets, inlets, predicate-based resolution and a shared local
// clock, carried over UDP multicast beacons (discovery) and TCP (data).
//
// It does not attempt wire-compatibility with liblsl; only the documented
// contract that the rest of this module relies on (resolve a predicate, push
// a sample, pull a sample, read the local clock) is implemented.
package lsl

import (
	"fmt"

	"github.com/google/uuid"
)

// ChannelFormat enumerates the LSL channel sample types this module supports.
type ChannelFormat string

const (
	FormatInt8     ChannelFormat = "int8"
	FormatInt16    ChannelFormat = "int16"
	FormatInt32    ChannelFormat = "int32"
	FormatInt64    ChannelFormat = "int64"
	FormatFloat32  ChannelFormat = "float32"
	FormatDouble64 ChannelFormat = "double64"
	FormatString   ChannelFormat = "string"
)

// IrregularRate is the nominal_srate value meaning "no pacing; timestamp at
// emission time".
const IrregularRate = 0.0

// StreamDescriptor is the immutable identity and shape of a stream.
type StreamDescriptor struct {
	Name          string            `json:"name"`
	ContentType   string            `json:"content_type"`
	ChannelCount  int               `json:"channel_count"`
	NominalSRate  float64           `json:"nominal_srate"`
	ChannelFormat ChannelFormat     `json:"channel_format"`
	SourceID      string            `json:"source_id"`
	Hostname      string            `json:"hostname"`
	ChannelLabels []string          `json:"channel_labels,omitempty"`
	ChannelTypes  []string          `json:"channel_types,omitempty"`
	ChannelUnits  []string          `json:"channel_units,omitempty"`
	Desc          map[string]string `json:"desc,omitempty"`
}

// Validate normalizes channel-metadata mismatches to defaults. Returns the
// (possibly corrected) descriptor and a diagnostic message, empty if
// nothing needed fixing.
func (d StreamDescriptor) Validate() (StreamDescriptor, string) {
	var diag string
	if len(d.ChannelLabels) != 0 && len(d.ChannelLabels) != d.ChannelCount {
		diag += fmt.Sprintf("channel_labels count %d != channel_count %d, reset; ", len(d.ChannelLabels), d.ChannelCount)
		d.ChannelLabels = nil
	}
	if len(d.ChannelTypes) != 0 && len(d.ChannelTypes) != d.ChannelCount {
		diag += fmt.Sprintf("channel_types count %d != channel_count %d, reset; ", len(d.ChannelTypes), d.ChannelCount)
		d.ChannelTypes = nil
	}
	if len(d.ChannelUnits) != 0 && len(d.ChannelUnits) != d.ChannelCount {
		diag += fmt.Sprintf("channel_units count %d != channel_count %d, reset; ", len(d.ChannelUnits), d.ChannelCount)
		d.ChannelUnits = nil
	}
	return d, diag
}

// StreamKey is the supervisor's resolver dedup key. IncludeContentType
// should be true for relay supervision.
type StreamKey struct {
	Name           string
	SourceID       string
	Hostname       string
	ChannelCount   int
	ContentType    string // only compared when IncludeContentType is true at construction
	includeContent bool
}

// NewStreamKey builds a StreamKey from a descriptor. includeContentType
// should be true for relay workers.
func NewStreamKey(d StreamDescriptor, includeContentType bool) StreamKey {
	k := StreamKey{
		Name:           d.Name,
		SourceID:       d.SourceID,
		Hostname:       d.Hostname,
		ChannelCount:   d.ChannelCount,
		includeContent: includeContentType,
	}
	if includeContentType {
		k.ContentType = d.ContentType
	}
	return k
}

// StreamInfo is a resolved, addressable stream: its descriptor plus the
// transport coordinates needed to open an inlet.
type StreamInfo struct {
	UID        string           `json:"uid"`
	Host       string           `json:"host"`
	Port       int              `json:"port"`
	Descriptor StreamDescriptor `json:"descriptor"`
}

func newUID() string {
	return uuid.NewString()
}
