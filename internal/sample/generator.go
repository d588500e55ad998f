// Package sample implements the pure sample generator: deterministic
// per-channel values from {sample_index, elapsed_time, stream_index,
// channel_index}.
package sample

import (
	"fmt"
	"math"
)

// Tag is a recognised per-channel function tag table.
type Tag string

const (
	TagStreamID Tag = "stream-id"
	TagStreamSeq Tag = "stream-seq"
	TagCounter Tag = "counter"
	TagCounterPlus Tag = "counter+"
	TagCounterModFs Tag = "counter-mod-fs"
	TagImpulse Tag = "impulse"
	TagSine Tag = "sine"
	TagSinePlus Tag = "sine+"
)

// Value computes one channel's value for sample n of stream streamIdx at
// elapsed time t (seconds), channel c of channelCount total, given nominal
// sample rate srate (Hz).
func Value(tag Tag, streamIdx, n, c, channelCount int, t, srate float64) (float64, error) {
	switch tag {
	case TagStreamID:
		return float64(streamIdx), nil
	case TagStreamSeq:
		return float64(streamIdx + c), nil
	case TagCounter:
		return float64(n), nil
	case TagCounterPlus:
		return float64(n*channelCount + c), nil
	case TagCounterModFs:
		if srate <= 0 {
			return 0, fmt.Errorf("sample: %s requires nominal_srate > 0", tag)
		}
		return math.Mod(float64(n), srate), nil
	case TagImpulse:
		if srate <= 0 {
			return 0, fmt.Errorf("sample: %s requires nominal_srate > 0", tag)
		}
		if math.Mod(float64(n), srate) == 0 {
			return 1, nil
		}
		return 0, nil
	case TagSine:
		return math.Sin(2 * math.Pi * t), nil
	case TagSinePlus:
		freq := math.Pow(2, float64(c))
		return math.Sin(2 * math.Pi * freq * t), nil
	default:
		return 0, fmt.Errorf("sample: unrecognised channel function tag %q", tag)
	}
}

// channelTags extends a short tag list to channelCount entries by repeating
// the last tag "If fewer tags than channels, the last tag
// extends to the remaining channels."
func channelTags(fns []Tag, channelCount int) []Tag {
	out := make([]Tag, channelCount)
	for c := 0; c < channelCount; c++ {
		if c < len(fns) {
			out[c] = fns[c]
		} else if len(fns) > 0 {
			out[c] = fns[len(fns)-1]
		}
	}
	return out
}

// Vector computes a full sample: one value per channel.
func Vector(streamIdx, n, channelCount int, fns []Tag, t, srate float64) ([]float64, error) {
	tags := channelTags(fns, channelCount)
	out := make([]float64, channelCount)
	for c, tag := range tags {
		v, err := Value(tag, streamIdx, n, c, channelCount, t, srate)
		if err != nil {
			return nil, err
		}
		out[c] = v
	}
	return out, nil
}

// ChannelLabel returns the default label "<tag> <k>" for the k-th (1-based)
// occurrence of tag among the channels seen so far, except sine+ whose
// labels are "sine 2^c Hz".
func ChannelLabel(tag Tag, c int, occurrence int) string {
	if tag == TagSinePlus {
		return fmt.Sprintf("sine 2^%d Hz", c)
	}
	return fmt.Sprintf("%s %d", tag, occurrence)
}

// ChannelType returns the default channel type for a tag: "counter" for the
// counter family, "stim" for impulse, "misc" otherwise.
func ChannelType(tag Tag) string {
	switch tag {
	case TagCounter, TagCounterPlus, TagCounterModFs, TagStreamID, TagStreamSeq:
		return "counter"
	case TagImpulse:
		return "stim"
	default:
		return "misc"
	}
}

// Metadata computes the default channel labels and types for a full channel
// set, extending fns per channelTags and tracking per-tag occurrence counts
// for label numbering.
func Metadata(fns []Tag, channelCount int) (labels []string, types []string) {
	tags := channelTags(fns, channelCount)
	occurrence := make(map[Tag]int, len(tags))
	labels = make([]string, channelCount)
	types = make([]string, channelCount)
	for c, tag := range tags {
		occurrence[tag]++
		labels[c] = ChannelLabel(tag, c, occurrence[tag])
		types[c] = ChannelType(tag)
	}
	return labels, types
}
