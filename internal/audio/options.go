package audio

import (
	"encoding/binary"

	"pttype/internal/domain"
)

const (
	defaultSampleRate   = 16000
	defaultChannels     = 1
	defaultFrameSamples = 1024
)

// Options describe the capture format shared by every source.
type Options struct {
	SampleRate   int
	Channels     int
	FrameSamples int

	// ffmpeg only.
	Command     string
	InputFormat string
	InputDevice string
}

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = defaultSampleRate
	}
	if o.Channels <= 0 {
		o.Channels = defaultChannels
	}
	if o.FrameSamples <= 0 {
		o.FrameSamples = defaultFrameSamples
	}
	if o.Command == "" {
		o.Command = "ffmpeg"
	}
	if o.InputFormat == "" {
		o.InputFormat = "pulse"
	}
	if o.InputDevice == "" {
		o.InputDevice = "default"
	}
	return o
}

func (o Options) format() domain.AudioFormat {
	return domain.AudioFormat{SampleRate: o.SampleRate, Channels: o.Channels, Encoding: "linear16"}
}

// frameBytes is the size of one frame of interleaved s16le samples.
func (o Options) frameBytes() int {
	return o.FrameSamples * o.Channels * 2
}

func encodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}
