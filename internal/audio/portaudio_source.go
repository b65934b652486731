package audio

import (
	"context"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"pttype/internal/domain"
	"pttype/internal/logging"
	"pttype/internal/ports"
)

// PortAudioSource captures from the default input device. Frames are
// produced on the PortAudio callback thread.
type PortAudioSource struct {
	opts Options

	mu     sync.Mutex
	stream *portaudio.Stream
	gate   deliveryGate
}

func NewPortAudioSource(opts Options) *PortAudioSource {
	return &PortAudioSource{opts: opts.withDefaults()}
}

func (s *PortAudioSource) Start(_ context.Context, handler ports.FrameHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return domain.WrapError(domain.ErrorKindDeviceUnavailable, "audio.portaudio.init", "could not initialize audio", err)
	}
	if _, err := portaudio.DefaultInputDevice(); err != nil {
		_ = portaudio.Terminate()
		return domain.WrapError(domain.ErrorKindDeviceUnavailable, "audio.portaudio.device", "no audio input device", err)
	}

	stream, err := portaudio.OpenDefaultStream(
		s.opts.Channels, 0, float64(s.opts.SampleRate), s.opts.FrameSamples,
		func(in []int16) {
			s.gate.deliver(encodePCM16(in), time.Now())
		},
	)
	if err != nil {
		_ = portaudio.Terminate()
		return domain.WrapError(domain.ErrorKindDeviceUnavailable, "audio.portaudio.open", "could not open audio input", err)
	}

	s.gate.open(handler, s.opts.format())
	if err := stream.Start(); err != nil {
		s.gate.close()
		_ = stream.Close()
		_ = portaudio.Terminate()
		return domain.WrapError(domain.ErrorKindDeviceUnavailable, "audio.portaudio.start", "could not start audio input", err)
	}
	s.stream = stream

	logging.Infow("audio capture started", "audio.backend", "portaudio", "audio.sample_rate", s.opts.SampleRate)
	return nil
}

func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}

	s.gate.close()
	stopErr := s.stream.Stop()
	if err := s.stream.Close(); err != nil && stopErr == nil {
		stopErr = err
	}
	if err := portaudio.Terminate(); err != nil && stopErr == nil {
		stopErr = err
	}
	s.stream = nil

	logging.Infow("audio capture stopped", "audio.backend", "portaudio")
	return stopErr
}
