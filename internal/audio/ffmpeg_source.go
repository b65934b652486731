package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"pttype/internal/domain"
	"pttype/internal/logging"
	"pttype/internal/ports"
)

const (
	ffmpegStartupCheck = 250 * time.Millisecond
	ffmpegStopTimeout  = 1200 * time.Millisecond
)

// FFmpegSource captures microphone PCM by reading s16le frames from an
// ffmpeg child process.
type FFmpegSource struct {
	opts Options

	mu     sync.Mutex
	proc   *ffmpegProcess
	reader chan struct{}
	gate   deliveryGate
}

func NewFFmpegSource(opts Options) *FFmpegSource {
	return &FFmpegSource{opts: opts.withDefaults()}
}

// Start spawns the recorder and begins delivering frames to handler.
func (s *FFmpegSource) Start(ctx context.Context, handler ports.FrameHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != nil {
		return nil
	}

	proc, err := spawnFFmpeg(ctx, s.opts)
	if err != nil {
		return domain.WrapError(domain.ErrorKindDeviceUnavailable, "audio.ffmpeg.start", "could not open audio input", err)
	}

	s.gate.open(handler, s.opts.format())
	s.proc = proc
	s.reader = make(chan struct{})
	go s.readFrames(proc, s.reader)

	logging.Infow("audio capture started", "audio.backend", "ffmpeg", "audio.device", s.opts.InputDevice)
	return nil
}

// Stop closes the delivery path, then ends the recorder.
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return nil
	}

	s.gate.close()
	err := s.proc.stop()
	<-s.reader
	s.proc = nil
	s.reader = nil

	logging.Infow("audio capture stopped", "audio.backend", "ffmpeg")
	return err
}

func (s *FFmpegSource) readFrames(proc *ffmpegProcess, done chan<- struct{}) {
	defer close(done)
	size := s.opts.frameBytes()
	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(proc.stdout, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				logging.Debugw("audio reader ended", "audio.backend", "ffmpeg", "error", err)
			}
			return
		}
		if !s.gate.deliver(buf, time.Now()) {
			return
		}
	}
}

type ffmpegProcess struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func spawnFFmpeg(ctx context.Context, opts Options) (*ffmpegProcess, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", opts.InputFormat,
		"-i", opts.InputDevice,
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, opts.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// A missing device makes ffmpeg exit right away.
	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimOutput(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(ffmpegStartupCheck):
	}

	return &ffmpegProcess{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

func (p *ffmpegProcess) stop() error {
	p.stopOnce.Do(func() {
		if p.process != nil {
			_ = p.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-p.waitErr:
			if ok {
				p.stopErr = ignoreExitStatus(err)
			}
		case <-time.After(ffmpegStopTimeout):
			if p.process != nil {
				_ = p.process.Kill()
			}
			if err, ok := <-p.waitErr; ok {
				p.stopErr = ignoreExitStatus(err)
			}
		}

		if closeErr := p.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && p.stopErr == nil {
			p.stopErr = closeErr
		}
		if p.stopErr != nil && p.stderr.Len() > 0 {
			p.stopErr = fmt.Errorf("%w: %s", p.stopErr, trimOutput(p.stderr.String()))
		}
	})
	return p.stopErr
}

// ignoreExitStatus drops the non-zero exit ffmpeg reports after SIGINT.
func ignoreExitStatus(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(input string) string {
	return string(bytes.TrimSpace([]byte(input)))
}
