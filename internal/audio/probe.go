package audio

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/gordonklaus/portaudio"
)

// ProbePortAudio reports whether a default input device is available.
func ProbePortAudio() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return fmt.Errorf("no default input device: %w", err)
	}
	if device == nil || device.MaxInputChannels < 1 {
		return errors.New("default input device has no input channels")
	}
	return nil
}

// ProbeFFmpeg reports whether the recorder command can be found.
func ProbeFFmpeg(opts Options) error {
	opts = opts.withDefaults()
	if _, err := exec.LookPath(opts.Command); err != nil {
		return fmt.Errorf("recorder %q not found: %w", opts.Command, err)
	}
	return nil
}
