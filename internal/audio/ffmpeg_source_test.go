package audio

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pttype/internal/domain"
)

func TestFFmpegSourceDeliversFramesUntilStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nexec cat /dev/zero\n")
	source := NewFFmpegSource(Options{Command: script, FrameSamples: 160})

	var stopped atomic.Bool
	var frames, late atomic.Int64
	handler := func(frame domain.AudioFrame) {
		if stopped.Load() {
			late.Add(1)
		}
		if len(frame.Data) != 320 {
			t.Errorf("unexpected frame size: %d", len(frame.Data))
		}
		frames.Add(1)
	}

	if err := source.Start(context.Background(), handler); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := source.Start(context.Background(), handler); err != nil {
		t.Fatalf("second start should be a no-op: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for frames.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if frames.Load() < 3 {
		t.Fatalf("expected frames, got %d", frames.Load())
	}

	if err := source.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	stopped.Store(true)
	after := frames.Load()

	time.Sleep(50 * time.Millisecond)
	if got := late.Load(); got != 0 {
		t.Fatalf("%d frames delivered after stop", got)
	}
	if frames.Load() != after {
		t.Fatalf("frame count moved after stop: %d -> %d", after, frames.Load())
	}
	if err := source.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op: %v", err)
	}
}

func TestFFmpegSourceStartEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	source := NewFFmpegSource(Options{Command: script})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := source.Start(ctx, func(domain.AudioFrame) {})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !domain.IsKind(err, domain.ErrorKindDeviceUnavailable) {
		t.Fatalf("expected device_unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := source.Stop(); err != nil {
		t.Fatalf("stop on a source that never started should be a no-op: %v", err)
	}
}

func TestIgnoreExitStatus(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := ignoreExitStatus(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
	if got := trimOutput("  hi\n"); got != "hi" {
		t.Fatalf("unexpected trim result: %q", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestProbeFFmpeg(t *testing.T) {
	t.Parallel()

	if err := ProbeFFmpeg(Options{Command: writeScript(t, "recorder.sh", "#!/bin/sh\nexit 0\n")}); err != nil {
		t.Fatalf("expected script to be found: %v", err)
	}
	if err := ProbeFFmpeg(Options{Command: "pttype-missing-recorder"}); err == nil {
		t.Fatalf("expected missing recorder error")
	}
}
