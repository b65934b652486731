package audio

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pttype/internal/domain"
)

func TestDeliveryGateNoFramesAfterClose(t *testing.T) {
	t.Parallel()

	for round := 0; round < 50; round++ {
		var gate deliveryGate
		var closed atomic.Bool
		var delivered, late atomic.Int64

		gate.open(func(domain.AudioFrame) {
			if closed.Load() {
				late.Add(1)
			}
			delivered.Add(1)
		}, domain.AudioFormat{SampleRate: 16000, Channels: 1, Encoding: "linear16"})

		var wg sync.WaitGroup
		for producer := 0; producer < 4; producer++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 2000; i++ {
					gate.deliver([]byte{0, 0}, time.Now())
				}
			}()
		}

		time.Sleep(100 * time.Microsecond)
		gate.close()
		closed.Store(true)
		wg.Wait()

		if got := late.Load(); got != 0 {
			t.Fatalf("round %d: %d frames delivered after close", round, got)
		}
	}
}

func TestDeliveryGateSequencesFrames(t *testing.T) {
	t.Parallel()

	var gate deliveryGate
	var seqs []uint64
	format := domain.AudioFormat{SampleRate: 8000, Channels: 2, Encoding: "linear16"}
	gate.open(func(frame domain.AudioFrame) {
		seqs = append(seqs, frame.Seq)
		if frame.Format != format {
			t.Fatalf("unexpected format: %+v", frame.Format)
		}
	}, format)

	for i := 0; i < 3; i++ {
		if !gate.deliver([]byte{1, 2}, time.Now()) {
			t.Fatalf("expected delivery %d to succeed", i)
		}
	}
	gate.close()
	if gate.deliver([]byte{1, 2}, time.Now()) {
		t.Fatalf("expected delivery after close to be refused")
	}
	if len(seqs) != 3 || seqs[0] != 0 || seqs[2] != 2 {
		t.Fatalf("unexpected sequence numbers: %v", seqs)
	}

	gate.open(func(frame domain.AudioFrame) { seqs = append(seqs, frame.Seq) }, format)
	gate.deliver(nil, time.Now())
	if seqs[len(seqs)-1] != 0 {
		t.Fatalf("expected sequence to restart on reopen, got %v", seqs)
	}
}

func TestEncodePCM16LittleEndian(t *testing.T) {
	t.Parallel()

	got := encodePCM16([]int16{1, -1, 256})
	want := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x01}
	if string(got) != string(want) {
		t.Fatalf("unexpected encoding: %v", got)
	}
}

func TestOptionsDefaultsAndFrameSize(t *testing.T) {
	t.Parallel()

	opts := Options{}.withDefaults()
	if opts.SampleRate != 16000 || opts.Channels != 1 || opts.FrameSamples != 1024 {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
	if opts.Command != "ffmpeg" || opts.InputFormat != "pulse" || opts.InputDevice != "default" {
		t.Fatalf("unexpected ffmpeg defaults: %+v", opts)
	}
	if got := (Options{FrameSamples: 160, Channels: 2}).frameBytes(); got != 640 {
		t.Fatalf("unexpected frame size: %d", got)
	}
}
