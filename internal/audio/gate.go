package audio

import (
	"sync"
	"sync/atomic"
	"time"

	"pttype/internal/domain"
	"pttype/internal/ports"
)

// deliveryGate hands frames to the registered handler until it is closed.
// close waits for in-flight deliveries, so once it returns the handler is
// never called again.
type deliveryGate struct {
	mu      sync.RWMutex
	handler ports.FrameHandler
	format  domain.AudioFormat
	seq     atomic.Uint64
}

func (g *deliveryGate) open(handler ports.FrameHandler, format domain.AudioFormat) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = handler
	g.format = format
	g.seq.Store(0)
}

// deliver reports false once the gate is closed.
func (g *deliveryGate) deliver(data []byte, capturedAt time.Time) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.handler == nil {
		return false
	}
	g.handler(domain.AudioFrame{
		Seq:        g.seq.Add(1) - 1,
		Data:       data,
		Format:     g.format,
		CapturedAt: capturedAt,
	})
	return true
}

func (g *deliveryGate) close() {
	g.mu.Lock()
	g.handler = nil
	g.mu.Unlock()
}
