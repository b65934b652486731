// Package status fans session updates out to display surfaces.
package status

import (
	"sort"
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"pttype/internal/domain"
	"pttype/internal/ports"
)

const (
	TopicState      = "session:state"
	TopicTranscript = "session:transcript"
	TopicAlert      = "session:alert"
)

// Hub implements ports.StatusSink over an in-process event bus. Handlers
// registered with On* run synchronously on the publishing goroutine and must
// not block.
type Hub struct {
	bus evbus.Bus

	states      registry[func(domain.SessionState)]
	transcripts registry[func(text string, final bool)]
	alerts      registry[func(error)]
}

func NewHub() *Hub {
	h := &Hub{bus: evbus.New()}
	// The bus identifies handlers by code pointer, so subscriptions are kept
	// in per-topic registries behind one bus handler each.
	_ = h.bus.Subscribe(TopicState, func(state domain.SessionState) {
		h.states.each(func(fn func(domain.SessionState)) { fn(state) })
	})
	_ = h.bus.Subscribe(TopicTranscript, func(text string, final bool) {
		h.transcripts.each(func(fn func(string, bool)) { fn(text, final) })
	})
	_ = h.bus.Subscribe(TopicAlert, func(err error) {
		h.alerts.each(func(fn func(error)) { fn(err) })
	})
	return h
}

func (h *Hub) StateChanged(state domain.SessionState) {
	h.bus.Publish(TopicState, state)
}

func (h *Hub) Transcript(text string, final bool) {
	h.bus.Publish(TopicTranscript, text, final)
}

func (h *Hub) Alert(err error) {
	if err == nil {
		return
	}
	h.bus.Publish(TopicAlert, err)
}

func (h *Hub) OnState(fn func(domain.SessionState)) ports.Subscription {
	return h.states.add(fn)
}

func (h *Hub) OnTranscript(fn func(text string, final bool)) ports.Subscription {
	return h.transcripts.add(fn)
}

func (h *Hub) OnAlert(fn func(error)) ports.Subscription {
	return h.alerts.add(fn)
}

// subscribeAsync runs fn on its own goroutine for every publish on topic.
func (h *Hub) subscribeAsync(topic string, fn interface{}) error {
	return h.bus.SubscribeAsync(topic, fn, false)
}

// Close waits for asynchronous subscribers to finish.
func (h *Hub) Close() {
	h.bus.WaitAsync()
}

type registry[T any] struct {
	mu   sync.RWMutex
	next uint64
	fns  map[uint64]T
}

func (r *registry[T]) add(fn T) ports.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fns == nil {
		r.fns = make(map[uint64]T)
	}
	id := r.next
	r.next++
	r.fns[id] = fn
	return ports.SubscriptionFunc(func() {
		r.mu.Lock()
		delete(r.fns, id)
		r.mu.Unlock()
	})
}

// each calls visit in subscription order.
func (r *registry[T]) each(visit func(T)) {
	r.mu.RLock()
	ids := make([]uint64, 0, len(r.fns))
	for id := range r.fns {
		ids = append(ids, id)
	}
	fns := make(map[uint64]T, len(r.fns))
	for id, fn := range r.fns {
		fns[id] = fn
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		visit(fns[id])
	}
}
