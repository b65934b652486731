// Package hotkey turns a global key chord into toggle signals.
package hotkey

import (
	"errors"
	"sync"
	"time"

	hook "github.com/robotn/gohook"

	"pttype/internal/logging"
	"pttype/internal/ports"
)

const defaultDebounce = 300 * time.Millisecond

var _ ports.HotkeyTrigger = (*Listener)(nil)

type backend interface {
	// register installs onPress for the chord and onRelease for the key
	// release of keys[0].
	register(keys []string, onPress, onRelease func())
	run()
	stop()
}

type gohookBackend struct {
	mu         sync.Mutex
	releaseKey uint16
	onRelease  func()
}

func (b *gohookBackend) register(keys []string, onPress, onRelease func()) {
	hook.Register(hook.KeyDown, keys, func(hook.Event) { onPress() })
	b.mu.Lock()
	b.releaseKey = hook.Keycode[keys[0]]
	b.onRelease = onRelease
	b.mu.Unlock()
}

// run reports releases of the main key from the raw stream, then hands every
// event on to the chord matcher, which only matches key down.
func (b *gohookBackend) run() {
	raw := hook.Start()
	forwarded := make(chan hook.Event, 64)
	go func() {
		defer close(forwarded)
		for ev := range raw {
			if ev.Kind == hook.KeyUp {
				b.mu.Lock()
				key, onRelease := b.releaseKey, b.onRelease
				b.mu.Unlock()
				if onRelease != nil && ev.Keycode == key {
					onRelease()
				}
			}
			forwarded <- ev
		}
	}()
	<-hook.Process(forwarded)
}

func (b *gohookBackend) stop() {
	hook.End()
}

// Listener fires its handler once per press of the binding. After firing it
// stays latched until the key is released, so auto-repeat from a held chord
// never toggles again. Presses within the debounce window are also ignored.
type Listener struct {
	binding  Binding
	debounce time.Duration
	backend  backend
	now      func() time.Time

	mu        sync.Mutex
	listening bool
}

func NewListener(binding Binding, debounce time.Duration) *Listener {
	return newListener(binding, debounce, &gohookBackend{})
}

func newListener(binding Binding, debounce time.Duration, b backend) *Listener {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Listener{binding: binding, debounce: debounce, backend: b, now: time.Now}
}

func (l *Listener) Listen(handler func()) (ports.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listening {
		return nil, errors.New("hotkey listener is already active")
	}
	l.listening = true

	var (
		fireMu  sync.Mutex
		last    time.Time
		latched bool
	)
	onPress := func() {
		fireMu.Lock()
		now := l.now()
		if latched || (!last.IsZero() && now.Sub(last) < l.debounce) {
			fireMu.Unlock()
			return
		}
		latched = true
		last = now
		fireMu.Unlock()
		handler()
	}
	onRelease := func() {
		fireMu.Lock()
		latched = false
		fireMu.Unlock()
	}
	l.backend.register(l.binding.keys(), onPress, onRelease)
	go l.backend.run()

	logging.Infow("hotkey registered", "hotkey", l.binding.String())

	var once sync.Once
	return ports.SubscriptionFunc(func() {
		once.Do(func() {
			l.backend.stop()
			l.mu.Lock()
			l.listening = false
			l.mu.Unlock()
			logging.Infow("hotkey released", "hotkey", l.binding.String())
		})
	}), nil
}
