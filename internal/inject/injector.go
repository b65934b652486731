// Package inject delivers recognized text into the focused application.
package inject

import (
	"context"
	"time"

	"pttype/internal/domain"
	"pttype/internal/logging"
	"pttype/internal/ports"
)

const (
	defaultClipboardSettle = 50 * time.Millisecond
	defaultKeyInterval     = 10 * time.Millisecond
	restoreDelay           = 120 * time.Millisecond
)

// Options tune delivery timing.
type Options struct {
	ClipboardSettle  time.Duration
	KeyInterval      time.Duration
	RestoreClipboard bool
}

// Injector implements ports.Injector over a clipboard and a key sender.
type Injector struct {
	clipboard ports.Clipboard
	keys      ports.KeySender
	opts      Options
}

func New(clipboard ports.Clipboard, keys ports.KeySender, opts Options) *Injector {
	if opts.ClipboardSettle <= 0 {
		opts.ClipboardSettle = defaultClipboardSettle
	}
	if opts.KeyInterval <= 0 {
		opts.KeyInterval = defaultKeyInterval
	}
	return &Injector{clipboard: clipboard, keys: keys, opts: opts}
}

// Deliver reports whether text reached the focused input. It never panics
// and returns false as soon as ctx is done.
func (i *Injector) Deliver(ctx context.Context, text string, mode domain.InjectionMode) bool {
	if text == "" {
		return true
	}
	if !i.keys.Trusted() {
		logging.Warnw("input injection is not permitted")
		return false
	}
	switch mode {
	case domain.InjectionModeType:
		return i.typeText(ctx, text)
	default:
		return i.paste(ctx, text)
	}
}

func (i *Injector) paste(ctx context.Context, text string) bool {
	var previous string
	restore := false
	if i.opts.RestoreClipboard {
		prev, err := i.clipboard.ReadText()
		if err != nil {
			logging.Debugw("clipboard read failed, previous contents will not be restored", "error", err)
		} else {
			previous, restore = prev, true
		}
	}

	if err := i.clipboard.WriteText(text); err != nil {
		logging.Warnw("clipboard write failed", "error", err)
		return false
	}
	if err := sleep(ctx, i.opts.ClipboardSettle); err != nil {
		return false
	}
	if err := i.keys.Paste(); err != nil {
		logging.Warnw("paste keystroke failed", "error", err)
		return false
	}

	if restore {
		if err := sleep(ctx, restoreDelay); err == nil {
			if err := i.clipboard.WriteText(previous); err != nil {
				logging.Debugw("clipboard restore failed", "error", err)
			}
		}
	}
	return true
}

func (i *Injector) typeText(ctx context.Context, text string) bool {
	for _, r := range text {
		if ctx.Err() != nil {
			return false
		}
		ok, err := i.keys.Tap(r)
		if err != nil {
			logging.Warnw("key event failed", "error", err)
			return false
		}
		if !ok {
			logging.Warnw("character has no key mapping", "rune", string(r))
			return false
		}
		if err := sleep(ctx, i.opts.KeyInterval); err != nil {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
