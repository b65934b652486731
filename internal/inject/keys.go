package inject

import (
	"runtime"
	"sync"

	"github.com/micmonay/keybd_event"
)

type keyStroke struct {
	code  int
	shift bool
}

var letterKeys = [26]int{
	keybd_event.VK_A, keybd_event.VK_B, keybd_event.VK_C, keybd_event.VK_D,
	keybd_event.VK_E, keybd_event.VK_F, keybd_event.VK_G, keybd_event.VK_H,
	keybd_event.VK_I, keybd_event.VK_J, keybd_event.VK_K, keybd_event.VK_L,
	keybd_event.VK_M, keybd_event.VK_N, keybd_event.VK_O, keybd_event.VK_P,
	keybd_event.VK_Q, keybd_event.VK_R, keybd_event.VK_S, keybd_event.VK_T,
	keybd_event.VK_U, keybd_event.VK_V, keybd_event.VK_W, keybd_event.VK_X,
	keybd_event.VK_Y, keybd_event.VK_Z,
}

var digitKeys = [10]int{
	keybd_event.VK_0, keybd_event.VK_1, keybd_event.VK_2, keybd_event.VK_3,
	keybd_event.VK_4, keybd_event.VK_5, keybd_event.VK_6, keybd_event.VK_7,
	keybd_event.VK_8, keybd_event.VK_9,
}

// strokeFor maps r onto the US layout. Only letters, digits, space, tab and
// newline are mapped.
func strokeFor(r rune) (keyStroke, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return keyStroke{code: letterKeys[r-'a']}, true
	case r >= 'A' && r <= 'Z':
		return keyStroke{code: letterKeys[r-'A'], shift: true}, true
	case r >= '0' && r <= '9':
		return keyStroke{code: digitKeys[r-'0']}, true
	case r == ' ':
		return keyStroke{code: keybd_event.VK_SPACE}, true
	case r == '\t':
		return keyStroke{code: keybd_event.VK_TAB}, true
	case r == '\n':
		return keyStroke{code: keybd_event.VK_ENTER}, true
	}
	return keyStroke{}, false
}

// KeybdSender synthesizes key events through keybd_event. On Linux it needs
// write access to /dev/uinput.
type KeybdSender struct {
	mu  sync.Mutex
	kb  keybd_event.KeyBonding
	err error
}

func NewKeybdSender() *KeybdSender {
	kb, err := keybd_event.NewKeyBonding()
	return &KeybdSender{kb: kb, err: err}
}

// Trusted reports whether the platform accepted the virtual keyboard.
func (s *KeybdSender) Trusted() bool {
	return s.err == nil
}

// Err is the reason the sender is not trusted.
func (s *KeybdSender) Err() error {
	return s.err
}

// Paste sends Cmd+V on macOS and Ctrl+V elsewhere.
func (s *KeybdSender) Paste() error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.reset()

	if runtime.GOOS == "darwin" {
		s.kb.HasSuper(true)
	} else {
		s.kb.HasCTRL(true)
	}
	s.kb.SetKeys(keybd_event.VK_V)
	return s.kb.Launching()
}

func (s *KeybdSender) Tap(r rune) (bool, error) {
	stroke, ok := strokeFor(r)
	if !ok {
		return false, nil
	}
	if s.err != nil {
		return true, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.reset()

	s.kb.HasSHIFT(stroke.shift)
	s.kb.SetKeys(stroke.code)
	return true, s.kb.Launching()
}

func (s *KeybdSender) reset() {
	s.kb.Clear()
	s.kb.HasCTRL(false)
	s.kb.HasSHIFT(false)
	s.kb.HasSuper(false)
}
