package hotkey

import (
	"fmt"
	"runtime"
	"strings"
)

var modifierOrder = []string{"ctrl", "alt", "shift", "cmd"}

var modifierAliases = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"alt":     "alt",
	"option":  "alt",
	"opt":     "alt",
	"shift":   "shift",
	"cmd":     "cmd",
	"command": "cmd",
	"super":   "cmd",
	"meta":    "cmd",
}

// Binding is a key plus the modifiers that must be held with it.
type Binding struct {
	Key       string
	Modifiers []string
}

// DefaultBinding is Option+Command+R on macOS and Alt+Ctrl+R elsewhere.
func DefaultBinding() string {
	if runtime.GOOS == "darwin" {
		return "alt+cmd+r"
	}
	return "alt+ctrl+r"
}

// ParseBinding reads bindings such as "alt+cmd+r" or "Control + Shift + F9".
func ParseBinding(input string) (Binding, error) {
	var binding Binding
	seen := map[string]bool{}
	for _, part := range strings.Split(input, "+") {
		token := strings.ToLower(strings.TrimSpace(part))
		if token == "" {
			return Binding{}, fmt.Errorf("invalid hotkey %q: empty key", input)
		}
		if modifier, ok := modifierAliases[token]; ok {
			seen[modifier] = true
			continue
		}
		if binding.Key != "" {
			return Binding{}, fmt.Errorf("invalid hotkey %q: more than one key", input)
		}
		binding.Key = token
	}
	if binding.Key == "" {
		return Binding{}, fmt.Errorf("invalid hotkey %q: no key", input)
	}
	for _, modifier := range modifierOrder {
		if seen[modifier] {
			binding.Modifiers = append(binding.Modifiers, modifier)
		}
	}
	return binding, nil
}

func (b Binding) String() string {
	return strings.Join(append(append([]string(nil), b.Modifiers...), b.Key), "+")
}

// keys lists the binding in the order the hook registry expects.
func (b Binding) keys() []string {
	return append([]string{b.Key}, b.Modifiers...)
}
