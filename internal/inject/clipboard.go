package inject

import "github.com/atotto/clipboard"

// SystemClipboard is the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) ReadText() (string, error) {
	return clipboard.ReadAll()
}

func (SystemClipboard) WriteText(text string) error {
	return clipboard.WriteAll(text)
}

// Supported reports whether a clipboard backend is present.
func (SystemClipboard) Supported() bool {
	return !clipboard.Unsupported
}
