package deepgram

import "strings"

// transcript joins finalized segments with the segment still in flight.
// Deepgram revises the in-flight segment until it marks it final.
type transcript struct {
	finals  []string
	interim string
}

func (t *transcript) add(text string, final bool) {
	text = strings.TrimSpace(text)
	if final {
		if text != "" {
			t.finals = append(t.finals, text)
		}
		t.interim = ""
		return
	}
	if text != "" {
		t.interim = text
	}
}

func (t *transcript) text() string {
	parts := t.finals
	if t.interim != "" {
		parts = append(parts[:len(parts):len(parts)], t.interim)
	}
	return strings.Join(parts, " ")
}
