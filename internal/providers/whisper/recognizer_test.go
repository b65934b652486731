package whisper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	openai "github.com/sashabaranov/go-openai"

	"pttype/internal/domain"
	"pttype/internal/ports"
	"pttype/internal/rules"
)

type fakeTranscriber struct {
	mu       sync.Mutex
	requests []openai.AudioRequest
	wavBytes int
	text     string
	err      error
	block    bool
}

func (f *fakeTranscriber) CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, request)
	if info, err := os.Stat(request.FilePath); err == nil {
		f.wavBytes = int(info.Size())
	}
	block, text, err := f.block, f.text, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return openai.AudioResponse{}, ctx.Err()
	}
	return openai.AudioResponse{Text: text}, err
}

func TestStartRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := newRecognizer(Config{}, nil, &fakeTranscriber{}).Start(context.Background())
	if !domain.IsKind(err, domain.ErrorKindRecognizerUnavailable) {
		t.Fatalf("expected recognizer_unavailable, got %v", err)
	}
}

func TestFinishTranscribesBufferedAudio(t *testing.T) {
	t.Parallel()

	client := &fakeTranscriber{text: "  hello world  "}
	engine, err := rules.NewEngine([]rules.Rule{{Match: "world", Replace: "World"}}, 1)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	recognizer := newRecognizer(Config{APIKey: "key", Language: "en-US", TempDir: t.TempDir()}, engine, client)

	run, err := recognizer.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := run.Feed(testFrame(uint64(i))); err != nil {
			t.Fatalf("feed failed: %v", err)
		}
	}
	if err := run.Finish(); err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	if err := run.Feed(testFrame(3)); !errors.Is(err, ports.ErrRunClosed) {
		t.Fatalf("expected ErrRunClosed after finish, got %v", err)
	}

	events := collect(t, run)
	if len(events) != 1 || events[0].Kind != domain.RecognitionFinal || events[0].Text != "hello World" {
		t.Fatalf("unexpected events: %+v", events)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(client.requests))
	}
	request := client.requests[0]
	if request.Model != openai.Whisper1 || request.Language != "en" {
		t.Fatalf("unexpected request: %+v", request)
	}
	if client.wavBytes <= 3*320 {
		t.Fatalf("unexpected wav size: %d", client.wavBytes)
	}
	if _, err := os.Stat(request.FilePath); !os.IsNotExist(err) {
		t.Fatalf("expected temp wav to be removed, stat err=%v", err)
	}
}

func TestEmptyRunFinalizesWithoutRequest(t *testing.T) {
	t.Parallel()

	client := &fakeTranscriber{text: "unused"}
	run, err := newRecognizer(Config{APIKey: "key"}, nil, client).Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_ = run.Finish()

	events := collect(t, run)
	if len(events) != 1 || events[0].Kind != domain.RecognitionFinal || events[0].Text != "" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if len(client.requests) != 0 {
		t.Fatalf("expected no request for empty audio")
	}
}

func TestTranscriptionErrorFails(t *testing.T) {
	t.Parallel()

	client := &fakeTranscriber{err: errors.New("rate limited")}
	run, err := newRecognizer(Config{APIKey: "key", TempDir: t.TempDir()}, nil, client).Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_ = run.Feed(testFrame(0))
	_ = run.Finish()

	events := collect(t, run)
	if len(events) != 1 || events[0].Kind != domain.RecognitionFailed {
		t.Fatalf("unexpected events: %+v", events)
	}
	if !domain.IsKind(events[0].Err, domain.ErrorKindRecognitionFailed) || !strings.Contains(events[0].Err.Error(), "rate limited") {
		t.Fatalf("unexpected error: %v", events[0].Err)
	}
}

func TestCloseCancelsInFlightUpload(t *testing.T) {
	t.Parallel()

	client := &fakeTranscriber{block: true}
	run, err := newRecognizer(Config{APIKey: "key", TempDir: t.TempDir()}, nil, client).Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_ = run.Feed(testFrame(0))
	_ = run.Finish()

	done := make(chan struct{})
	go func() {
		_ = run.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("close did not cancel the upload")
	}
}

func TestCloseBeforeFinishClosesEvents(t *testing.T) {
	t.Parallel()

	run, err := newRecognizer(Config{APIKey: "key"}, nil, &fakeTranscriber{}).Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_ = run.Feed(testFrame(0))
	if err := run.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := run.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if events := collect(t, run); len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
	if err := run.Finish(); err != nil {
		t.Fatalf("finish after close should be a no-op: %v", err)
	}
}

func TestRecognizerAgainstTranscriptionEndpoint(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var gotModel, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotModel = r.FormValue("model")
		mu.Unlock()
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = io.Copy(io.Discard, file)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"from the server"}`)
	}))
	defer server.Close()

	recognizer := NewRecognizer(Config{APIKey: "key", BaseURL: server.URL + "/v1", TempDir: t.TempDir()}, nil)
	run, err := recognizer.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_ = run.Feed(testFrame(0))
	_ = run.Finish()

	events := collect(t, run)
	if len(events) != 1 || events[0].Text != "from the server" {
		t.Fatalf("unexpected events: %+v", events)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotModel != "whisper-1" || gotAuth != "Bearer key" {
		t.Fatalf("unexpected request model=%q auth=%q", gotModel, gotAuth)
	}
}

func TestEncodeWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := encodeWAV(file, []byte{1, 0, 2, 0, 3, 0, 4, 0}, 16000, 1); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	_ = file.Close()

	in, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer in.Close()
	decoder := wav.NewDecoder(in)
	if !decoder.IsValidFile() {
		t.Fatalf("expected a valid wav file")
	}
	if decoder.SampleRate != 16000 || decoder.NumChans != 1 || decoder.BitDepth != 16 {
		t.Fatalf("unexpected header: rate=%d chans=%d depth=%d", decoder.SampleRate, decoder.NumChans, decoder.BitDepth)
	}

	if err := encodeWAV(file, []byte{1, 2, 3}, 16000, 1); err == nil {
		t.Fatalf("expected alignment error")
	}
}

func TestLanguageCode(t *testing.T) {
	t.Parallel()

	cases := map[string]string{"en-US": "en", "pt_BR": "pt", "DE": "de", "": ""}
	for input, want := range cases {
		if got := languageCode(input); got != want {
			t.Fatalf("languageCode(%q) = %q, want %q", input, got, want)
		}
	}
}

func testFrame(seq uint64) domain.AudioFrame {
	return domain.AudioFrame{
		Seq:    seq,
		Data:   make([]byte, 320),
		Format: domain.AudioFormat{SampleRate: 16000, Channels: 1, Encoding: "linear16"},
	}
}

func collect(t *testing.T, run ports.RecognitionRun) []domain.RecognitionEvent {
	t.Helper()
	var events []domain.RecognitionEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-run.Events():
			if !ok {
				return events
			}
			events = append(events, event)
		case <-timeout:
			t.Fatalf("timed out waiting for events to close")
		}
	}
}
