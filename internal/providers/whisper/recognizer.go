// Package whisper recognizes buffered audio with the OpenAI transcription
// API. It produces no partial results.
package whisper

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"pttype/internal/domain"
	"pttype/internal/logging"
	"pttype/internal/ports"
	"pttype/internal/rules"
)

// Config controls the transcription request.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Prompt   string
	TempDir  string
}

type transcriber interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// Recognizer buffers a run's audio and transcribes it on Finish.
type Recognizer struct {
	cfg    Config
	rules  *rules.Engine
	client transcriber
}

func NewRecognizer(cfg Config, engine *rules.Engine) *Recognizer {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return newRecognizer(cfg, engine, openai.NewClientWithConfig(clientConfig))
}

func newRecognizer(cfg Config, engine *rules.Engine, client transcriber) *Recognizer {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return &Recognizer{cfg: cfg, rules: engine, client: client}
}

func (r *Recognizer) Start(ctx context.Context) (ports.RecognitionRun, error) {
	if strings.TrimSpace(r.cfg.APIKey) == "" {
		return nil, domain.NewError(domain.ErrorKindRecognizerUnavailable, "whisper.start", "OPENAI_API_KEY is not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &batchRun{
		id:       uuid.NewString(),
		parent:   r,
		ctx:      runCtx,
		cancel:   cancel,
		events:   make(chan domain.RecognitionEvent, 1),
		finished: make(chan struct{}),
	}, nil
}

type batchRun struct {
	id     string
	parent *Recognizer
	ctx    context.Context
	cancel context.CancelFunc
	events chan domain.RecognitionEvent

	mu       sync.Mutex
	pcm      []byte
	format   domain.AudioFormat
	ended    bool
	finished chan struct{}
}

func (b *batchRun) ID() string { return b.id }

func (b *batchRun) Events() <-chan domain.RecognitionEvent { return b.events }

func (b *batchRun) Feed(frame domain.AudioFrame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		return ports.ErrRunClosed
	}
	if b.format.SampleRate == 0 {
		b.format = frame.Format
	}
	b.pcm = append(b.pcm, frame.Data...)
	return nil
}

func (b *batchRun) Finish() error {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return nil
	}
	b.ended = true
	pcm := b.pcm
	format := b.format
	b.pcm = nil
	b.mu.Unlock()

	go func() {
		defer close(b.finished)
		defer close(b.events)
		b.events <- b.transcribe(pcm, format)
	}()
	return nil
}

// Close abandons the run. An upload in flight is cancelled.
func (b *batchRun) Close() error {
	b.cancel()
	b.mu.Lock()
	if !b.ended {
		b.ended = true
		b.pcm = nil
		close(b.events)
		close(b.finished)
	}
	b.mu.Unlock()
	<-b.finished
	return nil
}

func (b *batchRun) transcribe(pcm []byte, format domain.AudioFormat) domain.RecognitionEvent {
	if len(pcm) == 0 {
		return domain.Final("")
	}
	if format.SampleRate <= 0 {
		format.SampleRate = 16000
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}
	cfg := b.parent.cfg

	file, err := os.CreateTemp(cfg.TempDir, "pttype-*.wav")
	if err != nil {
		return b.failed("whisper.encode", "could not buffer audio", err)
	}
	defer os.Remove(file.Name())

	err = encodeWAV(file, pcm, format.SampleRate, format.Channels)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return b.failed("whisper.encode", "could not encode audio", err)
	}

	resp, err := b.parent.client.CreateTranscription(b.ctx, openai.AudioRequest{
		Model:    cfg.Model,
		FilePath: file.Name(),
		Language: languageCode(cfg.Language),
		Prompt:   cfg.Prompt,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return b.failed("whisper.transcribe", "transcription request failed", err)
	}

	text := b.parent.rules.Apply(strings.TrimSpace(resp.Text))
	logging.Debugw("whisper transcription complete", "run.id", b.id, "chars", len(text))
	return domain.Final(text)
}

func (b *batchRun) failed(op, message string, err error) domain.RecognitionEvent {
	logging.Warnw("whisper run failed", "run.id", b.id, "op", op, "error", err)
	return domain.Failed(domain.WrapError(domain.ErrorKindRecognitionFailed, op, message, err))
}

// languageCode reduces a locale such as en-US to the ISO-639-1 code the
// transcription API accepts.
func languageCode(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}
