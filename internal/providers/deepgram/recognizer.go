package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pttype/internal/domain"
	"pttype/internal/logging"
	"pttype/internal/ports"
	"pttype/internal/rules"
)

const (
	eventBuffer = 32
	audioBuffer = 64
)

var errAudioBacklog = errors.New("deepgram audio backlog is full")

// Config controls the Deepgram listen stream.
type Config struct {
	APIKey         string
	APIBaseURL     string
	Model          string
	Language       string
	SmartFormat    bool
	InterimResults bool
	Encoding       string
	SampleRate     int
	Channels       int
}

// Recognizer opens one Deepgram websocket stream per run.
type Recognizer struct {
	cfg    Config
	rules  *rules.Engine
	dialer *websocket.Dialer
}

func NewRecognizer(cfg Config, engine *rules.Engine) *Recognizer {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Recognizer{cfg: cfg, rules: engine, dialer: websocket.DefaultDialer}
}

func (r *Recognizer) Start(ctx context.Context) (ports.RecognitionRun, error) {
	if strings.TrimSpace(r.cfg.APIKey) == "" {
		return nil, domain.NewError(domain.ErrorKindRecognizerUnavailable, "deepgram.start", "DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := buildListenURL(r.cfg)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorKindRecognizerUnavailable, "deepgram.start", "invalid listen url", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.cfg.APIKey)

	conn, resp, err := r.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, domain.WrapError(domain.ErrorKindRecognizerUnavailable, "deepgram.dial", "failed to connect to Deepgram", err)
	}

	run := &streamRun{
		id:         uuid.NewString(),
		conn:       conn,
		rules:      r.rules,
		events:     make(chan domain.RecognitionEvent, eventBuffer),
		audio:      make(chan []byte, audioBuffer),
		closed:     make(chan struct{}),
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}

	run.wg.Add(2)
	go run.readLoop()
	go run.writeLoop()
	go func() {
		run.wg.Wait()
		_ = conn.Close()
		close(run.done)
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = run.Close()
		case <-run.done:
		}
	}()

	logging.Debugw("deepgram stream opened", "run.id", run.id, "model", r.cfg.Model)
	return run, nil
}

type streamRun struct {
	id    string
	conn  *websocket.Conn
	rules *rules.Engine

	events     chan domain.RecognitionEvent
	audio      chan []byte
	closed     chan struct{}
	readerDone chan struct{}
	done       chan struct{}
	wg         sync.WaitGroup

	sendMu     sync.RWMutex
	sendClosed bool
	finishOnce sync.Once
	closeOnce  sync.Once

	errMu    sync.Mutex
	writeErr error

	// owned by readLoop
	transcript transcript
	lastSent   string
}

func (s *streamRun) ID() string { return s.id }

func (s *streamRun) Events() <-chan domain.RecognitionEvent { return s.events }

func (s *streamRun) Feed(frame domain.AudioFrame) error {
	if len(frame.Data) == 0 {
		return nil
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return ports.ErrRunClosed
	}
	select {
	case <-s.readerDone:
		return ports.ErrRunClosed
	default:
	}
	select {
	case s.audio <- frame.Data:
		return nil
	default:
		return errAudioBacklog
	}
}

// Finish flushes queued audio and asks Deepgram to close the stream once it
// has sent its last results.
func (s *streamRun) Finish() error {
	s.finishOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamRun) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.Finish()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *streamRun) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
					s.setWriteErr(fmt.Errorf("close stream: %w", err))
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.setWriteErr(fmt.Errorf("send audio: %w", err))
				return
			}
		case <-s.readerDone:
			return
		}
	}
}

func (s *streamRun) readLoop() {
	defer s.wg.Done()
	defer close(s.events)
	defer close(s.readerDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.terminate(s.endOfStream(err))
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			logging.Debugw("ignoring malformed deepgram message", "run.id", s.id, "error", err)
			continue
		}

		switch strings.ToLower(response.Type) {
		case "error":
			s.terminate(domain.Failed(domain.NewError(domain.ErrorKindRecognitionFailed, "deepgram.read", response.errorMessage())))
			return
		case "", "results":
			s.transcript.add(extractTranscript(response), response.IsFinal)
			s.emitPartial()
		}
	}
}

// endOfStream maps the read error that ended the stream to a terminal event.
func (s *streamRun) endOfStream(err error) domain.RecognitionEvent {
	if writeErr := s.getWriteErr(); writeErr != nil {
		return domain.Failed(domain.WrapError(domain.ErrorKindRecognitionFailed, "deepgram.write", "audio stream failed", writeErr))
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
		return domain.Final(s.rules.Apply(s.transcript.text()))
	}
	return domain.Failed(domain.WrapError(domain.ErrorKindRecognitionFailed, "deepgram.read", "deepgram stream ended unexpectedly", err))
}

func (s *streamRun) emitPartial() {
	text := s.rules.Apply(s.transcript.text())
	if text == "" || text == s.lastSent {
		return
	}
	select {
	case s.events <- domain.Partial(text):
		s.lastSent = text
	default:
		logging.Debugw("dropping partial transcript, consumer is behind", "run.id", s.id)
	}
}

// terminate delivers the terminal event unless the run was torn down.
func (s *streamRun) terminate(event domain.RecognitionEvent) {
	select {
	case <-s.closed:
		return
	default:
	}
	if event.Kind == domain.RecognitionFailed {
		logging.Warnw("deepgram run failed", "run.id", s.id, "error", event.Err)
	} else {
		logging.Debugw("deepgram run finished", "run.id", s.id)
	}
	select {
	case s.events <- event:
	case <-s.closed:
	}
}

func (s *streamRun) setWriteErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.writeErr == nil {
		s.writeErr = err
	}
}

func (s *streamRun) getWriteErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.writeErr
}
