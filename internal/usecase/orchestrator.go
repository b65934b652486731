package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pttype/internal/domain"
	"pttype/internal/logging"
	"pttype/internal/ports"
)

const (
	defaultSettleDelay = 200 * time.Millisecond
	defaultQueueSize   = 64
)

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Audio       ports.AudioSource
	Recognizer  ports.Recognizer
	Injector    ports.Injector
	Permissions ports.PermissionGate
	Status      ports.StatusSink
	Clock       ports.Clock
}

// Config controls orchestration timing and injection.
type Config struct {
	// SettleDelay lets window focus settle before text is injected.
	SettleDelay   time.Duration
	InjectionMode domain.InjectionMode
	QueueSize     int
}

// Orchestrator owns the dictation session state machine. Every mutation of
// session state happens on the goroutine running Run; other goroutines only
// enqueue commands.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	metrics *sessionMetrics

	commands chan command
	stopped  chan struct{}
	running  atomic.Bool
	stopOnce sync.Once

	snapshot atomic.Pointer[domain.Status]

	// Loop-owned state.
	ctx             context.Context
	session         domain.Session
	run             *activeRun
	injectionQueued bool
	cancelInjection func() bool
}

func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.InjectionMode == "" {
		cfg.InjectionMode = domain.InjectionModePaste
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}

	o := &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		metrics:  newSessionMetrics(),
		commands: make(chan command, cfg.QueueSize),
		stopped:  make(chan struct{}),
		session:  domain.Session{State: domain.SessionStateIdle},
	}
	o.publish()
	return o
}

// Run processes commands until ctx is cancelled or Shutdown completes.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("orchestrator is already running")
	}
	defer o.stopOnce.Do(func() { close(o.stopped) })

	o.ctx = ctx
	logging.Infow("orchestrator started")
	for {
		select {
		case <-ctx.Done():
			o.teardown()
			return ctx.Err()
		case cmd := <-o.commands:
			if cmd.apply(o) {
				logging.Infow("orchestrator stopped")
				return nil
			}
		}
	}
}

// Toggle is the hotkey signal. Safe to call from any goroutine.
func (o *Orchestrator) Toggle() {
	if !o.post(toggleCommand{}) {
		logging.Debugw("toggle ignored, orchestrator stopped")
	}
}

// Status returns the latest published snapshot.
func (o *Orchestrator) Status() domain.Status {
	return *o.snapshot.Load()
}

// Shutdown runs the stop path when recording and ends the loop.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if !o.running.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case o.commands <- shutdownCommand{done: done}:
	case <-o.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-o.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) post(cmd command) bool {
	select {
	case <-o.stopped:
		return false
	default:
	}
	select {
	case o.commands <- cmd:
		return true
	case <-o.stopped:
		return false
	}
}

func (o *Orchestrator) handleToggle() {
	switch o.session.State {
	case domain.SessionStateIdle:
		o.startRecording()
	case domain.SessionStateRecording:
		o.stopRecording()
	case domain.SessionStateTranscribing:
		logging.Infow("busy", logging.SessionFields(o.session.ID, string(o.session.State))...)
	}
}

func (o *Orchestrator) startRecording() {
	if !o.deps.Permissions.CheckAll() {
		o.alert(domain.NewError(domain.ErrorKindPermissionDenied, "start", "required permissions are not granted"))
		return
	}

	o.session = domain.Session{State: domain.SessionStateIdle}

	run, err := o.deps.Recognizer.Start(o.ctx)
	if err != nil {
		o.alert(domain.WrapError(domain.ErrorKindRecognizerUnavailable, "recognizer.start", "failed to start speech recognition", err))
		return
	}
	active := &activeRun{run: run}

	if err := o.deps.Audio.Start(o.ctx, o.frameHandler(active)); err != nil {
		if closeErr := run.Close(); closeErr != nil {
			logging.Warnw("recognition run teardown failed", "run.id", run.ID(), "error", closeErr)
		}
		o.alert(domain.WrapError(domain.ErrorKindDeviceUnavailable, "audio.start", "failed to start audio recording", err))
		return
	}

	o.session = domain.Session{
		ID:        uuid.NewString(),
		State:     domain.SessionStateIdle,
		StartedAt: o.deps.Clock.Now(),
	}
	o.run = active
	go o.drain(active)

	o.metrics.sessionStarted()
	o.setState(domain.SessionStateRecording)
}

func (o *Orchestrator) stopRecording() {
	if err := o.deps.Audio.Stop(); err != nil {
		logging.Warnw("audio stop failed", "session.id", o.session.ID, "error", err)
	}
	if o.run != nil && !o.run.terminated {
		if err := o.run.run.Finish(); err != nil {
			logging.Warnw("recognition finish failed", "session.id", o.session.ID, "run.id", o.run.id(), "error", err)
		}
	}
	o.setState(domain.SessionStateTranscribing)
}

// frameHandler forwards frames straight to the run. It runs on the capture
// thread and never touches session state.
func (o *Orchestrator) frameHandler(active *activeRun) ports.FrameHandler {
	run := active.run
	return func(frame domain.AudioFrame) {
		err := run.Feed(frame)
		if err == nil {
			return
		}
		if errors.Is(err, ports.ErrRunClosed) {
			o.metrics.frameDropped(dropRunClosed)
			logging.Debugw("dropping frame", "run.id", run.ID(), "frame.seq", frame.Seq, "error", err)
			return
		}
		// The run is still open, so this is captured speech that will not
		// be recognized.
		o.metrics.frameDropped(dropBacklog)
		logging.Warnw("audio frame lost", "run.id", run.ID(), "frame.seq", frame.Seq,
			"frame.duration_ms", frame.Duration().Milliseconds(), "error", err)
	}
}

func (o *Orchestrator) drain(active *activeRun) {
	runID := active.id()
	for event := range active.run.Events() {
		if !o.post(recognitionCommand{runID: runID, event: event}) {
			return
		}
	}
}

func (o *Orchestrator) handleRecognition(runID string, event domain.RecognitionEvent) {
	if o.run == nil || o.run.terminated || o.run.id() != runID {
		logging.Debugw("discarding stale recognition event", "run.id", runID, "kind", string(event.Kind))
		return
	}

	switch event.Kind {
	case domain.RecognitionPartial:
		if o.session.Accumulate(event.Text) {
			o.publish()
			o.deps.Status.Transcript(event.Text, false)
		}
	case domain.RecognitionFinal:
		o.run.terminated = true
		if o.session.Accumulate(event.Text) {
			o.publish()
			o.deps.Status.Transcript(event.Text, true)
		}
		o.endRun()
		o.beginInjection()
	case domain.RecognitionFailed:
		o.run.terminated = true
		o.endRun()
		if o.session.AccumulatedText != "" {
			o.metrics.recognitionFailed(true)
			logging.Warnw("recognition failed, delivering partial text",
				"session.id", o.session.ID, "run.id", runID, "error", event.Err)
			o.beginInjection()
			return
		}
		cause := event.Err
		if cause == nil {
			cause = errors.New("recognition run ended without a result")
		}
		o.metrics.recognitionFailed(false)
		o.alert(domain.WrapError(domain.ErrorKindRecognitionFailed, "recognizer.run", "speech recognition failed", cause))
		o.resetToIdle("recognition_failed")
	}
}

// endRun discards a terminated run. Capture stops with it when the terminal
// event arrived while still recording.
func (o *Orchestrator) endRun() {
	if o.session.State == domain.SessionStateRecording {
		if err := o.deps.Audio.Stop(); err != nil {
			logging.Warnw("audio stop failed", "session.id", o.session.ID, "error", err)
		}
	}
	if o.run == nil {
		return
	}
	if err := o.run.run.Close(); err != nil {
		logging.Debugw("recognition run close failed", "run.id", o.run.id(), "error", err)
	}
	o.run = nil
}

func (o *Orchestrator) beginInjection() {
	text := o.session.AccumulatedText
	if text == "" {
		logging.Infow("no text to deliver", "session.id", o.session.ID)
		o.resetToIdle("no_transcript")
		return
	}
	if o.injectionQueued {
		return
	}
	o.injectionQueued = true
	if o.session.State != domain.SessionStateTranscribing {
		o.setState(domain.SessionStateTranscribing)
	}

	ctx := o.ctx
	sessionID := o.session.ID
	mode := o.cfg.InjectionMode
	injector := o.deps.Injector
	o.cancelInjection = o.deps.Clock.AfterFunc(o.cfg.SettleDelay, func() {
		ok := injector.Deliver(ctx, text, mode)
		o.post(injectionDoneCommand{sessionID: sessionID, ok: ok})
	})
}

func (o *Orchestrator) handleInjectionDone(sessionID string, ok bool) {
	if !o.injectionQueued || sessionID != o.session.ID {
		return
	}
	o.metrics.injected(ok)
	outcome := "delivered"
	if !ok {
		outcome = "injection_failed"
		o.alert(domain.NewError(domain.ErrorKindInjectionFailed, "injector.deliver", "failed to deliver text to the focused application"))
	} else {
		logging.Infow("text delivered", "session.id", sessionID, "chars", len(o.session.AccumulatedText))
	}
	o.resetToIdle(outcome)
}

func (o *Orchestrator) resetToIdle(outcome string) {
	if !o.session.StartedAt.IsZero() {
		o.metrics.sessionCompleted(outcome, o.deps.Clock.Now().Sub(o.session.StartedAt))
	}
	o.session = domain.Session{State: domain.SessionStateIdle}
	o.injectionQueued = false
	o.cancelInjection = nil
	o.setState(domain.SessionStateIdle)
}

// teardown releases everything a session holds. Used on shutdown.
func (o *Orchestrator) teardown() {
	if o.session.State == domain.SessionStateRecording {
		o.stopRecording()
	}
	if o.cancelInjection != nil {
		o.cancelInjection()
		o.cancelInjection = nil
	}
	if o.run != nil {
		if err := o.run.run.Close(); err != nil {
			logging.Debugw("recognition run close failed", "run.id", o.run.id(), "error", err)
		}
		o.run = nil
	}
	if o.session.State != domain.SessionStateIdle {
		o.resetToIdle("shutdown")
	}
}

func (o *Orchestrator) setState(state domain.SessionState) {
	if o.session.State == state {
		o.publish()
		return
	}
	o.session.State = state
	o.publish()
	logging.Infow("session state changed", logging.SessionFields(o.session.ID, string(state))...)
	o.deps.Status.StateChanged(state)
}

func (o *Orchestrator) publish() {
	status := domain.Status{
		State:           o.session.State,
		Label:           o.session.State.Label(),
		SessionID:       o.session.ID,
		AccumulatedText: o.session.AccumulatedText,
		StartedAt:       o.session.StartedAt,
	}
	o.snapshot.Store(&status)
}

func (o *Orchestrator) alert(err error) {
	logging.Errorw("session error", "session.id", o.session.ID, "kind", string(domain.KindOf(err)), "error", err)
	o.deps.Status.Alert(err)
}
