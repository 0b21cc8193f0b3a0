package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/tbxark/soprano/assistant"
	"github.com/tbxark/soprano/audio"
	"github.com/tbxark/soprano/dialogue"
	"github.com/tbxark/soprano/fields"
	"github.com/tbxark/soprano/guide"
	"github.com/tbxark/soprano/interpret"
	"github.com/tbxark/soprano/speech"
	"github.com/tbxark/soprano/types"
)

// Orchestrator runs the voice dialogue one turn at a time. It owns the audio
// session and the guided-dialogue state; hosts only read from it.
type Orchestrator struct {
	audio       *audio.Session
	transcriber speech.Transcriber
	completer   assistant.Completer
	state       *dialogue.State

	classifier    *interpret.KeywordClassifier
	guide         *guide.Coordinator
	scanner       types.DocumentScanner
	registry      *fields.Registry
	hooks         Hooks
	observer      TurnObserver
	settle        time.Duration
	historyWindow int

	// turnMu serializes turns; mu guards the fields below it.
	turnMu     sync.Mutex
	mu         sync.Mutex
	status     Status
	screen     string
	screenData map[string]any
	cancel     context.CancelFunc
	turnSeq    uint64
}

func New(session *audio.Session, transcriber speech.Transcriber, completer assistant.Completer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		audio:         session,
		transcriber:   transcriber,
		completer:     completer,
		state:         dialogue.NewState(),
		classifier:    interpret.NewKeywordClassifier(),
		registry:      fields.NewDefaultRegistry(),
		settle:        DefaultSettleDelay,
		historyWindow: DefaultHistoryWindow,
		status:        StatusIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartForm starts a guided session for a registered form.
func (o *Orchestrator) StartForm(ctx context.Context, formID string, host types.FormHost) (*TurnResult, error) {
	form, ok := o.registry.Form(formID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown form %q", ErrGuidedUnavailable, formID)
	}
	return o.Start(ctx, form, host)
}

// Start replaces any running session, speaks the greeting and the first
// prompt, then opens the microphone.
func (o *Orchestrator) Start(ctx context.Context, form types.Form, host types.FormHost) (*TurnResult, error) {
	if len(form.Fields) == 0 {
		return nil, fmt.Errorf("%w: %q has no fields", ErrGuidedUnavailable, form.ID)
	}
	o.Stop()

	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	ctx, done := o.beginTurn(ctx)
	defer done()

	id, err := o.state.Start(form, host)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGuidedUnavailable, err)
	}
	slog.Info("guided session started", "session", id, "form", form.ID)
	return o.runTurn(ctx, func(ctx context.Context, t *turn) {
		t.result.SessionID = id
		t.result.Outcome = OutcomeStarted
		first, _ := o.state.CurrentField()
		o.say(ctx, t, form.Greeting)
		o.say(ctx, t, first.Prompt)
		o.listen(ctx, t)
	})
}

// Stop ends guided mode at once: playback and recording are torn down, the
// indicator goes idle and the dialogue state is reset. Safe to call at any
// time, including while a turn is running.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	changed := o.status != StatusIdle
	o.status = StatusIdle
	o.mu.Unlock()

	o.audio.StopPlayback()
	o.audio.DiscardCapture()
	form, active := o.state.Form()
	o.state.Stop()
	o.resetCompleter()
	if o.guide != nil {
		o.guide.Hide()
	}
	if changed {
		o.hooks.status(StatusIdle)
	}
	if active {
		slog.Info("guided session stopped", "form", form.ID)
		o.hooks.sessionEnd(form.ID, OutcomeStopped)
	}
}

// SetScreen records the screen the user is looking at and its data. Guide
// lookups are scoped to it.
func (o *Orchestrator) SetScreen(name string, data map[string]any) {
	o.mu.Lock()
	o.screen = name
	o.screenData = maps.Clone(data)
	o.mu.Unlock()
	if o.guide != nil {
		o.guide.SetActiveScreen(name)
	}
}

func (o *Orchestrator) Active() bool {
	return o.state.Active()
}

func (o *Orchestrator) SessionID() string {
	return o.state.SessionID()
}

func (o *Orchestrator) CurrentField() (types.FieldDefinition, bool) {
	return o.state.CurrentField()
}

func (o *Orchestrator) Progress() types.Progress {
	return o.state.Progress()
}

func (o *Orchestrator) Mode() types.Mode {
	return o.state.Mode()
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Listening reports whether a capture is open for the next utterance.
func (o *Orchestrator) Listening() bool {
	_, ok := o.audio.Capturing()
	return ok
}

// EndUtterance closes the open capture, transcribes it and runs the turn.
// It fails with ErrNoActiveSession outside guided mode and with
// ErrNotListening when no capture is open.
func (o *Orchestrator) EndUtterance(ctx context.Context) (*TurnResult, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	h, ok := o.audio.Capturing()
	if !ok {
		if !o.state.Active() {
			return nil, ErrNoActiveSession
		}
		return nil, ErrNotListening
	}
	ctx, done := o.beginTurn(ctx)
	defer done()

	return o.runTurn(ctx, func(ctx context.Context, t *turn) {
		t.observed = true
		o.setStatus(ctx, StatusProcessing)
		clip, err := o.audio.StopCaptureAndGetAudio(ctx, h)
		if err == nil {
			var text string
			text, err = o.transcriber.Transcribe(ctx, clip)
			if err == nil {
				o.process(ctx, t, text)
				return
			}
		}
		if ctx.Err() != nil {
			t.result.Outcome = OutcomeStopped
			return
		}
		slog.Warn("no usable transcript", "err", err)
		t.err = err
		o.retry(ctx, t, "Sorry, I didn't catch that.")
	})
}

// HandleTranscript runs a turn for text that is already transcribed.
func (o *Orchestrator) HandleTranscript(ctx context.Context, text string) (*TurnResult, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	ctx, done := o.beginTurn(ctx)
	defer done()

	o.audio.DiscardCapture()
	return o.runTurn(ctx, func(ctx context.Context, t *turn) {
		t.observed = true
		o.process(ctx, t, text)
	})
}

// beginTurn derives the context Stop cancels.
func (o *Orchestrator) beginTurn(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.turnSeq++
	seq := o.turnSeq
	o.cancel = cancel
	o.mu.Unlock()
	return ctx, func() {
		o.mu.Lock()
		if o.turnSeq == seq {
			o.cancel = nil
		}
		o.mu.Unlock()
		cancel()
	}
}

type turn struct {
	result   *TurnResult
	record   TurnRecord
	observed bool
	err      error
}

func (o *Orchestrator) runTurn(ctx context.Context, body func(ctx context.Context, t *turn)) (res *TurnResult, err error) {
	t := &turn{result: &TurnResult{SessionID: o.state.SessionID()}}
	t.record.StartedAt = time.Now()
	if form, ok := o.state.Form(); ok {
		t.record.FormID = form.ID
	}
	if field, ok := o.state.CurrentField(); ok {
		t.record.Field = field.Name
	}
	t.record.Mode = o.state.Mode()

	ctx = callbacks.EnsureRunInfo(ctx, "Soprano", "Orchestrator")
	ctx = callbacks.OnStart(ctx, map[string]any{
		"session": t.result.SessionID,
		"form":    t.record.FormID,
		"field":   t.record.Field,
		"mode":    string(t.record.Mode),
	})

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in dialogue turn: %v", r)
			slog.Error("dialogue turn panicked", "err", err)
			callbacks.OnError(ctx, err)
			o.abort(err)
			t.err = err
			t.result.Outcome = OutcomeFailed
			t.result.Listening = false
			res = t.result
		}
		o.observe(ctx, t)
	}()

	body(ctx, t)
	if t.err != nil && t.result.Outcome == OutcomeFailed {
		callbacks.OnError(ctx, t.err)
		return t.result, t.err
	}
	callbacks.OnEnd(ctx, map[string]any{
		"outcome":   string(t.result.Outcome),
		"intent":    string(t.result.Intent),
		"listening": t.result.Listening,
	})
	return t.result, nil
}

func (o *Orchestrator) observe(ctx context.Context, t *turn) {
	if o.observer == nil || !t.observed {
		return
	}
	rec := t.record
	if rec.SessionID = t.result.SessionID; rec.SessionID == "" {
		rec.SessionID = "free"
	}
	rec.Transcript = t.result.Transcript
	rec.Raw = t.result.Raw
	rec.Intent = t.result.Intent
	rec.Outcome = t.result.Outcome
	rec.Spoken = t.result.Spoken
	rec.Duration = time.Since(rec.StartedAt)
	if t.err != nil {
		rec.Err = t.err.Error()
	}
	o.observer.ObserveTurn(context.WithoutCancel(ctx), rec)
}

func (o *Orchestrator) setStatus(ctx context.Context, s Status) {
	if ctx.Err() != nil {
		return
	}
	o.mu.Lock()
	changed := o.status != s
	o.status = s
	o.mu.Unlock()
	if changed {
		o.hooks.status(s)
	}
}

// say speaks text to completion. Output failures are logged only: the words
// are still delivered through the speak hook.
func (o *Orchestrator) say(ctx context.Context, t *turn, text string) {
	if text == "" || ctx.Err() != nil {
		return
	}
	t.result.Spoken = append(t.result.Spoken, text)
	o.hooks.speak(text)
	o.setStatus(ctx, StatusSpeaking)
	if err := o.audio.Speak(ctx, text); err != nil && ctx.Err() == nil {
		slog.Warn("speech output failed", "err", err)
	}
}

// listen waits for the settle delay and opens the microphone. Failing to
// open it ends the session.
func (o *Orchestrator) listen(ctx context.Context, t *turn) {
	if ctx.Err() != nil {
		return
	}
	if o.settle > 0 {
		timer := time.NewTimer(o.settle)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
	if _, err := o.audio.StartCapture(ctx); err != nil {
		if ctx.Err() != nil || errors.Is(err, audio.ErrCaptureCancelled) {
			return
		}
		o.fail(ctx, t, fmt.Errorf("start listening: %w", err))
		return
	}
	// Stop may have run while the microphone was opening.
	if ctx.Err() != nil {
		o.audio.DiscardCapture()
		return
	}
	o.setStatus(ctx, StatusListening)
	t.result.Listening = true
}

// fail apologises and ends the session after an unrecoverable error.
func (o *Orchestrator) fail(ctx context.Context, t *turn, err error) {
	slog.Error("guided session failed", "err", err)
	t.err = err
	t.result.Listening = false
	o.say(ctx, t, "Sorry, something went wrong. Please try again later.")
	o.hooks.fail(err)
	o.endSession(ctx, t, OutcomeFailed)
}

// abort is the cleanup after a panic: the turn context may be unusable.
func (o *Orchestrator) abort(err error) {
	form, active := o.state.Form()
	o.state.Stop()
	o.resetCompleter()
	o.audio.Close()
	o.mu.Lock()
	o.status = StatusIdle
	o.mu.Unlock()
	o.hooks.status(StatusIdle)
	o.hooks.fail(err)
	if active {
		o.hooks.sessionEnd(form.ID, OutcomeFailed)
	}
}

// endSession stops the dialogue with outcome. A turn that was cancelled by
// Stop leaves the cleanup to Stop.
func (o *Orchestrator) endSession(ctx context.Context, t *turn, outcome Outcome) {
	t.result.Outcome = outcome
	if ctx.Err() != nil {
		return
	}
	form, _ := o.state.Form()
	if form.ID == "" {
		form.ID = t.record.FormID
	}
	o.state.Stop()
	o.resetCompleter()
	o.audio.DiscardCapture()
	t.result.Listening = false
	o.setStatus(ctx, StatusIdle)
	slog.Info("guided session ended", "form", form.ID, "outcome", outcome)
	o.hooks.sessionEnd(form.ID, outcome)
}

// resetCompleter drops the model chat history so a finished session does
// not leak into the next one.
func (o *Orchestrator) resetCompleter() {
	if r, ok := o.completer.(assistant.Resetter); ok {
		r.Reset()
	}
}

// snapshot builds the per-turn context handed to the model.
func (o *Orchestrator) snapshot() types.ContextSnapshot {
	o.mu.Lock()
	snap := types.ContextSnapshot{Screen: o.screen, Data: maps.Clone(o.screenData)}
	o.mu.Unlock()
	if host := o.state.Host(); host != nil {
		if snap.Data == nil {
			snap.Data = map[string]any{}
		}
		for k, v := range host.Snapshot() {
			if _, ok := snap.Data[k]; !ok {
				snap.Data[k] = v
			}
		}
	}
	if o.guide != nil {
		snap.Elements = o.guide.Elements(snap.Screen)
	}
	if g, ok := o.state.Guided(o.historyWindow); ok {
		snap.Guided = g
	}
	return snap
}
