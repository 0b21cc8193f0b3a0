package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbxark/soprano/assistant"
	"github.com/tbxark/soprano/audio"
	"github.com/tbxark/soprano/fields"
	"github.com/tbxark/soprano/guide"
	"github.com/tbxark/soprano/host"
	"github.com/tbxark/soprano/speech"
	"github.com/tbxark/soprano/types"
)

func paymentForm() types.Form {
	return types.Form{
		ID:       "quick_pay",
		Greeting: "Let's pay someone.",
		Fields: []types.FieldDefinition{
			{Name: "upiId", Label: "UPI ID", Prompt: "Who are you paying?", Type: types.FieldIdentifier, Required: true, Validate: fields.RequireIdentifier("UPI ID")},
			{Name: "amount", Label: "Amount", Prompt: "How much?", Type: types.FieldNumber, Required: true, Validate: fields.RequireAmount("balance", 0)},
			{Name: "note", Label: "Note", Prompt: "Any note?", Type: types.FieldText},
		},
	}
}

type sessionEvents struct {
	mu       sync.Mutex
	ended    []Outcome
	errs     []error
	statuses []Status
}

func (e *sessionEvents) hooks() Hooks {
	return Hooks{
		OnSessionEnd: func(formID string, outcome Outcome) {
			e.mu.Lock()
			e.ended = append(e.ended, outcome)
			e.mu.Unlock()
		},
		OnError: func(err error) {
			e.mu.Lock()
			e.errs = append(e.errs, err)
			e.mu.Unlock()
		},
		OnStatus: func(s Status) {
			e.mu.Lock()
			e.statuses = append(e.statuses, s)
			e.mu.Unlock()
		},
	}
}

func (e *sessionEvents) endings() []Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Outcome(nil), e.ended...)
}

type fixture struct {
	orch   *Orchestrator
	events *sessionEvents
	guide  *guide.Coordinator
}

func newFixture(t *testing.T, recorder audio.Recorder, completer assistant.Completer, opts ...Option) *fixture {
	t.Helper()
	events := &sessionEvents{}
	coord := guide.NewCoordinator()
	if completer == nil {
		completer = assistant.NewLocalCompleter(coord)
	}
	session := audio.NewSession(recorder, audio.TextSynthesizer{}, audio.WriterPlayer{W: io.Discard})
	base := []Option{WithSettleDelay(0), WithGuide(coord), WithHooks(events.hooks())}
	orch := New(session, speech.TextTranscriber{}, completer, append(base, opts...)...)
	return &fixture{orch: orch, events: events, guide: coord}
}

func newHost(t *testing.T, form types.Form, balance float64) *host.JSONForm {
	t.Helper()
	h, err := host.NewJSONForm(form, map[string]any{"balance": balance})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func spoken(res *TurnResult) string {
	return strings.Join(res.Spoken, " ")
}

func say(t *testing.T, f *fixture, text string) *TurnResult {
	t.Helper()
	res, err := f.orch.HandleTranscript(context.Background(), text)
	if err != nil {
		t.Fatalf("turn %q failed: %v", text, err)
	}
	return res
}

func TestEndToEndAutoSubmit(t *testing.T) {
	rec := audio.NewLineRecorder(strings.NewReader("arvind at paytm\nfive hundred rupees\nskip\n"), nil)
	f := newFixture(t, rec, nil)
	form := paymentForm()
	h := newHost(t, form, 10000)
	ctx := context.Background()

	res, err := f.orch.Start(ctx, form, h)
	if err != nil {
		t.Fatal(err)
	}
	if spoken(res) != "Let's pay someone. Who are you paying?" || !res.Listening {
		t.Fatalf("unexpected start %+v", res)
	}

	for i := 0; i < 3; i++ {
		if !f.orch.Active() {
			t.Fatalf("session ended early before turn %d", i)
		}
		res, err = f.orch.EndUtterance(ctx)
		if err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	if f.orch.Active() {
		t.Fatal("session must be inactive after the third turn")
	}
	if res.Outcome != OutcomeSubmitted || res.Listening {
		t.Errorf("final turn = %+v", res)
	}
	values, ok := h.Submitted()
	if !ok {
		t.Fatal("form was not submitted")
	}
	if values["upiId"] != "arvind@paytm" || values["amount"] != 500.0 {
		t.Errorf("submitted %v", values)
	}
	if note, ok := values["note"]; !ok || note != nil {
		t.Errorf("skipped note must be submitted as nil, got %v (%v)", note, ok)
	}
	if got := f.events.endings(); len(got) != 1 || got[0] != OutcomeSubmitted {
		t.Errorf("session end events %v", got)
	}
	if f.orch.Listening() || f.orch.Status() != StatusIdle {
		t.Error("nothing should be listening after submission")
	}
}

func TestRequiredFieldRejectsSkip(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, nil)
	if _, err := f.orch.Start(context.Background(), paymentForm(), newHost(t, paymentForm(), 1000)); err != nil {
		t.Fatal(err)
	}
	res := say(t, f, "skip")
	if res.Outcome != OutcomeInvalid || !strings.Contains(spoken(res), "required") {
		t.Errorf("unexpected turn %+v", res)
	}
	if field, _ := f.orch.CurrentField(); field.Name != "upiId" {
		t.Errorf("dialogue advanced to %s", field.Name)
	}
	if !res.Listening {
		t.Error("should listen again")
	}
}

func TestValidationFailureKeepsField(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, nil)
	form := paymentForm()
	if _, err := f.orch.Start(context.Background(), form, newHost(t, form, 1000)); err != nil {
		t.Fatal(err)
	}
	say(t, f, "arvind at paytm")
	res := say(t, f, "five thousand")
	if res.Outcome != OutcomeInvalid {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	want := "The amount is more than your available balance of 1000 rupees. How much?"
	if spoken(res) != want {
		t.Errorf("spoken %q, want %q", spoken(res), want)
	}
	if field, _ := f.orch.CurrentField(); field.Name != "amount" {
		t.Errorf("current field = %s", field.Name)
	}
	if p := f.orch.Progress(); p.Current != 2 {
		t.Errorf("progress = %+v", p)
	}
}

func TestConfirmationEditAndSubmit(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, nil)
	form := fields.SendMoneyForm()
	h := newHost(t, form, 10000)
	if _, err := f.orch.Start(context.Background(), form, h); err != nil {
		t.Fatal(err)
	}
	say(t, f, "arvind at paytm")
	say(t, f, "five hundred")
	res := say(t, f, "skip")
	if res.Outcome != OutcomeConfirming || f.orch.Mode() != types.ModeAwaitingConfirmation {
		t.Fatalf("expected confirmation, got %+v", res)
	}
	if !strings.Contains(spoken(res), "You're sending 500 rupees to arvind@paytm.") {
		t.Errorf("summary missing from %q", spoken(res))
	}

	res = say(t, f, "no, change the amount")
	if field, _ := f.orch.CurrentField(); field.Name != "amount" || f.orch.Mode() != types.ModeNormal {
		t.Fatalf("expected to edit amount, got %s in %s", field.Name, f.orch.Mode())
	}
	if res.Outcome != OutcomeEditing {
		t.Errorf("outcome = %s", res.Outcome)
	}

	res = say(t, f, "six hundred")
	if f.orch.Mode() != types.ModeAwaitingConfirmation || !strings.Contains(spoken(res), "600 rupees") {
		t.Fatalf("edited answer must return to confirmation, got %q", spoken(res))
	}

	res = say(t, f, "hmm maybe")
	if res.Outcome != OutcomeConfirming || !strings.Contains(spoken(res), "yes") {
		t.Errorf("unclear answer must re-ask, got %+v", res)
	}

	res = say(t, f, "yes please")
	if res.Outcome != OutcomeSubmitted || f.orch.Active() {
		t.Fatalf("expected submission, got %+v", res)
	}
	values, _ := h.Submitted()
	if values["amount"] != 600.0 || values["upiId"] != "arvind@paytm" || values["note"] != nil {
		t.Errorf("submitted %v", values)
	}
}

func TestSelectFieldToEdit(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, nil)
	form := fields.SendMoneyForm()
	h := newHost(t, form, 10000)
	_, _ = f.orch.Start(context.Background(), form, h)
	say(t, f, "arvind at paytm")
	say(t, f, "two hundred")
	say(t, f, "skip")

	say(t, f, "no")
	if f.orch.Mode() != types.ModeSelectingFieldToEdit {
		t.Fatalf("mode = %s", f.orch.Mode())
	}
	res := say(t, f, "the weather")
	if f.orch.Mode() != types.ModeSelectingFieldToEdit || !strings.Contains(spoken(res), "Which one") {
		t.Errorf("unmatched answer must re-ask, got %q", spoken(res))
	}
	say(t, f, "the recipient")
	if field, _ := f.orch.CurrentField(); field.Name != "upiId" {
		t.Fatalf("current field = %s", field.Name)
	}
	say(t, f, "meena at ybl")
	say(t, f, "yes")
	values, ok := h.Submitted()
	if !ok || values["upiId"] != "meena@ybl" || values["amount"] != 200.0 {
		t.Errorf("submitted %v", values)
	}
}

func TestSelectFieldDismissCancels(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, nil)
	form := fields.SendMoneyForm()
	h := newHost(t, form, 10000)
	_, _ = f.orch.Start(context.Background(), form, h)
	say(t, f, "arvind at paytm")
	say(t, f, "two hundred")
	say(t, f, "skip")
	say(t, f, "no")
	res := say(t, f, "never mind")
	if res.Outcome != OutcomeCancelled || f.orch.Active() || !h.Cancelled() {
		t.Errorf("expected cancellation, got %+v", res)
	}
	if _, ok := h.Submitted(); ok {
		t.Error("cancelled form must not be submitted")
	}
}

func TestGoBackAndCancel(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, nil)
	form := paymentForm()
	h := newHost(t, form, 1000)
	_, _ = f.orch.Start(context.Background(), form, h)

	res := say(t, f, "go back")
	if !strings.HasPrefix(spoken(res), "This is the first question.") {
		t.Errorf("spoken %q", spoken(res))
	}
	say(t, f, "arvind at paytm")
	res = say(t, f, "go back")
	if field, _ := f.orch.CurrentField(); field.Name != "upiId" || spoken(res) != "Who are you paying?" {
		t.Fatalf("expected upiId prompt, got %s / %q", field.Name, spoken(res))
	}
	say(t, f, "meena at ybl")
	res = say(t, f, "cancel")
	if res.Outcome != OutcomeCancelled || res.Listening || f.orch.Active() || !h.Cancelled() {
		t.Errorf("unexpected cancel turn %+v", res)
	}
	if got := f.events.endings(); len(got) != 1 || got[0] != OutcomeCancelled {
		t.Errorf("endings %v", got)
	}
}

func TestTranscriptionFailureRetriesForever(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, nil)
	_, _ = f.orch.Start(context.Background(), paymentForm(), newHost(t, paymentForm(), 1000))
	for i := 0; i < 5; i++ {
		res, err := f.orch.EndUtterance(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if res.Outcome != OutcomeRetry || !res.Listening {
			t.Fatalf("attempt %d: %+v", i, res)
		}
		if spoken(res) != "Sorry, I didn't catch that. Who are you paying?" {
			t.Errorf("spoken %q", spoken(res))
		}
	}
	if !f.orch.Active() {
		t.Error("retries must not end the session")
	}
}

func TestEndUtteranceWithoutCapture(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, nil)
	if _, err := f.orch.EndUtterance(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	_, _ = f.orch.Start(context.Background(), paymentForm(), newHost(t, paymentForm(), 1000))
	f.orch.audio.DiscardCapture()
	if _, err := f.orch.EndUtterance(context.Background()); !errors.Is(err, ErrNotListening) {
		t.Fatalf("expected ErrNotListening, got %v", err)
	}
}

type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
	panics  bool
	block   chan struct{}
}

func (s *scriptedCompleter) Complete(ctx context.Context, utterance string, snap types.ContextSnapshot) (string, error) {
	if s.panics {
		panic("model client exploded")
	}
	if s.block != nil {
		close(s.block)
		<-ctx.Done()
		return "", ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func TestCompletionFailureRetries(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, &scriptedCompleter{err: assistant.ErrCompletion})
	_, _ = f.orch.Start(context.Background(), paymentForm(), newHost(t, paymentForm(), 1000))
	res := say(t, f, "arvind at paytm")
	if res.Outcome != OutcomeRetry || !strings.HasSuffix(spoken(res), "Who are you paying?") || !res.Listening {
		t.Errorf("unexpected %+v", res)
	}
	if len(f.orch.state.History()) != 0 {
		t.Error("failed turn must not record anything")
	}
}

func TestStructuredReplies(t *testing.T) {
	c := &scriptedCompleter{replies: []string{
		`{"action":"skip","message":"ok"}`,
		`{"action":"fill_field","value":"arvind@paytm","message":"Noted."}`,
		`I'm sorry, could you repeat that?`,
	}}
	f := newFixture(t, audio.NopRecorder{}, c)
	_, _ = f.orch.Start(context.Background(), paymentForm(), newHost(t, paymentForm(), 1000))

	if res := say(t, f, "skip it"); res.Intent != types.ActionSkip || res.Outcome != OutcomeInvalid {
		t.Errorf("skip on a required field must not advance: %+v", res)
	}
	if res := say(t, f, "arvind"); spoken(res) != "Noted. How much?" {
		t.Errorf("spoken %q", spoken(res))
	}
	res := say(t, f, "mumble")
	if res.Intent != types.ActionClarify || spoken(res) != "I'm sorry, could you repeat that?" {
		t.Errorf("unexpected clarify %+v", res)
	}
	if field, _ := f.orch.CurrentField(); field.Name != "amount" {
		t.Errorf("clarify must not advance, at %s", field.Name)
	}
}

func TestNavigationRoutesToGuide(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, nil)
	f.guide.RegisterElement("send_money", guide.Element{ID: "balance_card", Keywords: []string{"balance"}})
	f.orch.SetScreen("send_money", map[string]any{"tab": "pay"})

	res := say(t, f, "where is my balance")
	if res.Outcome != OutcomeNavigated || res.Listening {
		t.Fatalf("free navigation %+v", res)
	}
	if spot, ok := f.guide.Current(); !ok || spot.ElementID != "balance_card" {
		t.Fatalf("spotlight = %+v, %v", spot, ok)
	}

	form := paymentForm()
	_, _ = f.orch.Start(context.Background(), form, newHost(t, form, 1000))
	if f.guide.Guiding() {
		t.Fatal("starting a session clears the spotlight")
	}
	res = say(t, f, "where is my balance")
	if res.Outcome != OutcomeNavigated || !res.Listening {
		t.Errorf("guided navigation %+v", res)
	}
	if field, _ := f.orch.CurrentField(); field.Name != "upiId" || len(f.orch.state.History()) != 0 {
		t.Error("navigation must not touch the form dialogue")
	}

	res = say(t, f, "hello there")
	if res.Outcome == OutcomeNavigated {
		t.Error("plain answer must not navigate")
	}
}

func TestFreeConversationAnswers(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, &scriptedCompleter{replies: []string{`{"message":"Your balance is on the home screen."}`}})
	res := say(t, f, "what can you do")
	if res.Outcome != OutcomeAnswered || spoken(res) != "Your balance is on the home screen." || res.Listening {
		t.Errorf("unexpected %+v", res)
	}
}

func TestStopCleansUpEverything(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, nil)
	f.guide.RegisterElement("pay", guide.Element{ID: "amount_box"})
	f.orch.SetScreen("pay", nil)
	_, _ = f.orch.Start(context.Background(), paymentForm(), newHost(t, paymentForm(), 1000))
	f.guide.Show("amount_box", "type here")
	if !f.orch.Listening() || f.orch.Status() != StatusListening {
		t.Fatal("expected to be listening")
	}

	f.orch.Stop()
	if f.orch.Active() || f.orch.Listening() || f.orch.Status() != StatusIdle || f.guide.Guiding() {
		t.Error("stop must reset state, capture, status and guide together")
	}
	f.orch.Stop()
	if got := f.events.endings(); len(got) != 1 || got[0] != OutcomeStopped {
		t.Errorf("endings %v", got)
	}
	if _, ok := f.orch.CurrentField(); ok {
		t.Error("no current field after stop")
	}
}

func TestStopAbortsRunningTurn(t *testing.T) {
	c := &scriptedCompleter{block: make(chan struct{})}
	f := newFixture(t, audio.NopRecorder{}, c)
	_, _ = f.orch.Start(context.Background(), paymentForm(), newHost(t, paymentForm(), 1000))

	done := make(chan *TurnResult, 1)
	go func() {
		res, _ := f.orch.HandleTranscript(context.Background(), "arvind at paytm")
		done <- res
	}()
	<-c.block
	f.orch.Stop()

	select {
	case res := <-done:
		if res.Outcome != OutcomeStopped || res.Listening {
			t.Errorf("aborted turn = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("turn was not aborted")
	}
	if f.orch.Active() || f.orch.Listening() {
		t.Error("stop must leave nothing behind")
	}
}

type openingRecording struct {
	discarded atomic.Bool
}

func (r *openingRecording) Stop(ctx context.Context) ([]byte, error) { return nil, nil }

func (r *openingRecording) Discard() error {
	r.discarded.Store(true)
	return nil
}

// slowMicrophone blocks in Start until released, like a permission prompt
// the user has not answered yet.
type slowMicrophone struct {
	entered chan struct{}
	release chan struct{}
	rec     *openingRecording
}

func (m *slowMicrophone) Start(ctx context.Context) (audio.Recording, error) {
	close(m.entered)
	<-m.release
	return m.rec, nil
}

func TestStopWhileMicrophoneOpens(t *testing.T) {
	mic := &slowMicrophone{entered: make(chan struct{}), release: make(chan struct{}), rec: &openingRecording{}}
	f := newFixture(t, mic, nil)

	h := newHost(t, paymentForm(), 1000)
	started := make(chan *TurnResult, 1)
	go func() {
		res, _ := f.orch.Start(context.Background(), paymentForm(), h)
		started <- res
	}()
	<-mic.entered

	stopped := make(chan struct{})
	go func() {
		f.orch.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked while the microphone was opening")
	}
	if f.orch.Active() || f.orch.Status() != StatusIdle {
		t.Error("stop must take effect before the microphone opens")
	}

	close(mic.release)
	select {
	case res := <-started:
		if res == nil || res.Listening {
			t.Errorf("start after stop = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return")
	}
	if f.orch.Listening() || !mic.rec.discarded.Load() {
		t.Error("the capture opened after stop must be discarded")
	}
	if got := f.events.endings(); len(got) != 1 || got[0] != OutcomeStopped {
		t.Errorf("endings %v", got)
	}
}

type resettingCompleter struct {
	assistant.Completer
	resets atomic.Int32
}

func (r *resettingCompleter) Reset() { r.resets.Add(1) }

func TestSessionEndResetsCompleter(t *testing.T) {
	c := &resettingCompleter{Completer: assistant.NewLocalCompleter(nil)}
	f := newFixture(t, audio.NopRecorder{}, c)
	_, _ = f.orch.Start(context.Background(), paymentForm(), newHost(t, paymentForm(), 1000))
	before := c.resets.Load()

	if res := say(t, f, "cancel"); res.Outcome != OutcomeCancelled {
		t.Fatalf("unexpected %+v", res)
	}
	if c.resets.Load() <= before {
		t.Error("ending a session must reset the model history")
	}
}

func TestPanicEndsSessionWithError(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, &scriptedCompleter{panics: true})
	_, _ = f.orch.Start(context.Background(), paymentForm(), newHost(t, paymentForm(), 1000))
	res, err := f.orch.HandleTranscript(context.Background(), "arvind at paytm")
	if err == nil || res.Outcome != OutcomeFailed {
		t.Fatalf("expected failure, got %+v, %v", res, err)
	}
	if f.orch.Active() || f.orch.Listening() {
		t.Error("session must end")
	}
	if len(f.events.errs) != 1 {
		t.Errorf("error hook calls = %d", len(f.events.errs))
	}
	if got := f.events.endings(); len(got) != 1 || got[0] != OutcomeFailed {
		t.Errorf("endings %v", got)
	}
}

type deniedRecorder struct{}

func (deniedRecorder) Start(ctx context.Context) (audio.Recording, error) {
	return nil, audio.ErrPermissionDenied
}

func TestCaptureFailureEndsSession(t *testing.T) {
	f := newFixture(t, deniedRecorder{}, nil)
	res, err := f.orch.Start(context.Background(), paymentForm(), newHost(t, paymentForm(), 1000))
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if res.Outcome != OutcomeFailed || f.orch.Active() {
		t.Errorf("unexpected %+v", res)
	}
	if len(f.events.errs) != 1 {
		t.Errorf("error hook calls = %d", len(f.events.errs))
	}
}

func TestStartUnavailable(t *testing.T) {
	f := newFixture(t, audio.NopRecorder{}, nil)
	if _, err := f.orch.StartForm(context.Background(), "unknown", nil); !errors.Is(err, ErrGuidedUnavailable) {
		t.Errorf("unknown form: %v", err)
	}
	if _, err := f.orch.Start(context.Background(), types.Form{ID: "empty"}, nil); !errors.Is(err, ErrGuidedUnavailable) {
		t.Errorf("empty form: %v", err)
	}
	res, err := f.orch.StartForm(context.Background(), fields.AddPayeeID, newHost(t, fields.AddPayeeForm(), 0))
	if err != nil || res.SessionID == "" || res.SessionID != f.orch.SessionID() {
		t.Errorf("registered form should start: %+v, %v", res, err)
	}
}

type fakeScanner struct {
	data map[string]any
	err  error
}

func (s fakeScanner) Scan(ctx context.Context, documentType string) (map[string]any, error) {
	if documentType != "address_proof" {
		return nil, types.ErrCapture
	}
	return s.data, s.err
}

func TestScanDocument(t *testing.T) {
	tests := []struct {
		name    string
		scanner fakeScanner
		want    string
		field   string
	}{
		{
			name: "extracted",
			scanner: fakeScanner{data: map[string]any{
				"addressLine1": "12 MG Road", "city": "Bengaluru", "state": "Karnataka", "pincode": 560001.0,
			}},
			want:  "I've read that from your document. And the six digit PIN code?",
			field: "pincode",
		},
		{
			name:    "user cancelled",
			scanner: fakeScanner{err: types.ErrUserCancelled},
			want:    "What is your new address?",
			field:   "address",
		},
		{
			name:    "extraction failed",
			scanner: fakeScanner{err: types.ErrExtraction},
			want:    "Sorry, I couldn't read that document. Let's do it by voice instead. What is your new address?",
			field:   "address",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, audio.NopRecorder{}, nil, WithScanner(tt.scanner))
			form := fields.UpdateAddressForm()
			h := newHost(t, form, 0)
			_, _ = f.orch.Start(context.Background(), form, h)
			res := say(t, f, "let me scan my address proof")
			if res.Intent != types.ActionScanDocument {
				t.Fatalf("intent = %s", res.Intent)
			}
			got := spoken(res)
			if !strings.HasSuffix(got, tt.want) {
				t.Errorf("spoken %q, want suffix %q", got, tt.want)
			}
			if field, _ := f.orch.CurrentField(); field.Name != tt.field {
				t.Errorf("current field = %s", field.Name)
			}
			if tt.field == "pincode" && h.Snapshot()["address"] != "12 MG Road, Bengaluru, Karnataka, 560001" {
				t.Errorf("address = %v", h.Snapshot()["address"])
			}
		})
	}
}

type memoryObserver struct {
	mu   sync.Mutex
	recs []TurnRecord
}

func (m *memoryObserver) ObserveTurn(ctx context.Context, rec TurnRecord) {
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
}

func TestObserverSeesTurns(t *testing.T) {
	obs := &memoryObserver{}
	f := newFixture(t, audio.NopRecorder{}, nil, WithObserver(obs))
	_, _ = f.orch.Start(context.Background(), paymentForm(), newHost(t, paymentForm(), 1000))
	say(t, f, "arvind at paytm")
	if len(obs.recs) != 1 {
		t.Fatalf("expected one record, got %d", len(obs.recs))
	}
	rec := obs.recs[0]
	if rec.FormID != "quick_pay" || rec.Field != "upiId" || rec.Transcript != "arvind at paytm" || rec.Intent != types.ActionFillField {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.SessionID != f.orch.SessionID() || rec.Outcome != OutcomeContinue {
		t.Errorf("unexpected record %+v", rec)
	}
}
