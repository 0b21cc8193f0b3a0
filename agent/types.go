package agent

import (
	"context"
	"errors"
	"time"

	"github.com/tbxark/soprano/types"
)

var (
	ErrGuidedUnavailable = errors.New("form does not support guided mode")
	ErrNoActiveSession   = errors.New("no guided session is active")
	ErrNotListening      = errors.New("not listening")
)

// Status drives the voice indicator of the host UI.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSpeaking   Status = "speaking"
	StatusListening  Status = "listening"
	StatusProcessing Status = "processing"
)

// Outcome says how a turn ended. Submitted, Cancelled, Stopped and Failed
// also end the session.
type Outcome string

const (
	OutcomeStarted    Outcome = "started"
	OutcomeContinue   Outcome = "continue"
	OutcomeRetry      Outcome = "retry"
	OutcomeInvalid    Outcome = "invalid"
	OutcomeNavigated  Outcome = "navigated"
	OutcomeAnswered   Outcome = "answered"
	OutcomeConfirming Outcome = "confirming"
	OutcomeEditing    Outcome = "editing"
	OutcomeSubmitted  Outcome = "submitted"
	OutcomeCancelled  Outcome = "cancelled"
	OutcomeStopped    Outcome = "stopped"
	OutcomeFailed     Outcome = "failed"
)

type TurnResult struct {
	SessionID  string       `json:"session_id,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Raw        string       `json:"raw,omitempty"`
	Intent     types.Action `json:"intent,omitempty"`
	Outcome    Outcome      `json:"outcome"`
	Spoken     []string     `json:"spoken,omitempty"`
	// Listening is true when a capture was opened for the next utterance.
	Listening bool `json:"listening"`
}

// TurnRecord is what observers receive after every processed utterance.
type TurnRecord struct {
	SessionID  string
	FormID     string
	Field      string
	Mode       types.Mode
	Transcript string
	Raw        string
	Intent     types.Action
	Outcome    Outcome
	Spoken     []string
	Err        string
	StartedAt  time.Time
	Duration   time.Duration
}

type TurnObserver interface {
	ObserveTurn(ctx context.Context, rec TurnRecord)
}

// Hooks let the host mirror the dialogue in its UI. All are optional.
type Hooks struct {
	OnSpeak      func(text string)
	OnStatus     func(status Status)
	OnError      func(err error)
	OnSessionEnd func(formID string, outcome Outcome)
}

func (h Hooks) speak(text string) {
	if h.OnSpeak != nil {
		h.OnSpeak(text)
	}
}

func (h Hooks) status(s Status) {
	if h.OnStatus != nil {
		h.OnStatus(s)
	}
}

func (h Hooks) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h Hooks) sessionEnd(formID string, outcome Outcome) {
	if h.OnSessionEnd != nil {
		h.OnSessionEnd(formID, outcome)
	}
}
