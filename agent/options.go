package agent

import (
	"time"

	"github.com/tbxark/soprano/fields"
	"github.com/tbxark/soprano/guide"
	"github.com/tbxark/soprano/interpret"
	"github.com/tbxark/soprano/types"
)

const (
	DefaultSettleDelay   = 300 * time.Millisecond
	DefaultHistoryWindow = 6
)

type Option func(*Orchestrator)

// WithSettleDelay sets the pause between the end of speech and the start of
// recording, so the tail of our own playback is not captured.
func WithSettleDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.settle = d }
}

// WithHistoryWindow sets how many recent answers go into each model prompt.
func WithHistoryWindow(n int) Option {
	return func(o *Orchestrator) { o.historyWindow = n }
}

func WithGuide(c *guide.Coordinator) Option {
	return func(o *Orchestrator) { o.guide = c }
}

func WithScanner(s types.DocumentScanner) Option {
	return func(o *Orchestrator) { o.scanner = s }
}

func WithRegistry(r *fields.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

func WithClassifier(c *interpret.KeywordClassifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

func WithObserver(obs TurnObserver) Option {
	return func(o *Orchestrator) { o.observer = obs }
}
