package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/soprano/types"
)

var ErrCompletion = errors.New("completion failed")

// Completer answers one user utterance given the per-turn context. The raw
// text is handed to the response interpreter.
type Completer interface {
	Complete(ctx context.Context, utterance string, snap types.ContextSnapshot) (string, error)
}

// Resetter is implemented by completers that carry chat history from turn to
// turn. The orchestrator resets it when a session ends.
type Resetter interface {
	Reset()
}

// ChatCompleter asks a chat model for a JSON reply described by the reply
// schema in the system prompt.
type ChatCompleter struct {
	model   model.BaseChatModel
	system  string
	history *history
}

func NewChatCompleter(chatModel model.BaseChatModel, opts ...Option) (*ChatCompleter, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is nil")
	}
	o := newPromptOptions(opts)
	schemaJSON, err := ReplySchema()
	if err != nil {
		return nil, err
	}
	return &ChatCompleter{
		model:   chatModel,
		system:  systemPrompt(o, schemaJSON),
		history: &history{n: o.historySize},
	}, nil
}

func (c *ChatCompleter) Complete(ctx context.Context, utterance string, snap types.ContextSnapshot) (string, error) {
	prompt, err := types.FormatContextSnapshot(snap, utterance)
	if err != nil {
		return "", fmt.Errorf("%w: format context: %w", ErrCompletion, err)
	}
	messages := []*schema.Message{schema.SystemMessage(c.system)}
	messages = append(messages, c.history.snapshot()...)
	user := schema.UserMessage(prompt)
	messages = append(messages, user)

	resp, err := c.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	if resp == nil || resp.Content == "" {
		return "", fmt.Errorf("%w: empty model response", ErrCompletion)
	}
	c.history.append(schema.UserMessage(utterance), schema.AssistantMessage(resp.Content, nil))
	return resp.Content, nil
}

// Reset forgets the chat history.
func (c *ChatCompleter) Reset() {
	c.history.reset()
}

// FailbackCompleter tries each completer in order and returns the first
// answer.
type FailbackCompleter struct {
	completers []Completer
}

func NewFailbackCompleter(completers ...Completer) *FailbackCompleter {
	return &FailbackCompleter{completers: completers}
}

// Reset forwards to every chained completer that keeps history.
func (f *FailbackCompleter) Reset() {
	for _, c := range f.completers {
		if r, ok := c.(Resetter); ok {
			r.Reset()
		}
	}
}

func (f *FailbackCompleter) Complete(ctx context.Context, utterance string, snap types.ContextSnapshot) (string, error) {
	var lastErr error
	for i, c := range f.completers {
		out, err := c.Complete(ctx, utterance, snap)
		if err == nil {
			return out, nil
		}
		slog.Warn("completer failed, trying next", "index", i, "err", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no completer configured")
	}
	if errors.Is(lastErr, ErrCompletion) {
		return "", lastErr
	}
	return "", fmt.Errorf("%w: %w", ErrCompletion, lastErr)
}
