package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/soprano/types"
)

var _ adk.Agent = (*Agent)(nil)

type conversationKey struct{}

const defaultConversation = "default"

// WithConversation routes an Agent run to its own orchestrator.
func WithConversation(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, conversationKey{}, key)
}

func ConversationFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(conversationKey{}).(string); ok && key != "" {
		return key
	}
	return defaultConversation
}

// HostFactory builds the form screen a conversation fills.
type HostFactory func(ctx context.Context, form types.Form) (types.FormHost, error)

// Agent exposes guided form filling as a text chat agent. The first message
// of a conversation starts the form; later messages are treated as
// transcripts. The reply is everything the orchestrator said.
type Agent struct {
	name        string
	description string
	form        types.Form
	newHost     HostFactory
	newOrch     func() *Orchestrator

	mu            sync.Mutex
	conversations map[string]*Orchestrator
}

func NewAgent(name, description string, form types.Form, newHost HostFactory, newOrch func() *Orchestrator) *Agent {
	return &Agent{
		name:          name,
		description:   description,
		form:          form,
		newHost:       newHost,
		newOrch:       newOrch,
		conversations: make(map[string]*Orchestrator),
	}
}

func (a *Agent) Name(ctx context.Context) string {
	return a.name
}

func (a *Agent) Description(ctx context.Context) string {
	return a.description
}

func (a *Agent) orchestrator(ctx context.Context) *Orchestrator {
	key := ConversationFromContext(ctx)
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.conversations[key]
	if !ok {
		o = a.newOrch()
		a.conversations[key] = o
	}
	return o
}

// Forget stops and drops the conversation routed by ctx.
func (a *Agent) Forget(ctx context.Context) {
	key := ConversationFromContext(ctx)
	a.mu.Lock()
	o, ok := a.conversations[key]
	delete(a.conversations, key)
	a.mu.Unlock()
	if ok {
		o.Stop()
	}
}

func (a *Agent) Run(ctx context.Context, input *adk.AgentInput, options ...adk.AgentRunOption) *adk.AsyncIterator[*adk.AgentEvent] {
	iter, gen := adk.NewAsyncIteratorPair[*adk.AgentEvent]()
	go func() {
		defer func() {
			if e := recover(); e != nil {
				gen.Send(&adk.AgentEvent{Err: fmt.Errorf("recover from panic: %v", e)})
			}
			gen.Close()
		}()
		if input == nil || len(input.Messages) == 0 {
			gen.Send(&adk.AgentEvent{Err: errors.New("no messages in input")})
			return
		}
		res, err := a.turn(ctx, input.Messages[len(input.Messages)-1].Content)
		if err != nil {
			gen.Send(&adk.AgentEvent{Err: fmt.Errorf("dialogue turn failed: %w", err)})
			return
		}
		gen.Send(&adk.AgentEvent{
			Output: &adk.AgentOutput{
				MessageOutput: &adk.MessageVariant{
					IsStreaming: false,
					Message:     schema.AssistantMessage(strings.Join(res.Spoken, " "), nil),
					Role:        schema.Assistant,
				},
			},
		})
	}()
	return iter
}

func (a *Agent) turn(ctx context.Context, text string) (*TurnResult, error) {
	o := a.orchestrator(ctx)
	if o.Active() {
		return o.HandleTranscript(ctx, text)
	}
	host, err := a.newHost(ctx, a.form)
	if err != nil {
		return nil, fmt.Errorf("create form host: %w", err)
	}
	return o.Start(ctx, a.form, host)
}
