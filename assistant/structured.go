package assistant

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/soprano/interpret"
	"github.com/tbxark/soprano/structured"
	"github.com/tbxark/soprano/types"
)

const (
	replyToolName        = "reply_to_user"
	replyToolDescription = "Reply to the user's utterance: the form action to take, or a guide to an on-screen element, plus the sentence to speak."
)

type turnInput struct {
	utterance string
	snap      types.ContextSnapshot
}

// StructuredCompleter forces the model to answer through a tool call whose
// arguments are the reply, so the output is always well-formed JSON.
type StructuredCompleter struct {
	chain *structured.Chain[turnInput, interpret.Reply]
}

func NewStructuredCompleter(chatModel model.ToolCallingChatModel, opts ...Option) (*StructuredCompleter, error) {
	o := newPromptOptions(opts)
	schemaJSON, err := ReplySchema()
	if err != nil {
		return nil, err
	}
	system := systemPrompt(o, schemaJSON) + fmt.Sprintf("\n\nCall the '%s' tool with the reply.", replyToolName)
	chain, err := structured.NewChain[turnInput, interpret.Reply](
		chatModel,
		func(ctx context.Context, in turnInput) ([]*schema.Message, error) {
			prompt, err := types.FormatContextSnapshot(in.snap, in.utterance)
			if err != nil {
				return nil, fmt.Errorf("convert to prompt message failed: %w", err)
			}
			return []*schema.Message{
				schema.SystemMessage(system),
				schema.UserMessage(prompt),
			}, nil
		},
		replyToolName,
		replyToolDescription,
	)
	if err != nil {
		return nil, err
	}
	return &StructuredCompleter{chain: chain}, nil
}

func (s *StructuredCompleter) Complete(ctx context.Context, utterance string, snap types.ContextSnapshot) (string, error) {
	res, err := s.chain.Invoke(ctx, turnInput{utterance: utterance, snap: snap})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	return res.Arguments, nil
}
