package assistant

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/eino-contrib/jsonschema"
	"github.com/tbxark/soprano/interpret"
)

type promptOptions struct {
	language     string
	instructions []string
	historySize  int
}

type Option func(*promptOptions)

// WithLanguage sets the language replies are spoken in.
func WithLanguage(lang string) Option {
	return func(o *promptOptions) { o.language = lang }
}

// WithInstructions appends app-specific rules to the system prompt.
func WithInstructions(lines ...string) Option {
	return func(o *promptOptions) { o.instructions = append(o.instructions, lines...) }
}

// WithHistory keeps the last n exchanged messages as chat context.
func WithHistory(n int) Option {
	return func(o *promptOptions) { o.historySize = n }
}

func newPromptOptions(opts []Option) promptOptions {
	o := promptOptions{language: "English"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ReplySchema is the JSON schema of the reply the model must produce.
func ReplySchema() (string, error) {
	schema := jsonschema.Reflect(&interpret.Reply{})
	schema.Title = "reply"
	schema.Description = "Voice assistant reply for one user utterance."
	out, err := sonic.MarshalString(schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal reply schema: %w", err)
	}
	return out, nil
}

func systemPrompt(o promptOptions, schema string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `You are the voice assistant of a payments app. You help the user fill forms by voice and find things on screen.
Every reply is spoken aloud, so keep "message" to one short sentence in %s.

When a guided form is active, decide what the user's words mean for the current field:
- fill_field: the user gave a value. Put the value in "value", normalised for the field type (numbers as numbers, UPI IDs like name@bank in lower case).
- skip: the user wants to leave an optional field empty.
- go_back: the user wants to change the previous answer.
- cancel: the user wants to stop filling the form.
- clarify: you could not understand, or the user asked a question. Put your question or answer in "message".
- scan_document: the user wants to photograph a document to fill the field. Set "documentType".

When the user asks where something is or how to do something on screen, set "guide" with the id of one of the on-screen elements and a short instruction, and leave "action" empty. Never invent element ids.

When no guided form is active, just answer in "message".

Reply with JSON only, matching this schema:
%s`, o.language, schema)
	for _, line := range o.instructions {
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	return sb.String()
}
