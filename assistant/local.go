package assistant

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/bytedance/sonic"
	"github.com/tbxark/soprano/guide"
	"github.com/tbxark/soprano/interpret"
	"github.com/tbxark/soprano/types"
)

// ElementMatcher finds the on-screen element a spoken query refers to.
type ElementMatcher interface {
	Match(query string) (guide.Element, bool)
}

// LocalCompleter answers without a model using keyword rules. Values are not
// extracted here: a fill_field reply without a value makes the interpreter
// run the field's extractor on the utterance.
type LocalCompleter struct {
	Matcher         ElementMatcher
	SkipKeywords    []string
	BackKeywords    []string
	CancelKeywords  []string
	ScanKeywords    []string
	RepeatKeywords  []string
	FallbackMessage string
}

func NewLocalCompleter(matcher ElementMatcher) *LocalCompleter {
	return &LocalCompleter{
		Matcher:         matcher,
		SkipKeywords:    []string{"skip", "leave it", "leave it blank", "no note", "nothing", "none"},
		BackKeywords:    []string{"go back", "previous", "undo"},
		CancelKeywords:  []string{"cancel", "stop", "quit", "exit", "abort"},
		ScanKeywords:    []string{"scan", "photo", "picture", "camera"},
		RepeatKeywords:  []string{"repeat", "again", "what", "pardon"},
		FallbackMessage: "I can help you fill in forms. Ask me where something is on this screen.",
	}
}

func (l *LocalCompleter) Complete(ctx context.Context, utterance string, snap types.ContextSnapshot) (string, error) {
	reply := l.reply(utterance, snap)
	out, err := sonic.MarshalString(reply)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	return out, nil
}

func (l *LocalCompleter) reply(utterance string, snap types.ContextSnapshot) interpret.Reply {
	if guide.IsLocationQuery(utterance) && l.Matcher != nil {
		if el, ok := l.Matcher.Match(utterance); ok {
			instruction := fmt.Sprintf("It's the highlighted %s.", strings.ReplaceAll(el.ID, "_", " "))
			return interpret.Reply{
				Message: instruction,
				Guide:   &interpret.GuideReply{ElementID: el.ID, Instruction: instruction},
			}
		}
	}
	g := snap.Guided
	if g == nil {
		return interpret.Reply{Message: l.FallbackMessage}
	}

	words := strings.FieldsFunc(strings.ToLower(utterance), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	text := " " + strings.Join(words, " ") + " "
	has := func(keywords []string) bool {
		for _, k := range keywords {
			if strings.Contains(text, " "+k+" ") {
				return true
			}
		}
		return false
	}
	field := g.CurrentField
	switch {
	case strings.TrimSpace(text) == "":
		return interpret.Reply{Action: string(types.ActionClarify), Message: "Sorry, I didn't hear anything. " + field.Prompt}
	case has(l.CancelKeywords):
		return interpret.Reply{Action: string(types.ActionCancel), Message: "Okay, I've cancelled this."}
	case has(l.BackKeywords):
		return interpret.Reply{Action: string(types.ActionGoBack), Message: "Sure, let's go back."}
	case has(l.SkipKeywords):
		return interpret.Reply{Action: string(types.ActionSkip), Message: "Okay, skipping that."}
	case has(l.ScanKeywords):
		return interpret.Reply{Action: string(types.ActionScanDocument), Message: "Let's scan your document. Hold it steady in front of the camera."}
	case has(l.RepeatKeywords):
		return interpret.Reply{Action: string(types.ActionClarify), Message: "Sure. " + field.Prompt}
	default:
		return interpret.Reply{Action: string(types.ActionFillField), Field: field.Name, Message: "Got it."}
	}
}
