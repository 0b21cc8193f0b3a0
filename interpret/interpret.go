package interpret

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/tbxark/soprano/extract"
	"github.com/tbxark/soprano/types"
)

const actionProvideClarification = "provide_clarification"

// Reply is the structured shape the language model is asked to produce.
// Guide is set instead of Action when the user asked where something is.
type Reply struct {
	Action       string      `json:"action,omitempty" jsonschema:"enum=fill_field,enum=skip,enum=go_back,enum=cancel,enum=clarify,enum=scan_document,enum=provide_clarification,description=What to do with the current form field"`
	Field        string      `json:"field,omitempty" jsonschema:"description=Name of the field the value belongs to"`
	Value        any         `json:"value,omitempty" jsonschema:"description=Extracted value for fill_field"`
	Message      string      `json:"message" jsonschema:"required,description=Short sentence spoken back to the user"`
	DocumentType string      `json:"documentType,omitempty" jsonschema:"description=Document to photograph for scan_document"`
	Guide        *GuideReply `json:"guide,omitempty" jsonschema:"description=Set only when the user asks where something is on screen"`
}

type GuideReply struct {
	ElementID   string `json:"elementId" jsonschema:"required,description=Registered on-screen element id"`
	Instruction string `json:"instruction" jsonschema:"required,description=Spoken instruction for the highlighted element"`
}

var knownActions = map[string]types.Action{
	string(types.ActionFillField):    types.ActionFillField,
	string(types.ActionSkip):         types.ActionSkip,
	string(types.ActionGoBack):       types.ActionGoBack,
	string(types.ActionCancel):       types.ActionCancel,
	string(types.ActionClarify):      types.ActionClarify,
	string(types.ActionScanDocument): types.ActionScanDocument,
	actionProvideClarification:       types.ActionClarify,
}

var defaultMessages = map[types.Action]string{
	types.ActionFillField:    "Got it.",
	types.ActionSkip:         "Okay, skipping that.",
	types.ActionGoBack:       "Sure, let's go back.",
	types.ActionCancel:       "Okay, I've cancelled this.",
	types.ActionClarify:      "Sorry, could you say that again?",
	types.ActionScanDocument: "Let's scan your document.",
}

// StripCodeFence removes a surrounding markdown code fence, if any.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func decodeReply(raw string) (*Reply, bool) {
	cleaned := StripCodeFence(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, false
	}
	var r Reply
	if err := sonic.UnmarshalString(cleaned, &r); err != nil {
		slog.Debug("model reply is not structured", "err", err)
		return nil, false
	}
	return &r, true
}

// Navigation reports whether the model reply is a navigation guide rather
// than a form-filling reply.
func Navigation(raw string) (types.NavigationGuide, bool) {
	r, ok := decodeReply(raw)
	if !ok || r.Guide == nil || r.Guide.ElementID == "" {
		return types.NavigationGuide{}, false
	}
	return types.NavigationGuide{ElementID: r.Guide.ElementID, Instruction: r.Guide.Instruction}, true
}

// Message returns the text to speak for a reply outside guided mode.
func Message(raw string) string {
	if r, ok := decodeReply(raw); ok && r.Message != "" {
		return r.Message
	}
	return strings.TrimSpace(raw)
}

// Interpret turns a raw model response into an intent for field. utterance is
// the user's transcript, used when the reply carries no usable value. It
// never fails: anything unreadable becomes a clarification.
func Interpret(raw string, field types.FieldDefinition, utterance string) types.Intent {
	r, ok := decodeReply(raw)
	if !ok {
		return fromKeywords(raw)
	}
	action, known := knownActions[r.Action]
	if !known {
		// A well-formed reply without a usable action is an answer, not a
		// command: speak it and keep the field.
		action = types.ActionClarify
	}
	return fromReply(action, r, field, utterance)
}

func fromReply(action types.Action, r *Reply, field types.FieldDefinition, utterance string) types.Intent {
	intent := types.Intent{Action: action, Message: r.Message}
	if intent.Message == "" {
		intent.Message = defaultMessages[action]
	}
	switch action {
	case types.ActionFillField:
		value, ok := Normalize(r.Value, field)
		if !ok {
			value, ok = ExtractValue(utterance, field)
		}
		if !ok {
			return types.Intent{
				Action:  types.ActionClarify,
				Message: fmt.Sprintf("Sorry, I couldn't catch the %s. %s", strings.ToLower(field.Label), field.Prompt),
			}
		}
		intent.Value = value
	case types.ActionScanDocument:
		intent.DocumentType = r.DocumentType
		if intent.DocumentType == "" && len(field.Documents) > 0 {
			intent.DocumentType = field.Documents[0]
		}
	}
	return intent
}

var clarifyMarkers = []string{
	"sorry", "repeat", "pardon", "didn't catch", "did not catch",
	"didn't understand", "say that again", "not sure what you",
}

func fromKeywords(raw string) types.Intent {
	lower := strings.ToLower(raw)
	spoken := strings.TrimSpace(raw)
	if strings.HasPrefix(StripCodeFence(spoken), "{") {
		spoken = ""
	}
	pick := func(action types.Action) types.Intent {
		msg := spoken
		if msg == "" {
			msg = defaultMessages[action]
		}
		return types.Intent{Action: action, Message: msg}
	}
	switch {
	case strings.Contains(lower, "skip"):
		return pick(types.ActionSkip)
	case strings.Contains(lower, "go back"), strings.Contains(lower, "previous"):
		return pick(types.ActionGoBack)
	case strings.Contains(lower, "cancel"), strings.Contains(lower, "stop"):
		return pick(types.ActionCancel)
	}
	for _, marker := range clarifyMarkers {
		if strings.Contains(lower, marker) {
			return pick(types.ActionClarify)
		}
	}
	return pick(types.ActionClarify)
}

// Normalize coerces a model-provided value to the canonical form for the
// field type.
func Normalize(value any, field types.FieldDefinition) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, false
		}
		if field.Type == types.FieldIdentifier && extract.IsIdentifier(v) {
			return strings.ToLower(strings.TrimSpace(v)), true
		}
		return ExtractValue(v, field)
	case float64:
		if field.Type == types.FieldIdentifier {
			return nil, false
		}
		if field.Type == types.FieldText {
			return fmt.Sprintf("%v", v), true
		}
		return v, true
	case int:
		return Normalize(float64(v), field)
	case int64:
		return Normalize(float64(v), field)
	default:
		return nil, false
	}
}

// ExtractValue runs the natural-language extractor matching the field type.
func ExtractValue(text string, field types.FieldDefinition) (any, bool) {
	switch field.Type {
	case types.FieldNumber:
		v, ok := extract.Number(text)
		if !ok {
			return nil, false
		}
		return v, true
	case types.FieldIdentifier:
		v, ok := extract.Identifier(text)
		if !ok {
			return nil, false
		}
		return v, true
	default:
		s := strings.TrimSpace(text)
		if s == "" {
			return nil, false
		}
		return s, true
	}
}
