package types

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

type FieldType string

const (
	FieldText       FieldType = "text"
	FieldNumber     FieldType = "number"
	FieldIdentifier FieldType = "email-like-id"
)

// ValidationResult is what a field validator reports for a candidate value.
// Warning is spoken to the user but does not block the value.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

func Invalid(message string) ValidationResult {
	return ValidationResult{Valid: false, Error: message}
}

// FormSnapshot is the host's contextual view of the form, used for
// cross-field validation (for example amount vs. available balance).
type FormSnapshot map[string]any

func (s FormSnapshot) Float(key string) (float64, bool) {
	switch v := s[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

type Validator func(value any, form FormSnapshot) ValidationResult

// FieldDefinition describes one voice-fillable form field. Values are never
// mutated after the schema is built.
type FieldDefinition struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Prompt   string    `json:"prompt"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	// Synonyms are extra spoken names matched when the user picks a field to edit.
	Synonyms []string `json:"synonyms,omitempty"`
	// Documents lists document types that can be scanned to fill this field.
	Documents []string `json:"documents,omitempty"`
	// DocumentKeys orders the extracted document keys joined into a text value.
	DocumentKeys []string  `json:"document_keys,omitempty"`
	Validate     Validator `json:"-"`
}

func (f FieldDefinition) Check(value any, form FormSnapshot) ValidationResult {
	if f.Validate == nil {
		return Valid()
	}
	return f.Validate(value, form)
}

func (f FieldDefinition) Info() FieldInfo {
	return FieldInfo{
		Name:     f.Name,
		Label:    f.Label,
		Prompt:   f.Prompt,
		Type:     f.Type,
		Required: f.Required,
	}
}

// FieldInfo is the serializable part of a FieldDefinition.
type FieldInfo struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Prompt   string    `json:"prompt,omitempty"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// Form bundles a field schema with the per-form dialogue texts.
type Form struct {
	ID       string
	Title    string
	Greeting string
	Fields   []FieldDefinition
	// Summary renders collected values before confirmation or submission.
	Summary             func(values map[string]any) string
	ConfirmBeforeSubmit bool
	SuccessMessage      string
}

// FieldCapability is what a host screen exposes for one field.
type FieldCapability struct {
	SetValue       func(value any) error
	ValidateOnBlur func(value any) ValidationResult
}

// FormHost is the screen that owns the real form controls.
type FormHost interface {
	Capabilities() map[string]FieldCapability
	Snapshot() FormSnapshot
	Submit(ctx context.Context, values map[string]any) error
	Cancel(ctx context.Context) error
}

// DocumentScanner captures a document photo and extracts structured fields.
// Failures wrap ErrUserCancelled, ErrCapture or ErrExtraction.
type DocumentScanner interface {
	Scan(ctx context.Context, documentType string) (map[string]any, error)
}

var (
	ErrUserCancelled = errors.New("document capture cancelled by user")
	ErrCapture       = errors.New("document capture failed")
	ErrExtraction    = errors.New("document extraction failed")
)

// SkippedValue is recorded in the history for a skipped optional field.
const SkippedValue = "(skipped)"

type ConversationEntry struct {
	Field     string    `json:"field"`
	Utterance string    `json:"utterance"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type Mode string

const (
	ModeNormal               Mode = "normal"
	ModeAwaitingConfirmation Mode = "awaiting_confirmation"
	ModeSelectingFieldToEdit Mode = "selecting_field_to_edit"
)

type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

type Action string

const (
	ActionFillField    Action = "fill_field"
	ActionSkip         Action = "skip"
	ActionGoBack       Action = "go_back"
	ActionCancel       Action = "cancel"
	ActionClarify      Action = "clarify"
	ActionScanDocument Action = "scan_document"
)

// Intent is the interpreted meaning of one model response.
type Intent struct {
	Action       Action `json:"action"`
	Value        any    `json:"value,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	Message      string `json:"message"`
}

// NavigationGuide asks the host to spotlight an on-screen element.
type NavigationGuide struct {
	ElementID   string `json:"elementId"`
	Instruction string `json:"instruction"`
}

// GuidedContext is the guided-mode part of a ContextSnapshot.
type GuidedContext struct {
	FormID       string              `json:"form_id"`
	CurrentField FieldInfo           `json:"current_field"`
	Completed    []string            `json:"completed"`
	History      []ConversationEntry `json:"history"`
	Progress     Progress            `json:"progress"`
	Mode         Mode                `json:"mode"`
}

// ContextSnapshot is built once per turn and passed by value to the model
// boundary.
type ContextSnapshot struct {
	Screen string         `json:"screen"`
	Data   map[string]any `json:"data,omitempty"`
	// Elements are the guide element ids registered on the screen.
	Elements []string       `json:"elements,omitempty"`
	Guided   *GuidedContext `json:"guided,omitempty"`
}
