package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tbxark/soprano/types"
)

const (
	OperationAdd     = "add"
	OperationRemove  = "remove"
	OperationReplace = "replace"
)

var ErrPathNotAllowed = errors.New("path is not a field of this form")

type Operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

type Option func(*JSONForm)

// WithSubmit sets the callback run when the dialogue submits the form.
func WithSubmit(fn func(ctx context.Context, values map[string]any) error) Option {
	return func(f *JSONForm) { f.onSubmit = fn }
}

func WithCancel(fn func(ctx context.Context) error) Option {
	return func(f *JSONForm) { f.onCancel = fn }
}

// JSONForm is an in-memory form screen. Its state is one JSON object holding
// both the form fields and read-only context such as the account balance;
// field writes are RFC 6902 patches restricted to the form's own fields.
type JSONForm struct {
	form    types.Form
	allowed map[string]bool

	mu        sync.Mutex
	doc       []byte
	submitted map[string]any
	cancelled bool

	onSubmit func(ctx context.Context, values map[string]any) error
	onCancel func(ctx context.Context) error
}

var _ types.FormHost = (*JSONForm)(nil)

func NewJSONForm(form types.Form, initial map[string]any, opts ...Option) (*JSONForm, error) {
	if initial == nil {
		initial = map[string]any{}
	}
	doc, err := sonic.Marshal(initial)
	if err != nil {
		return nil, fmt.Errorf("marshal initial form state: %w", err)
	}
	f := &JSONForm{
		form:    form,
		allowed: make(map[string]bool, len(form.Fields)),
		doc:     doc,
	}
	for _, field := range form.Fields {
		f.allowed[fieldPath(field.Name)] = true
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func fieldPath(name string) string {
	return "/" + escapeJSONPointer(name)
}

func (f *JSONForm) Capabilities() map[string]types.FieldCapability {
	caps := make(map[string]types.FieldCapability, len(f.form.Fields))
	for _, field := range f.form.Fields {
		caps[field.Name] = types.FieldCapability{
			SetValue: func(v any) error {
				return f.Set(field.Name, v)
			},
			ValidateOnBlur: func(v any) types.ValidationResult {
				return field.Check(v, f.Snapshot())
			},
		}
	}
	return caps
}

// Set writes one field. A nil value removes it.
func (f *JSONForm) Set(name string, value any) error {
	op := Operation{Op: OperationReplace, Path: fieldPath(name), Value: value}
	if value == nil {
		op = Operation{Op: OperationRemove, Path: op.Path}
	}
	return f.Apply([]Operation{op})
}

// Apply patches the form state. Every path must address a form field.
func (f *JSONForm) Apply(ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}
	for i, op := range ops {
		if !f.allowed[op.Path] {
			return fmt.Errorf("operation %d: %w: %q", i, ErrPathNotAllowed, op.Path)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ops = fixOperations(f.doc, ops)
	if len(ops) == 0 {
		return nil
	}
	patchJSON, err := sonic.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to marshal patch operations: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return fmt.Errorf("failed to decode patch: %w", err)
	}
	modified, err := patch.Apply(f.doc)
	if err != nil {
		return fmt.Errorf("failed to apply patch: %w", err)
	}
	f.doc = modified
	slog.Debug("form state patched", "form", f.form.ID, "ops", len(ops))
	return nil
}

// fixOperations turns replace into add for absent fields and drops removals
// of absent fields, so a first write and a repeated skip both succeed.
func fixOperations(doc []byte, ops []Operation) []Operation {
	var parsed any
	if err := sonic.Unmarshal(doc, &parsed); err != nil {
		return ops
	}
	fixed := make([]Operation, 0, len(ops))
	for _, op := range ops {
		switch op.Op {
		case OperationReplace:
			if !pathExists(parsed, op.Path) {
				op.Op = OperationAdd
			}
			fixed = append(fixed, op)
		case OperationRemove:
			if pathExists(parsed, op.Path) {
				fixed = append(fixed, op)
			}
		default:
			fixed = append(fixed, op)
		}
	}
	return fixed
}

func pathExists(doc any, path string) bool {
	if path == "" {
		return true
	}
	if !strings.HasPrefix(path, "/") {
		return false
	}
	cur := doc
	for _, token := range strings.Split(path[1:], "/") {
		token = strings.ReplaceAll(token, "~1", "/")
		token = strings.ReplaceAll(token, "~0", "~")
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[token]
			if !ok {
				return false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(token)
			if err != nil || i < 0 || i >= len(node) {
				return false
			}
			cur = node[i]
		default:
			return false
		}
	}
	return true
}

func escapeJSONPointer(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}

// Snapshot decodes the current state. Numbers come back as float64.
func (f *JSONForm) Snapshot() types.FormSnapshot {
	f.mu.Lock()
	doc := f.doc
	f.mu.Unlock()
	snap := types.FormSnapshot{}
	if err := sonic.Unmarshal(doc, &snap); err != nil {
		slog.Warn("decode form state failed", "form", f.form.ID, "err", err)
	}
	return snap
}

// Submit stores values as the form state and hands them to the submit
// callback.
func (f *JSONForm) Submit(ctx context.Context, values map[string]any) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := f.Set(name, values[name]); err != nil {
			return fmt.Errorf("store %s: %w", name, err)
		}
	}

	f.mu.Lock()
	f.submitted = make(map[string]any, len(values))
	for k, v := range values {
		f.submitted[k] = v
	}
	fn := f.onSubmit
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, values)
	}
	return nil
}

func (f *JSONForm) Cancel(ctx context.Context) error {
	f.mu.Lock()
	f.cancelled = true
	fn := f.onCancel
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// Submitted returns the values passed to Submit, if it was called.
func (f *JSONForm) Submitted() (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted, f.submitted != nil
}

func (f *JSONForm) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}
