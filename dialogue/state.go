package dialogue

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tbxark/soprano/types"
)

var (
	ErrNoFields = errors.New("guided session needs at least one field")
	ErrInactive = errors.New("no guided session is active")
)

// session is the descriptor of one guided run. Start builds it completely
// before publishing it, so readers never see an active session with stale
// index or schema.
type session struct {
	id        string
	form      types.Form
	host      types.FormHost
	index     int
	completed map[string]struct{}
	history   []types.ConversationEntry
	mode      types.Mode
}

// State is the authoritative guided-dialogue state machine. A nil session
// means inactive.
type State struct {
	mu  sync.RWMutex
	cur *session
	now func() time.Time
}

func NewState() *State {
	return &State{now: time.Now}
}

// Start replaces any previous session and returns the new session id.
func (s *State) Start(form types.Form, host types.FormHost) (string, error) {
	if len(form.Fields) == 0 {
		return "", ErrNoFields
	}
	next := &session{
		id:        uuid.NewString(),
		form:      form,
		host:      host,
		index:     0,
		completed: make(map[string]struct{}, len(form.Fields)),
		mode:      types.ModeNormal,
	}
	next.form.Fields = append([]types.FieldDefinition(nil), form.Fields...)
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return next.id, nil
}

// Stop ends the session. Safe to call when already inactive.
func (s *State) Stop() {
	s.mu.Lock()
	s.cur = nil
	s.mu.Unlock()
}

func (s *State) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur != nil
}

// SessionID is empty while inactive.
func (s *State) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return ""
	}
	return s.cur.id
}

func (s *State) Form() (types.Form, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return types.Form{}, false
	}
	return s.cur.form, true
}

func (s *State) Host() types.FormHost {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.host
}

func (s *State) CurrentField() (types.FieldDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentLocked()
}

func (s *State) currentLocked() (types.FieldDefinition, bool) {
	if s.cur == nil || s.cur.index < 0 || s.cur.index >= len(s.cur.form.Fields) {
		return types.FieldDefinition{}, false
	}
	return s.cur.form.Fields[s.cur.index], true
}

// IsLast reports whether the current field is the final one.
func (s *State) IsLast() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur != nil && s.cur.index == len(s.cur.form.Fields)-1
}

// Advance moves to the next field. On the last field it stops the session
// and returns false, which is how form completion is signalled.
func (s *State) Advance() (types.FieldDefinition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return types.FieldDefinition{}, false
	}
	if s.cur.index >= len(s.cur.form.Fields)-1 {
		s.cur = nil
		return types.FieldDefinition{}, false
	}
	s.cur.index++
	return s.currentLocked()
}

// Retreat moves to the previous field and marks it as not completed, since
// the user is about to answer it again. No-op on the first field.
func (s *State) Retreat() (types.FieldDefinition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.index <= 0 {
		return types.FieldDefinition{}, false
	}
	s.cur.index--
	delete(s.cur.completed, s.cur.form.Fields[s.cur.index].Name)
	return s.currentLocked()
}

// RecordAnswer appends to the history and marks the field completed.
func (s *State) RecordAnswer(field, utterance string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return
	}
	s.cur.history = append(s.cur.history, types.ConversationEntry{
		Field:     field,
		Utterance: utterance,
		Value:     value,
		Timestamp: s.now(),
	})
	s.cur.completed[field] = struct{}{}
}

func (s *State) JumpTo(field string) (types.FieldDefinition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return types.FieldDefinition{}, false
	}
	for i, f := range s.cur.form.Fields {
		if f.Name == field {
			s.cur.index = i
			return f, true
		}
	}
	return types.FieldDefinition{}, false
}

func (s *State) Mode() types.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return types.ModeNormal
	}
	return s.cur.mode
}

// SetMode switches the sub-mode. Only Normal is allowed while inactive.
func (s *State) SetMode(mode types.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		if mode == types.ModeNormal {
			return nil
		}
		return ErrInactive
	}
	s.cur.mode = mode
	return nil
}

func (s *State) Progress() types.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return types.Progress{}
	}
	total := len(s.cur.form.Fields)
	p := types.Progress{Current: s.cur.index + 1, Total: total}
	if total > 0 {
		p.Percentage = int(math.Round(100 * float64(p.Current) / float64(total)))
	}
	return p
}

// Completed returns the completed field names in schema order.
func (s *State) Completed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return nil
	}
	out := make([]string, 0, len(s.cur.completed))
	for _, f := range s.cur.form.Fields {
		if _, ok := s.cur.completed[f.Name]; ok {
			out = append(out, f.Name)
		}
	}
	return out
}

func (s *State) AllCompleted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur != nil && len(s.cur.completed) == len(s.cur.form.Fields)
}

func (s *State) History() []types.ConversationEntry {
	return s.Recent(0)
}

// Recent returns the last n history entries, or all of them when n <= 0.
func (s *State) Recent(n int) []types.ConversationEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return nil
	}
	h := s.cur.history
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]types.ConversationEntry(nil), h...)
}

// Values rebuilds the answers from history: the most recent entry per
// field wins and skipped fields map to nil. Only schema fields are included.
func (s *State) Values() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return nil
	}
	return valuesFrom(s.cur.form.Fields, s.cur.history)
}

func valuesFrom(fields []types.FieldDefinition, history []types.ConversationEntry) map[string]any {
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		values[f.Name] = nil
	}
	for _, e := range history {
		if _, ok := values[e.Field]; !ok {
			continue
		}
		if s, ok := e.Value.(string); ok && s == types.SkippedValue {
			values[e.Field] = nil
			continue
		}
		values[e.Field] = e.Value
	}
	return values
}

// Guided snapshots the session for a per-turn context.
func (s *State) Guided(historyWindow int) (*types.GuidedContext, bool) {
	field, ok := s.CurrentField()
	if !ok {
		return nil, false
	}
	form, _ := s.Form()
	return &types.GuidedContext{
		FormID:       form.ID,
		CurrentField: field.Info(),
		Completed:    s.Completed(),
		History:      s.Recent(historyWindow),
		Progress:     s.Progress(),
		Mode:         s.Mode(),
	}, true
}
