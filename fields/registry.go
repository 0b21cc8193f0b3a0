package fields

import (
	"sort"
	"sync"

	"github.com/tbxark/soprano/types"
)

// Registry maps form ids to their guided-mode schema.
type Registry struct {
	mu    sync.RWMutex
	forms map[string]types.Form
}

func NewRegistry(forms ...types.Form) *Registry {
	r := &Registry{forms: make(map[string]types.Form, len(forms))}
	for _, f := range forms {
		r.Register(f)
	}
	return r
}

// NewDefaultRegistry returns a registry holding the built-in banking forms.
func NewDefaultRegistry() *Registry {
	return NewRegistry(SendMoneyForm(), AddPayeeForm(), UpdateAddressForm())
}

func (r *Registry) Register(form types.Form) {
	r.mu.Lock()
	r.forms[form.ID] = form
	r.mu.Unlock()
}

// Fields returns the ordered field schema of formID. An empty result means
// guided mode is unavailable for that form.
func (r *Registry) Fields(formID string) []types.FieldDefinition {
	form, ok := r.Form(formID)
	if !ok {
		return nil
	}
	return form.Fields
}

func (r *Registry) Form(formID string) (types.Form, bool) {
	r.mu.RLock()
	form, ok := r.forms[formID]
	r.mu.RUnlock()
	if !ok {
		return types.Form{}, false
	}
	form.Fields = append([]types.FieldDefinition(nil), form.Fields...)
	return form, true
}

// IDs lists registered form ids in lexical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.forms))
	for id := range r.forms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
