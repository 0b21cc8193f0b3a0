package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/tbxark/soprano/interpret"
	"github.com/tbxark/soprano/types"
)

const (
	confirmQuestion = "Shall I go ahead?"
	confirmReask    = "Sorry, please say yes to confirm, or no to make a change."
)

// process runs one transcript through the model and the dialogue.
func (o *Orchestrator) process(ctx context.Context, t *turn, transcript string) {
	t.result.Transcript = transcript
	o.setStatus(ctx, StatusProcessing)
	slog.Debug("processing utterance", "transcript", transcript, "mode", o.state.Mode())

	raw, err := o.completer.Complete(ctx, transcript, o.snapshot())
	if ctx.Err() != nil {
		t.result.Outcome = OutcomeStopped
		return
	}
	if err != nil {
		slog.Warn("completion failed", "err", err)
		t.err = err
		// The sub-dialogues are keyword driven and do not need the model.
		if mode := o.state.Mode(); !o.state.Active() || mode == types.ModeNormal {
			o.retry(ctx, t, "Sorry, I'm having trouble understanding right now.")
			return
		}
	}
	t.result.Raw = raw

	if nav, ok := interpret.Navigation(raw); ok {
		o.navigate(ctx, t, nav)
		return
	}
	if !o.state.Active() {
		o.say(ctx, t, interpret.Message(raw))
		t.result.Outcome = OutcomeAnswered
		return
	}
	switch o.state.Mode() {
	case types.ModeAwaitingConfirmation:
		o.confirm(ctx, t, transcript)
	case types.ModeSelectingFieldToEdit:
		o.selectField(ctx, t, transcript)
	default:
		o.act(ctx, t, transcript, raw)
	}
}

// retry apologises and repeats the pending question. Outside guided mode
// there is nothing to repeat and the turn just ends.
func (o *Orchestrator) retry(ctx context.Context, t *turn, apology string) {
	t.result.Outcome = OutcomeRetry
	if !o.state.Active() {
		o.say(ctx, t, apology+" Please try again.")
		return
	}
	o.say(ctx, t, apology+" "+o.pendingQuestion())
	o.listen(ctx, t)
}

func (o *Orchestrator) pendingQuestion() string {
	switch o.state.Mode() {
	case types.ModeAwaitingConfirmation:
		return confirmQuestion
	case types.ModeSelectingFieldToEdit:
		return o.selectQuestion()
	}
	field, _ := o.state.CurrentField()
	return field.Prompt
}

func (o *Orchestrator) selectQuestion() string {
	form, _ := o.state.Form()
	labels := make([]string, 0, len(form.Fields))
	for _, f := range form.Fields {
		labels = append(labels, strings.ToLower(f.Label))
	}
	return "Which one would you like to change: " + strings.Join(labels, ", ") + "?"
}

func (o *Orchestrator) navigate(ctx context.Context, t *turn, nav types.NavigationGuide) {
	t.result.Outcome = OutcomeNavigated
	if o.guide != nil && o.guide.Show(nav.ElementID, nav.Instruction) {
		o.say(ctx, t, nav.Instruction)
	} else {
		o.say(ctx, t, "Sorry, I can't find that on this screen.")
	}
	if o.state.Active() {
		o.listen(ctx, t)
	}
}

func (o *Orchestrator) confirm(ctx context.Context, t *turn, transcript string) {
	form, _ := o.state.Form()
	switch o.classifier.Confirm(transcript) {
	case interpret.Affirmative:
		o.submit(ctx, t, form)
	case interpret.Negative:
		if field, ok := o.classifier.MatchField(transcript, form.Fields); ok {
			o.edit(ctx, t, field)
			return
		}
		_ = o.state.SetMode(types.ModeSelectingFieldToEdit)
		t.result.Outcome = OutcomeEditing
		o.say(ctx, t, o.selectQuestion())
		o.listen(ctx, t)
	default:
		t.result.Outcome = OutcomeConfirming
		o.say(ctx, t, confirmReask)
		o.listen(ctx, t)
	}
}

func (o *Orchestrator) selectField(ctx context.Context, t *turn, transcript string) {
	form, _ := o.state.Form()
	if field, ok := o.classifier.MatchField(transcript, form.Fields); ok {
		o.edit(ctx, t, field)
		return
	}
	if o.classifier.Dismissed(transcript) {
		o.cancelSession(ctx, t, "Okay, I've cancelled this.")
		return
	}
	t.result.Outcome = OutcomeEditing
	o.say(ctx, t, "Sorry, I didn't get which one. "+o.selectQuestion())
	o.listen(ctx, t)
}

func (o *Orchestrator) edit(ctx context.Context, t *turn, field types.FieldDefinition) {
	o.state.JumpTo(field.Name)
	_ = o.state.SetMode(types.ModeNormal)
	t.result.Outcome = OutcomeEditing
	o.say(ctx, t, field.Prompt)
	o.listen(ctx, t)
}

// act dispatches the interpreted intent for the current field.
func (o *Orchestrator) act(ctx context.Context, t *turn, transcript, raw string) {
	field, ok := o.state.CurrentField()
	if !ok {
		return
	}
	intent := interpret.Interpret(raw, field, transcript)
	t.result.Intent = intent.Action
	slog.Debug("interpreted intent", "field", field.Name, "action", intent.Action, "value", intent.Value)

	switch intent.Action {
	case types.ActionFillField:
		o.accept(ctx, t, field, transcript, intent.Value, intent.Message)
	case types.ActionSkip:
		if field.Required {
			t.result.Outcome = OutcomeInvalid
			o.say(ctx, t, fmt.Sprintf("The %s is required, so I can't skip it. %s", strings.ToLower(field.Label), field.Prompt))
			o.listen(ctx, t)
			return
		}
		o.setHostValue(field.Name, nil)
		o.state.RecordAnswer(field.Name, transcript, types.SkippedValue)
		o.say(ctx, t, intent.Message)
		o.next(ctx, t)
	case types.ActionGoBack:
		t.result.Outcome = OutcomeContinue
		prev, ok := o.state.Retreat()
		if !ok {
			o.say(ctx, t, "This is the first question. "+field.Prompt)
			o.listen(ctx, t)
			return
		}
		o.say(ctx, t, prev.Prompt)
		o.listen(ctx, t)
	case types.ActionCancel:
		o.cancelSession(ctx, t, intent.Message)
	case types.ActionScanDocument:
		o.scan(ctx, t, field, intent)
	default:
		t.result.Outcome = OutcomeContinue
		o.say(ctx, t, intent.Message)
		o.listen(ctx, t)
	}
}

func (o *Orchestrator) cancelSession(ctx context.Context, t *turn, message string) {
	if host := o.state.Host(); host != nil {
		if err := host.Cancel(ctx); err != nil {
			slog.Warn("host cancel failed", "err", err)
		}
	}
	o.endSession(ctx, t, OutcomeCancelled)
	o.say(ctx, t, message)
	o.setStatus(ctx, StatusIdle)
}

// accept validates value for field and moves the dialogue on.
func (o *Orchestrator) accept(ctx context.Context, t *turn, field types.FieldDefinition, utterance string, value any, message string) {
	var snap types.FormSnapshot
	if host := o.state.Host(); host != nil {
		snap = host.Snapshot()
	}
	res := field.Check(value, snap)
	if !res.Valid {
		t.result.Outcome = OutcomeInvalid
		o.say(ctx, t, fmt.Sprintf("%s. %s", strings.TrimSuffix(res.Error, "."), field.Prompt))
		o.listen(ctx, t)
		return
	}
	o.setHostValue(field.Name, value)
	o.state.RecordAnswer(field.Name, utterance, value)
	if res.Warning != "" {
		message = strings.TrimSpace(message + " " + strings.TrimSuffix(res.Warning, ".") + ".")
	}
	o.say(ctx, t, message)
	o.next(ctx, t)
}

func (o *Orchestrator) setHostValue(name string, value any) {
	host := o.state.Host()
	if host == nil {
		return
	}
	capability, ok := host.Capabilities()[name]
	if !ok || capability.SetValue == nil {
		return
	}
	if err := capability.SetValue(value); err != nil {
		slog.Warn("host rejected field value", "field", name, "err", err)
	}
}

// next moves past an answered field: to the next prompt, to confirmation, or
// to submission once the schema is exhausted.
func (o *Orchestrator) next(ctx context.Context, t *turn) {
	if ctx.Err() != nil {
		t.result.Outcome = OutcomeStopped
		return
	}
	form, _ := o.state.Form()
	if form.ConfirmBeforeSubmit && (o.state.IsLast() || o.state.AllCompleted()) {
		o.askConfirmation(ctx, t, form)
		return
	}
	values := o.state.Values()
	host := o.state.Host()
	nextField, ok := o.state.Advance()
	if ok {
		t.result.Outcome = OutcomeContinue
		o.say(ctx, t, nextField.Prompt)
		o.listen(ctx, t)
		return
	}
	if ctx.Err() != nil {
		t.result.Outcome = OutcomeStopped
		return
	}
	if form.Summary != nil {
		o.say(ctx, t, form.Summary(values))
	}
	o.deliver(ctx, t, form, host, values)
}

func (o *Orchestrator) askConfirmation(ctx context.Context, t *turn, form types.Form) {
	_ = o.state.SetMode(types.ModeAwaitingConfirmation)
	t.result.Outcome = OutcomeConfirming
	summary := ""
	if form.Summary != nil {
		summary = form.Summary(o.state.Values()) + " "
	}
	o.say(ctx, t, summary+confirmQuestion)
	o.listen(ctx, t)
}

// submit hands the recorded answers to the host. History, not the UI
// controls, is the source of the values.
func (o *Orchestrator) submit(ctx context.Context, t *turn, form types.Form) {
	values := o.state.Values()
	host := o.state.Host()
	if host != nil {
		if err := host.Submit(ctx, values); err != nil {
			slog.Warn("submit failed", "form", form.ID, "err", err)
			t.err = err
			t.result.Outcome = OutcomeConfirming
			o.hooks.fail(err)
			o.say(ctx, t, "Sorry, I couldn't submit that. Say yes to try again, or no to make a change.")
			o.listen(ctx, t)
			return
		}
	}
	o.endSession(ctx, t, OutcomeSubmitted)
	o.say(ctx, t, successMessage(form))
	o.setStatus(ctx, StatusIdle)
}

// deliver submits an auto-submit form whose session already ended.
func (o *Orchestrator) deliver(ctx context.Context, t *turn, form types.Form, host types.FormHost, values map[string]any) {
	if host != nil {
		if err := host.Submit(ctx, values); err != nil {
			slog.Warn("submit failed", "form", form.ID, "err", err)
			t.err = err
			o.hooks.fail(err)
			o.say(ctx, t, "Sorry, I couldn't submit the form.")
			o.endSession(ctx, t, OutcomeFailed)
			return
		}
	}
	o.say(ctx, t, successMessage(form))
	o.endSession(ctx, t, OutcomeSubmitted)
}

func successMessage(form types.Form) string {
	if form.SuccessMessage != "" {
		return form.SuccessMessage
	}
	return "Done."
}

// scan fills field from a photographed document.
func (o *Orchestrator) scan(ctx context.Context, t *turn, field types.FieldDefinition, intent types.Intent) {
	if o.scanner == nil || intent.DocumentType == "" {
		t.result.Outcome = OutcomeContinue
		o.say(ctx, t, "Sorry, I can't scan a document for this one. "+field.Prompt)
		o.listen(ctx, t)
		return
	}
	o.say(ctx, t, intent.Message)
	data, err := o.scanner.Scan(ctx, intent.DocumentType)
	if ctx.Err() != nil {
		t.result.Outcome = OutcomeStopped
		return
	}
	if errors.Is(err, types.ErrUserCancelled) {
		t.result.Outcome = OutcomeContinue
		o.say(ctx, t, field.Prompt)
		o.listen(ctx, t)
		return
	}
	var value any
	ok := false
	if err == nil {
		value, ok = documentValue(field, data)
	}
	if !ok {
		if err == nil {
			err = fmt.Errorf("%w: no %s in %s", types.ErrExtraction, field.Name, intent.DocumentType)
		}
		slog.Warn("document scan failed", "document", intent.DocumentType, "err", err)
		t.err = err
		t.result.Outcome = OutcomeRetry
		o.say(ctx, t, "Sorry, I couldn't read that document. Let's do it by voice instead. "+field.Prompt)
		o.listen(ctx, t)
		return
	}
	o.accept(ctx, t, field, "[scanned "+intent.DocumentType+"]", value, "I've read that from your document.")
}

// documentValue maps extracted document data to the shape field expects:
// DocumentKeys are joined in order, otherwise a key named like the field or
// the first value that normalizes for the field type is used.
func documentValue(field types.FieldDefinition, data map[string]any) (any, bool) {
	if len(data) == 0 {
		return nil, false
	}
	if len(field.DocumentKeys) > 0 {
		parts := make([]string, 0, len(field.DocumentKeys))
		for _, key := range field.DocumentKeys {
			if s := scalarText(data[key]); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return nil, false
		}
		return interpret.Normalize(strings.Join(parts, ", "), field)
	}
	if v, ok := data[field.Name]; ok {
		return interpret.Normalize(v, field)
	}
	if field.Type == types.FieldText {
		return nil, false
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := interpret.Normalize(data[k], field); ok {
			return v, true
		}
	}
	return nil, false
}

func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
