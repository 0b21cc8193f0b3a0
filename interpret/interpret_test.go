package interpret

import (
	"strings"
	"testing"

	"github.com/tbxark/soprano/types"
)

var (
	upiField    = types.FieldDefinition{Name: "upiId", Label: "UPI ID", Prompt: "Say the UPI ID.", Type: types.FieldIdentifier, Required: true}
	amountField = types.FieldDefinition{Name: "amount", Label: "Amount", Prompt: "How much?", Type: types.FieldNumber, Required: true, Synonyms: []string{"money"}}
	noteField   = types.FieldDefinition{Name: "note", Label: "Note", Prompt: "Any note?", Type: types.FieldText, Documents: []string{"receipt"}}
)

func TestInterpretStructured(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		field  types.FieldDefinition
		utter  string
		action types.Action
		value  any
	}{
		{"skip", `{"action":"skip","message":"ok"}`, noteField, "skip", types.ActionSkip, nil},
		{"fenced fill", "```json\n{\"action\":\"fill_field\",\"value\":\"500\",\"message\":\"Got it\"}\n```", amountField, "five hundred", types.ActionFillField, 500.0},
		{"numeric value", `{"action":"fill_field","value":750,"message":"ok"}`, amountField, "", types.ActionFillField, 750.0},
		{"digits with magnitude", `{"action":"fill_field","value":"2 lakh","message":"ok"}`, amountField, "", types.ActionFillField, 200000.0},
		{"fill without value uses utterance", `{"action":"fill_field","message":"ok"}`, upiField, "arvind at paytm", types.ActionFillField, "arvind@paytm"},
		{"spoken id in value", `{"action":"fill_field","value":"arvind at paytm","message":"ok"}`, upiField, "", types.ActionFillField, "arvind@paytm"},
		{"provide clarification", `{"action":"provide_clarification","message":"The amount in rupees"}`, amountField, "what?", types.ActionClarify, nil},
		{"go back", `{"action":"go_back","message":"back"}`, amountField, "go back", types.ActionGoBack, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Interpret(c.raw, c.field, c.utter)
			if got.Action != c.action {
				t.Fatalf("action = %s, want %s", got.Action, c.action)
			}
			if got.Value != c.value {
				t.Errorf("value = %#v, want %#v", got.Value, c.value)
			}
			if got.Message == "" {
				t.Error("message must always be present")
			}
		})
	}
}

func TestInterpretUnextractableFillBecomesClarify(t *testing.T) {
	got := Interpret(`{"action":"fill_field","message":"ok"}`, amountField, "xyz")
	if got.Action != types.ActionClarify {
		t.Fatalf("action = %s, want clarify", got.Action)
	}
	if !strings.Contains(got.Message, amountField.Prompt) {
		t.Errorf("message %q should repeat the prompt", got.Message)
	}
}

func TestInterpretScanDocumentDefaultsType(t *testing.T) {
	got := Interpret(`{"action":"scan_document","message":"Let's take a photo"}`, noteField, "scan it")
	if got.Action != types.ActionScanDocument || got.DocumentType != "receipt" {
		t.Errorf("got %+v", got)
	}
}

func TestInterpretKeywordFallback(t *testing.T) {
	cases := []struct {
		raw    string
		action types.Action
	}{
		{"Could you repeat that?", types.ActionClarify},
		{"not json at all, please repeat", types.ActionClarify},
		{"Okay, we'll skip this one", types.ActionSkip},
		{"Let's go back to the previous question", types.ActionGoBack},
		{"I'll cancel the transfer", types.ActionCancel},
		{"The weather is nice", types.ActionClarify},
		{`{"action":"dance","message":"hm"}`, types.ActionClarify},
		{`{"action":`, types.ActionClarify},
	}
	for _, c := range cases {
		got := Interpret(c.raw, amountField, "")
		if got.Action != c.action {
			t.Errorf("Interpret(%q) = %s, want %s", c.raw, got.Action, c.action)
		}
		if got.Message == "" {
			t.Errorf("Interpret(%q) returned an empty message", c.raw)
		}
	}

	if got := Interpret("The weather is nice", amountField, ""); got.Message != "The weather is nice" {
		t.Errorf("default clarify should carry the raw text, got %q", got.Message)
	}
}

func TestInterpretReplyWithoutAction(t *testing.T) {
	raw := `{"message":"Your balance is 25000 rupees. You can also skip the note."}`
	got := Interpret(raw, noteField, "what is my balance")
	if got.Action != types.ActionClarify {
		t.Fatalf("action = %s, want clarify", got.Action)
	}
	if got.Message != "Your balance is 25000 rupees. You can also skip the note." {
		t.Errorf("message = %q", got.Message)
	}

	got = Interpret(`{"action":"dance","message":"I can't do that."}`, noteField, "dance")
	if got.Action != types.ActionClarify || got.Message != "I can't do that." {
		t.Errorf("unknown action got %+v", got)
	}
}

func TestNavigation(t *testing.T) {
	g, ok := Navigation(`{"guide":{"elementId":"send_button","instruction":"Tap here"},"message":"Here it is"}`)
	if !ok || g.ElementID != "send_button" || g.Instruction != "Tap here" {
		t.Errorf("got %+v, %v", g, ok)
	}
	if _, ok := Navigation(`{"action":"skip","message":"ok"}`); ok {
		t.Error("form reply must not parse as navigation")
	}
	if _, ok := Navigation("where is it"); ok {
		t.Error("plain text must not parse as navigation")
	}
}

func TestConfirm(t *testing.T) {
	c := NewKeywordClassifier()
	cases := map[string]Confirmation{
		"Yes please":                Affirmative,
		"ok go ahead":               Affirmative,
		"that's correct":            Affirmative,
		"no":                        Negative,
		"yes but change the amount": Negative,
		"I know":                    Unclear,
		"hmm":                       Unclear,
	}
	for in, want := range cases {
		if got := c.Confirm(in); got != want {
			t.Errorf("Confirm(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestMatchField(t *testing.T) {
	c := NewKeywordClassifier()
	fields := []types.FieldDefinition{upiField, amountField, noteField}

	if f, ok := c.MatchField("the amount please", fields); !ok || f.Name != "amount" {
		t.Errorf("expected amount, got %+v %v", f, ok)
	}
	if f, ok := c.MatchField("change the money", fields); !ok || f.Name != "amount" {
		t.Errorf("expected synonym match for amount, got %+v %v", f, ok)
	}
	if f, ok := c.MatchField("the UPI ID", fields); !ok || f.Name != "upiId" {
		t.Errorf("expected upiId, got %+v %v", f, ok)
	}
	if _, ok := c.MatchField("the colour", fields); ok {
		t.Error("expected no match")
	}
	if !c.Dismissed("never mind") {
		t.Error("never mind should dismiss")
	}
}
