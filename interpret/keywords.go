package interpret

import (
	"strings"

	"github.com/tbxark/soprano/types"
)

type Confirmation string

const (
	Affirmative Confirmation = "affirmative"
	Negative    Confirmation = "negative"
	Unclear     Confirmation = "unclear"
)

// KeywordClassifier answers the yes/no and field-selection sub-dialogues
// without a model round-trip.
type KeywordClassifier struct {
	AffirmativeKeywords []string
	NegativeKeywords    []string
	DismissKeywords     []string
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		AffirmativeKeywords: []string{"yes", "yeah", "yep", "sure", "confirm", "confirmed", "proceed", "correct", "ok", "okay", "go ahead", "submit", "send it", "right", "haan"},
		NegativeKeywords:    []string{"no", "nope", "cancel", "wrong", "edit", "change", "incorrect", "modify", "not right", "fix"},
		DismissKeywords:     []string{"cancel", "nevermind", "never mind", "forget it", "stop"},
	}
}

func normalize(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	})
	return " " + strings.Join(fields, " ") + " "
}

func containsPhrase(normalized, phrase string) bool {
	return strings.Contains(normalized, " "+phrase+" ")
}

func containsAny(normalized string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(normalized, p) {
			return true
		}
	}
	return false
}

// Confirm classifies an answer to "shall I submit?". Negative wins over
// affirmative so "yes, change the amount" is treated as an edit request.
func (c *KeywordClassifier) Confirm(text string) Confirmation {
	n := normalize(text)
	switch {
	case containsAny(n, c.NegativeKeywords):
		return Negative
	case containsAny(n, c.AffirmativeKeywords):
		return Affirmative
	default:
		return Unclear
	}
}

// Dismissed reports whether the user abandoned the field-selection question.
func (c *KeywordClassifier) Dismissed(text string) bool {
	return containsAny(normalize(text), c.DismissKeywords)
}

// MatchField finds the field the user named, by name, label or synonym.
// Longer matches win so "upi id" beats "id".
func (c *KeywordClassifier) MatchField(text string, fields []types.FieldDefinition) (types.FieldDefinition, bool) {
	n := normalize(text)
	best, bestLen := -1, 0
	for i, f := range fields {
		candidates := append([]string{f.Name, f.Label}, f.Synonyms...)
		for _, cand := range candidates {
			phrase := strings.TrimSpace(normalize(cand))
			if phrase == "" || len(phrase) <= bestLen {
				continue
			}
			if containsPhrase(n, phrase) {
				best, bestLen = i, len(phrase)
			}
		}
	}
	if best < 0 {
		return types.FieldDefinition{}, false
	}
	return fields[best], true
}
