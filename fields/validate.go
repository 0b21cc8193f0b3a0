package fields

import (
	"fmt"
	"strings"

	"github.com/tbxark/soprano/extract"
	"github.com/tbxark/soprano/types"
)

func RequireIdentifier(label string) types.Validator {
	return func(value any, _ types.FormSnapshot) types.ValidationResult {
		s, _ := value.(string)
		if !extract.IsIdentifier(s) {
			return types.Invalid(fmt.Sprintf("That doesn't look like a valid %s", label))
		}
		return types.Valid()
	}
}

// RequireAmount accepts a positive amount no larger than the snapshot's
// balanceKey (when present). Amounts at or above warnAbove pass with a warning.
func RequireAmount(balanceKey string, warnAbove float64) types.Validator {
	return func(value any, form types.FormSnapshot) types.ValidationResult {
		amount, ok := value.(float64)
		if !ok {
			return types.Invalid("Please say the amount as a number")
		}
		if amount <= 0 {
			return types.Invalid("The amount must be greater than zero")
		}
		if balance, ok := form.Float(balanceKey); ok && amount > balance {
			return types.Invalid(fmt.Sprintf("The amount is more than your available balance of %s rupees", FormatAmount(balance)))
		}
		if warnAbove > 0 && amount >= warnAbove {
			return types.ValidationResult{
				Valid:   true,
				Warning: fmt.Sprintf("Note that %s rupees is a large transfer", FormatAmount(amount)),
			}
		}
		return types.Valid()
	}
}

func RequireText(label string, minLen int) types.Validator {
	return func(value any, _ types.FormSnapshot) types.ValidationResult {
		s, _ := value.(string)
		if len(strings.TrimSpace(s)) < minLen {
			return types.Invalid(fmt.Sprintf("The %s is too short", label))
		}
		return types.Valid()
	}
}

func FormatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
