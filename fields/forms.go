package fields

import (
	"fmt"
	"strings"

	"github.com/tbxark/soprano/types"
)

const (
	SendMoneyID     = "send_money"
	AddPayeeID      = "add_payee"
	UpdateAddressID = "update_address"
)

func SendMoneyForm() types.Form {
	return types.Form{
		ID:       SendMoneyID,
		Title:    "Send money",
		Greeting: "Let's send some money. I'll ask you a few quick questions.",
		Fields: []types.FieldDefinition{
			{
				Name:     "upiId",
				Label:    "UPI ID",
				Prompt:   "Who should I send the money to? Please say their UPI ID.",
				Type:     types.FieldIdentifier,
				Required: true,
				Synonyms: []string{"upi", "recipient", "receiver", "payee", "who"},
				Validate: RequireIdentifier("UPI ID"),
			},
			{
				Name:     "amount",
				Label:    "Amount",
				Prompt:   "How much would you like to send?",
				Type:     types.FieldNumber,
				Required: true,
				Synonyms: []string{"money", "rupees", "how much", "sum"},
				Validate: RequireAmount("balance", 50000),
			},
			{
				Name:     "note",
				Label:    "Note",
				Prompt:   "Would you like to add a note? You can say skip.",
				Type:     types.FieldText,
				Required: false,
				Synonyms: []string{"message", "remark", "description"},
			},
		},
		Summary: func(values map[string]any) string {
			s := fmt.Sprintf("You're sending %s rupees to %v", amountText(values["amount"]), values["upiId"])
			if note, ok := values["note"].(string); ok && note != "" {
				s += fmt.Sprintf(" with the note %q", note)
			}
			return s + "."
		},
		ConfirmBeforeSubmit: true,
		SuccessMessage:      "Done! Your money is on its way.",
	}
}

func AddPayeeForm() types.Form {
	return types.Form{
		ID:       AddPayeeID,
		Title:    "Add payee",
		Greeting: "Let's add a new payee.",
		Fields: []types.FieldDefinition{
			{
				Name:     "name",
				Label:    "Name",
				Prompt:   "What is the payee's full name?",
				Type:     types.FieldText,
				Required: true,
				Synonyms: []string{"full name", "person"},
				Validate: RequireText("name", 2),
			},
			{
				Name:     "upiId",
				Label:    "UPI ID",
				Prompt:   "What is their UPI ID?",
				Type:     types.FieldIdentifier,
				Required: true,
				Synonyms: []string{"upi", "id"},
				Validate: RequireIdentifier("UPI ID"),
			},
			{
				Name:     "nickname",
				Label:    "Nickname",
				Prompt:   "Any nickname for this payee? You can say skip.",
				Type:     types.FieldText,
				Required: false,
				Synonyms: []string{"short name", "alias"},
			},
		},
		Summary: func(values map[string]any) string {
			return fmt.Sprintf("Adding %v with UPI ID %v.", values["name"], values["upiId"])
		},
		SuccessMessage: "The payee has been added.",
	}
}

func UpdateAddressForm() types.Form {
	return types.Form{
		ID:       UpdateAddressID,
		Title:    "Update address",
		Greeting: "Let's update your address. You can say it, or say scan to photograph an address proof.",
		Fields: []types.FieldDefinition{
			{
				Name:         "address",
				Label:        "Address",
				Prompt:       "What is your new address?",
				Type:         types.FieldText,
				Required:     true,
				Synonyms:     []string{"street", "house", "residence"},
				Documents:    []string{"address_proof"},
				DocumentKeys: []string{"addressLine1", "addressLine2", "city", "state", "pincode"},
				Validate:     RequireText("address", 10),
			},
			{
				Name:     "pincode",
				Label:    "PIN code",
				Prompt:   "And the six digit PIN code?",
				Type:     types.FieldNumber,
				Required: true,
				Synonyms: []string{"pin", "postal code", "zip"},
				Validate: func(value any, _ types.FormSnapshot) types.ValidationResult {
					v, _ := value.(float64)
					if v < 100000 || v > 999999 || v != float64(int64(v)) {
						return types.Invalid("A PIN code has exactly six digits")
					}
					return types.Valid()
				},
			},
		},
		Summary: func(values map[string]any) string {
			return fmt.Sprintf("Your new address is %v, PIN code %s.", values["address"], amountText(values["pincode"]))
		},
		ConfirmBeforeSubmit: true,
		SuccessMessage:      "Your address update request has been submitted.",
	}
}

func amountText(v any) string {
	if f, ok := v.(float64); ok {
		return FormatAmount(f)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}
