package extract

import (
	"regexp"
	"strings"
)

var (
	identifierShape    = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*@[a-z][a-z0-9.-]*[a-z0-9]$`)
	embeddedIdentifier = regexp.MustCompile(`[a-z0-9][a-z0-9._-]*@[a-z][a-z0-9.-]*[a-z0-9]`)
)

var spokenSymbols = map[string]string{
	"dot":        ".",
	"underscore": "_",
	"dash":       "-",
	"hyphen":     "-",
}

// Identifier turns a spoken UPI-style id ("arvind at paytm") into its
// canonical form. Only the words joined to the last "at" are used, so
// surrounding speech ("send 500 to ...") is ignored. "at the rate" is read
// as "@". ok is false when no local@domain shape can be found.
func Identifier(text string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return "", false
	}
	if m := embeddedIdentifier.FindString(lower); m != "" {
		return m, true
	}
	var toks []string
	for _, tok := range strings.Fields(lower) {
		if tok = strings.Trim(tok, ",!?\"'"); tok != "" {
			toks = append(toks, tok)
		}
	}
	at := -1
	for i, tok := range toks {
		if tok == "at" {
			at = i
		}
	}
	if at <= 0 {
		return "", false
	}
	local := joinBackward(toks[:at])
	rest := toks[at+1:]
	if len(rest) >= 2 && rest[0] == "the" && rest[1] == "rate" {
		rest = rest[2:]
		if len(rest) > 0 && rest[0] == "of" {
			rest = rest[1:]
		}
	}
	domain := joinForward(rest)
	candidate := strings.TrimRight(local+"@"+domain, ".")
	if identifierShape.MatchString(candidate) {
		return candidate, true
	}
	return "", false
}

// joinBackward rebuilds the local part from the words right before "at":
// the last word plus any words chained to it by spoken symbols.
func joinBackward(toks []string) string {
	i := len(toks) - 1
	part := toks[i]
	for i >= 2 {
		sym, ok := spokenSymbols[toks[i-1]]
		if !ok {
			break
		}
		part = toks[i-2] + sym + part
		i -= 2
	}
	return part
}

// joinForward rebuilds the domain from the words right after "at".
func joinForward(toks []string) string {
	if len(toks) == 0 {
		return ""
	}
	part := toks[0]
	for i := 1; i+1 < len(toks); i += 2 {
		sym, ok := spokenSymbols[toks[i]]
		if !ok {
			break
		}
		part += sym + toks[i+1]
	}
	return part
}

// IsIdentifier reports whether s already has the local@domain shape.
func IsIdentifier(s string) bool {
	return identifierShape.MatchString(strings.ToLower(strings.TrimSpace(s)))
}
