package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// digitPattern accepts western (1,000,000) and Indian (1,00,000) grouping
// plus an optional decimal part.
var digitPattern = regexp.MustCompile(`\d{1,3}(?:,\d{2,3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

var smallNumbers = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var magnitudes = map[string]float64{
	"thousand": 1_000,
	"lakh":     100_000,
	"lakhs":    100_000,
	"lac":      100_000,
	"lacs":     100_000,
	"million":  1_000_000,
	"crore":    10_000_000,
	"crores":   10_000_000,
}

// Number pulls a numeric amount out of a spoken phrase. Digits win over
// number words, but magnitude words after them still apply ("2 lakh").
// ok is false when the phrase has no numeric content; callers must
// re-prompt instead of treating that as zero.
func Number(text string) (value float64, ok bool) {
	lower := strings.ToLower(text)
	if loc := digitPattern.FindStringIndex(lower); loc != nil {
		if v, parsed := parseDigits(lower[loc[0]:loc[1]]); parsed {
			return scaleDigits(v, lower[loc[1]:]), true
		}
	}
	return numberFromWords(text)
}

func parseDigits(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return v, err == nil
}

// scaleDigits continues a digit amount v with the tokens in rest. Magnitude
// words scale the pending group and further digit groups are only taken
// after a magnitude, so "2 lakh 50 thousand" is 250000 but "2 5" stays 2.
func scaleDigits(v float64, rest string) float64 {
	var total float64
	current, pending := v, true
	lastMagnitude := 0.0
	for _, tok := range strings.Fields(rest) {
		tok = strings.Trim(tok, ",.!?;:\"")
		if tok == "hundred" {
			current *= 100
			continue
		}
		if m, ok := magnitudes[tok]; ok {
			if lastMagnitude != 0 && m >= lastMagnitude {
				total = (total + current) * m
			} else {
				total += current * m
			}
			current, pending, lastMagnitude = 0, false, m
			continue
		}
		if !pending && digitPattern.FindString(tok) == tok {
			if d, ok := parseDigits(tok); ok {
				current, pending = d, true
				continue
			}
		}
		break
	}
	return total + current
}

func numberFromWords(text string) (float64, bool) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r < 'a' || r > 'z'
	})
	var total, current float64
	found := false
	for _, w := range words {
		if v, ok := smallNumbers[w]; ok {
			current += v
			found = true
			continue
		}
		if w == "hundred" {
			if current == 0 {
				current = 1
			}
			current *= 100
			found = true
			continue
		}
		if m, ok := magnitudes[w]; ok {
			if current == 0 {
				current = 1
			}
			total += current * m
			current = 0
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return total + current, true
}
