package usecases

import (
	"strings"
	"unicode"

	"github.com/Koksbox/dream-interpreter/internal/entities"
)

type phoneRule struct {
	prefix  string
	rewrite func(digits string) string
}

// First matching prefix wins; the empty prefix is the catch-all.
var phoneRules = []phoneRule{
	{prefix: "+", rewrite: func(p string) string { return p }},
	{prefix: "8", rewrite: func(p string) string { return "+7" + p[1:] }},
	{prefix: "7", rewrite: func(p string) string { return "+" + p }},
	{prefix: "", rewrite: func(p string) string { return "+" + p }},
}

// NormalizePhone converts a raw phone into the canonical +<digits> form.
// Spaces, dashes, dots and parentheses are dropped first.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	digits := strings.TrimPrefix(cleaned, "+")
	if len(digits) < 5 || len(digits) > 15 {
		return "", entities.ErrInvalidPhone
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return "", entities.ErrInvalidPhone
		}
	}

	for _, rule := range phoneRules {
		if strings.HasPrefix(cleaned, rule.prefix) {
			return rule.rewrite(cleaned), nil
		}
	}
	return cleaned, nil
}
