// Package security masks credentials before they reach logs, terminals or
// HTTP responses.
package security

import (
	"regexp"
	"strings"
)

// secretPatterns match API keys of the supported providers and key=value
// style credentials. The first submatch, when present, is the value to mask.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:api[_-]?key|secret[_-]?key|access[_-]?token|auth[_-]?token|bearer|password)[=:\s]+["']?([^\s"',]+)`),
	regexp.MustCompile(`\b(gsk_[A-Za-z0-9]{20,})`), // Groq
	regexp.MustCompile(`\b(sk-[A-Za-z0-9_-]{20,})`), // OpenAI
}

// MaskCredential masks a credential value, keeping at most four characters
// at each end.
func MaskCredential(value string) string {
	switch n := len(value); {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return value[:2] + strings.Repeat("*", n-2)
	default:
		return value[:4] + strings.Repeat("*", n-8) + value[n-4:]
	}
}

// MaskSecrets masks every credential found in input.
func MaskSecrets(input string) string {
	for _, p := range secretPatterns {
		input = p.ReplaceAllStringFunc(input, func(match string) string {
			sub := p.FindStringSubmatchIndex(match)
			if len(sub) < 4 || sub[2] < 0 {
				return MaskCredential(match)
			}
			return match[:sub[2]] + MaskCredential(match[sub[2]:sub[3]]) + match[sub[3]:]
		})
	}
	return input
}

// ContainsSecret reports whether input holds anything MaskSecrets would mask.
func ContainsSecret(input string) bool {
	for _, p := range secretPatterns {
		if p.MatchString(input) {
			return true
		}
	}
	return false
}
