package testing

import (
	"regexp"
	"strings"

	"valheimcli/pkg/logging"
)

// ExpectationKind selects how an expectation is compared with output.
type ExpectationKind int

const (
	// ExpectSubstring requires the whole rule text to appear in the output
	ExpectSubstring ExpectationKind = iota
	// ExpectContains requires the quoted text to appear in the output
	ExpectContains
	// ExpectMatches requires the quoted regular expression to match
	ExpectMatches
)

// Expectation is a parsed output rule.
type Expectation struct {
	Kind    ExpectationKind
	Pattern string
}

// ParseExpectation parses `contains "text"`, `matches "regexp"` or a bare
// substring.
func ParseExpectation(rule string) Expectation {
	trimmed := strings.TrimSpace(rule)
	for _, prefix := range []struct {
		word string
		kind ExpectationKind
	}{
		{"contains ", ExpectContains},
		{"matches ", ExpectMatches},
	} {
		if len(trimmed) > len(prefix.word) && strings.EqualFold(trimmed[:len(prefix.word)], prefix.word) {
			return Expectation{Kind: prefix.kind, Pattern: unquote(strings.TrimSpace(trimmed[len(prefix.word):]))}
		}
	}
	return Expectation{Kind: ExpectSubstring, Pattern: rule}
}

// Matches reports whether output satisfies the expectation. All comparisons
// are case-insensitive; regular expressions use multi-line anchors.
func (e Expectation) Matches(output string) bool {
	switch e.Kind {
	case ExpectMatches:
		re, err := regexp.Compile("(?im)" + e.Pattern)
		if err != nil {
			logging.Warn("TestRunner", "Invalid expectation pattern %q: %v", e.Pattern, err)
			return false
		}
		return re.MatchString(output)
	default:
		return strings.Contains(strings.ToLower(output), strings.ToLower(e.Pattern))
	}
}

// unquote strips one pair of surrounding double quotes and nothing else, so
// regexp escapes survive.
func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
