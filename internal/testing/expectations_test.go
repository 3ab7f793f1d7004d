package testing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	vtesting "valheimcli/internal/testing"
)

func TestParseExpectation(t *testing.T) {
	tests := []struct {
		name    string
		rule    string
		kind    vtesting.ExpectationKind
		pattern string
	}{
		{"contains", `contains "Teleported"`, vtesting.ExpectContains, "Teleported"},
		{"contains upper-case keyword", `CONTAINS "x"`, vtesting.ExpectContains, "x"},
		{"matches keeps escapes", `matches "^OK\d+$"`, vtesting.ExpectMatches, `^OK\d+$`},
		{"unquoted pattern", `matches OK`, vtesting.ExpectMatches, "OK"},
		{"plain substring", "Spawning object", vtesting.ExpectSubstring, "Spawning object"},
		{"keyword alone", "contains", vtesting.ExpectSubstring, "contains"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := vtesting.ParseExpectation(tt.rule)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.pattern, e.Pattern)
		})
	}
}

func TestExpectation_Matches(t *testing.T) {
	tests := []struct {
		name   string
		rule   string
		output string
		want   bool
	}{
		{"contains case-insensitive", `contains "teleported"`, "Teleported to 10 20", true},
		{"contains missing", `contains "Teleported"`, "Unknown command: goto", false},
		{"matches line anchor", `matches "^OK\d+$"`, "first line\nok42\nlast", true},
		{"matches no digits", `matches "^OK\d+$"`, "OK", false},
		{"invalid pattern is a non-match", `matches "([a-z"`, "anything", false},
		{"whole rule substring", "god mode", "God Mode toggled", true},
		{"empty output", `contains "x"`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, vtesting.ParseExpectation(tt.rule).Matches(tt.output))
		})
	}
}
