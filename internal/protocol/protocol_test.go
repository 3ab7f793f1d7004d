package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "spawn Boar 5", "spawn Boar 5"},
		{"newline removed", "spawn\nBoar", "spawnBoar"},
		{"crlf and tab removed", "god\r\n\tmode", "godmode"},
		{"bell and escape removed", "a\x07b\x1bc", "abc"},
		{"unicode kept", "say Skål", "say Skål"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestTrimLine(t *testing.T) {
	assert.Equal(t, "PONG", TrimLine("PONG\n"))
	assert.Equal(t, "PONG", TrimLine("PONG\r\n"))
	assert.Equal(t, ReadySentinel, TrimLine("\uFEFF"+ReadySentinel+"\n"))
}

func TestFormatCommand(t *testing.T) {
	assert.Equal(t, "CMD:spawn Boar 5", FormatCommand("spawn Boar 5"))
	assert.Equal(t, "CMD:spawn Boar 5", FormatCommand("spawn Boar\n 5"))

	text, ok := ParseCommand("CMD:pos")
	require.True(t, ok)
	assert.Equal(t, "pos", text)

	_, ok = ParseCommand("PING")
	assert.False(t, ok)
}

func TestStateLines(t *testing.T) {
	assert.Equal(t, "STATE:InWorld", FormatState("InWorld"))
	name, ok := ParseState("STATE:MainMenu")
	require.True(t, ok)
	assert.Equal(t, "MainMenu", name)

	assert.Equal(t, "STATE_CHANGED:Loading", FormatStateChanged("Loading"))
	name, ok = ParseStateChanged("STATE_CHANGED:Loading")
	require.True(t, ok)
	assert.Equal(t, "Loading", name)

	// A STATE reply is not a push notification and vice versa.
	_, ok = ParseStateChanged("STATE:Loading")
	assert.False(t, ok)
	_, ok = ParseState("STATE_CHANGED:Loading")
	assert.False(t, ok)
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		kind      BlockKind
		wantCount int
		wantOK    bool
	}{
		{"output header", "OUTPUT:3", KindOutput, 3, true},
		{"zero lines", "OUTPUT:0", KindOutput, 0, true},
		{"commands header", "COMMANDS:12", KindCommands, 12, true},
		{"wrong kind", "COMMANDS:1", KindOutput, 0, false},
		{"count not a number", "OUTPUT:x", KindOutput, 0, false},
		{"negative count", "OUTPUT:-1", KindOutput, 0, false},
		{"not a header", "PONG", KindOutput, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, ok := ParseHeader(tt.line, tt.kind)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCount, count)
		})
	}

	assert.True(t, IsHeader("OUTPUT:x", KindOutput))
}

func TestFormatBlock(t *testing.T) {
	got := FormatBlock(KindOutput, []string{"Spawning Boar", "multi\nline"})
	assert.Equal(t, "OUTPUT:2\nSpawning Boar\nmultiline\nEND_OUTPUT\n", got)

	assert.Equal(t, "COMMANDS:0\nEND_COMMANDS\n", FormatBlock(KindCommands, nil))
}

func TestWriteBlock(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBlock(&buf, KindOutput, []string{"ok"}))
	require.NoError(t, WriteLine(&buf, "PONG"))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{"OUTPUT:1", "ok", "END_OUTPUT", "PONG"}, lines)
}

func TestCommandInfo(t *testing.T) {
	tests := []struct {
		name string
		line string
		want CommandInfo
	}{
		{"regular command", "help|Shows help|", CommandInfo{Name: "help", Description: "Shows help"}},
		{"cheat command", "god|Toggle god mode|cheat", CommandInfo{Name: "god", Description: "Toggle god mode", IsCheat: true}},
		{"name only", "pos", CommandInfo{Name: "pos"}},
		{"no cheat field", "pos|Print position", CommandInfo{Name: "pos", Description: "Print position"}},
		{"pipe in description", "raw|a|b|cheat", CommandInfo{Name: "raw", Description: "a|b", IsCheat: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommandInfo(tt.line))
		})
	}

	info := CommandInfo{Name: "god", Description: "Toggle god mode", IsCheat: true}
	assert.Equal(t, "god|Toggle god mode|cheat", info.Encode())
	assert.Equal(t, "help|Shows help|", CommandInfo{Name: "help", Description: "Shows help"}.Encode())
}
