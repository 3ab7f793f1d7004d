package protocol

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// Line vocabulary shared by the relay server and client.
const (
	ReadySentinel = "VALHEIM_CLI_READY"

	Ping = "PING"
	Pong = "PONG"

	ListCommands = "LIST_COMMANDS"

	StateQuery  = "STATE"
	StatePrefix = "STATE:"

	SubscribeState   = "SUBSCRIBE_STATE"
	Subscribed       = "SUBSCRIBED"
	UnsubscribeState = "UNSUBSCRIBE_STATE"
	Unsubscribed     = "UNSUBSCRIBED"

	CommandPrefix = "CMD:"

	StateChangedPrefix = "STATE_CHANGED:"

	// CheatMarker is the third field of a command-list entry for cheat commands.
	CheatMarker = "cheat"

	// LineTerminator ends every line on the wire.
	LineTerminator = "\n"

	byteOrderMark = "\uFEFF"
)

// BlockKind names a framed multi-line block.
type BlockKind string

const (
	KindOutput   BlockKind = "OUTPUT"
	KindCommands BlockKind = "COMMANDS"
)

// Sanitize removes control characters, including CR and LF, so the text can
// travel as a single protocol line.
func Sanitize(text string) string {
	if strings.IndexFunc(text, unicode.IsControl) < 0 {
		return text
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}

// TrimLine strips the line terminator (LF or CRLF) and a leading byte-order mark.
func TrimLine(raw string) string {
	line := strings.TrimRight(raw, "\r\n")
	return strings.TrimPrefix(line, byteOrderMark)
}

// FormatCommand builds a CMD line for the given command text.
func FormatCommand(text string) string {
	return CommandPrefix + Sanitize(text)
}

// ParseCommand extracts the command text from a CMD line.
func ParseCommand(line string) (string, bool) {
	if !strings.HasPrefix(line, CommandPrefix) {
		return "", false
	}
	return strings.TrimPrefix(line, CommandPrefix), true
}

// FormatState builds the reply to a STATE query.
func FormatState(name string) string {
	return StatePrefix + Sanitize(name)
}

// ParseState extracts the state name from a STATE reply.
func ParseState(line string) (string, bool) {
	if !strings.HasPrefix(line, StatePrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, StatePrefix)), true
}

// FormatStateChanged builds an unsolicited state-change notification.
func FormatStateChanged(name string) string {
	return StateChangedPrefix + Sanitize(name)
}

// ParseStateChanged extracts the state name from a push notification.
func ParseStateChanged(line string) (string, bool) {
	if !IsStateChanged(line) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, StateChangedPrefix)), true
}

// IsStateChanged reports whether line is an out-of-band state notification.
func IsStateChanged(line string) bool {
	return strings.HasPrefix(line, StateChangedPrefix)
}

// FormatHeader returns the opening line of a framed block, e.g. "OUTPUT:3".
func FormatHeader(kind BlockKind, count int) string {
	return string(kind) + ":" + strconv.Itoa(count)
}

// IsHeader reports whether line opens a block of the given kind, regardless of
// whether its count parses.
func IsHeader(line string, kind BlockKind) bool {
	return strings.HasPrefix(line, string(kind)+":")
}

// ParseHeader returns the payload count announced by a block header. ok is
// false when line is not a header of this kind or the count is not a
// non-negative integer.
func ParseHeader(line string, kind BlockKind) (count int, ok bool) {
	if !IsHeader(line, kind) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[len(kind)+1:]))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Footer returns the sentinel line that closes a block, e.g. "END_OUTPUT".
func Footer(kind BlockKind) string {
	return "END_" + string(kind)
}

// FormatBlock renders a complete framed block including terminators. Payload
// lines are sanitized so an embedded newline can never break the frame.
func FormatBlock(kind BlockKind, lines []string) string {
	var b strings.Builder
	b.WriteString(FormatHeader(kind, len(lines)))
	b.WriteString(LineTerminator)
	for _, line := range lines {
		b.WriteString(Sanitize(line))
		b.WriteString(LineTerminator)
	}
	b.WriteString(Footer(kind))
	b.WriteString(LineTerminator)
	return b.String()
}

// WriteLine writes a single sanitized line.
func WriteLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, Sanitize(line)+LineTerminator)
	return err
}

// WriteBlock writes a framed block with a single Write call.
func WriteBlock(w io.Writer, kind BlockKind, lines []string) error {
	_, err := io.WriteString(w, FormatBlock(kind, lines))
	return err
}

// CommandInfo describes one entry of the host's console command table.
type CommandInfo struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	IsCheat     bool   `json:"cheat" yaml:"cheat"`
}

// Encode renders the entry as "name|description|cheat" (the last field is
// empty for regular commands).
func (c CommandInfo) Encode() string {
	cheat := ""
	if c.IsCheat {
		cheat = CheatMarker
	}
	return fmt.Sprintf("%s|%s|%s", c.Name, c.Description, cheat)
}

// ParseCommandInfo decodes a command-list entry. Missing fields are left
// empty; a description containing '|' is preserved.
func ParseCommandInfo(line string) CommandInfo {
	fields := strings.Split(line, "|")
	info := CommandInfo{Name: strings.TrimSpace(fields[0])}
	switch {
	case len(fields) == 2:
		info.Description = fields[1]
	case len(fields) >= 3:
		last := fields[len(fields)-1]
		info.IsCheat = strings.EqualFold(strings.TrimSpace(last), CheatMarker)
		info.Description = strings.Join(fields[1:len(fields)-1], "|")
	}
	return info
}
