// Package protocol parses the broker's line-oriented request grammar and
// encodes its fixed set of response tokens. It mirrors Hermes's
// protocol.ParseLine / protocol.Command split between parsing and
// dispatch, generalized from GET/SET/EXPIRE to PING/PUB/FETCH.
package protocol

import (
	"strconv"
	"strings"
)

// CommandKind discriminates the parsed command variants — the Go
// analogue of the tagged Command enum in original_source/src/protocol.rs
// (spec.md §9: dispatch by tag, no vtable).
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandPing
	CommandPub
	CommandFetch
)

// defaultTopic is the topic ECHO sugars to (SPEC_FULL.md §5).
const defaultTopic = "_default"

// Command is a parsed request line. Only the fields relevant to Kind are
// populated.
type Command struct {
	Kind    CommandKind
	Topic   string
	Payload string
	Offset  uint64
	Limit   int
	Raw     string // original line, for logging unknown commands
}

// Parse interprets one line (already stripped of its trailing newline).
// It never returns an error: anything that doesn't match a known
// grammar becomes CommandUnknown, which the caller replies to with NACK.
func Parse(line string) Command {
	switch {
	case line == "PING":
		return Command{Kind: CommandPing}

	case strings.HasPrefix(line, "PUB "):
		return parsePub(strings.TrimPrefix(line, "PUB "))

	case strings.HasPrefix(line, "ECHO "):
		// ECHO <payload> is sugar for PUB _default <payload>.
		return Command{Kind: CommandPub, Topic: defaultTopic, Payload: strings.TrimPrefix(line, "ECHO ")}

	case strings.HasPrefix(line, "FETCH "):
		return parseFetch(strings.TrimPrefix(line, "FETCH "))

	default:
		return Command{Kind: CommandUnknown, Raw: line}
	}
}

// parsePub splits "<topic> <payload...>" on the first whitespace byte
// (space or tab); everything after it — including further whitespace —
// is the payload verbatim.
func parsePub(rest string) Command {
	idx := strings.IndexAny(rest, " \t")
	var topic, payload string
	if idx == -1 {
		topic, payload = rest, ""
	} else {
		topic, payload = rest[:idx], rest[idx+1:]
	}

	if topic == "" {
		return Command{Kind: CommandUnknown, Raw: "PUB " + rest}
	}
	return Command{Kind: CommandPub, Topic: topic, Payload: payload}
}

// parseFetch expects exactly "<topic> <offset> <limit>".
func parseFetch(rest string) Command {
	fields := strings.Fields(rest)
	if len(fields) != 3 {
		return Command{Kind: CommandUnknown, Raw: "FETCH " + rest}
	}

	topic := fields[0]
	offset, errOffset := strconv.ParseUint(fields[1], 10, 64)
	limit, errLimit := strconv.Atoi(fields[2])

	if topic == "" || errOffset != nil || errLimit != nil || limit < 0 {
		return Command{Kind: CommandUnknown, Raw: "FETCH " + rest}
	}
	return Command{Kind: CommandFetch, Topic: topic, Offset: offset, Limit: limit}
}

// ResponseKind is the fixed set of wire tokens spec.md §6 defines.
type ResponseKind int

const (
	ResponseAck ResponseKind = iota
	ResponseNack
	ResponseOK
	ResponseErrWAL
	ResponseErrBusy
	ResponseErrTimeout
	ResponseErrTooLarge
)

var responseBytes = map[ResponseKind][]byte{
	ResponseAck:         []byte("ACK\n"),
	ResponseNack:        []byte("NACK\n"),
	ResponseOK:          []byte("OK\n"),
	ResponseErrWAL:      []byte("ERR WAL\n"),
	ResponseErrBusy:     []byte("ERR BUSY\n"),
	ResponseErrTimeout:  []byte("ERR TIMEOUT\n"),
	ResponseErrTooLarge: []byte("ERR TOO_LARGE\n"),
}

// Bytes renders a response token exactly as the wire protocol expects
// it.
func (k ResponseKind) Bytes() []byte {
	return responseBytes[k]
}

// FetchRecordLine formats one FETCH result line:
// "<offset>\t<id>\t<payload>\n", payload decoded text (not base64).
func FetchRecordLine(offset, id uint64, payload string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(offset, 10))
	b.WriteByte('\t')
	b.WriteString(strconv.FormatUint(id, 10))
	b.WriteByte('\t')
	b.WriteString(payload)
	b.WriteByte('\n')
	return b.String()
}
