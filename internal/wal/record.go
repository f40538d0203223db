package wal

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// ErrTorn indicates a record line that does not parse: wrong field count,
// a non-decimal offset/id, or invalid base64 payload. A torn record at the
// tail of the active segment is recovered from by truncation; a torn
// record inside a rotated segment is fatal corruption.
var ErrTorn = errors.New("wal: torn record")

// Record is a single durable WAL entry, decoded for external consumption.
type Record struct {
	Offset  uint64
	ID      uint64
	Payload string
}

// encodeRecord renders offset/id/payload as one tab-separated, newline
// terminated line. The payload is base64-encoded (standard, padded) so
// arbitrary bytes — including embedded newlines and tabs — survive the
// line-oriented framing.
func encodeRecord(offset, id uint64, payload string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(offset, 10))
	b.WriteByte('\t')
	b.WriteString(strconv.FormatUint(id, 10))
	b.WriteByte('\t')
	b.WriteString(base64.StdEncoding.EncodeToString([]byte(payload)))
	b.WriteByte('\n')
	return b.String()
}

// rawRecord is a successfully parsed line with its payload still base64.
type rawRecord struct {
	offset  uint64
	id      uint64
	payload string // base64
}

// parseRecord validates a single line (without its trailing newline):
// exactly three tab-separated fields, decimal offset and id, and a
// syntactically valid base64 payload. It does not decode the payload or
// verify it is valid UTF-8 — callers needing the decoded text call
// decodePayload separately (see Record semantics in spec.md §4.1).
func parseRecord(line string) (rawRecord, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != 3 {
		return rawRecord{}, ErrTorn
	}

	offset, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return rawRecord{}, ErrTorn
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return rawRecord{}, ErrTorn
	}
	if _, err := base64.StdEncoding.DecodeString(parts[2]); err != nil {
		return rawRecord{}, ErrTorn
	}

	return rawRecord{offset: offset, id: id, payload: parts[2]}, nil
}
