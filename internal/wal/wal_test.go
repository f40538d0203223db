package wal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesEmptyWAL(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	if w.NextOffset() != 0 {
		t.Fatalf("expected next offset 0, got %d", w.NextOffset())
	}
}

func TestAppendAssignsSequentialOffsets(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	for i, payload := range []string{"a", "b", "c"} {
		offset, err := w.Append(uint64(i+1), payload)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if offset != uint64(i) {
			t.Fatalf("expected offset %d, got %d", i, offset)
		}
	}
	if w.NextOffset() != 3 {
		t.Fatalf("expected next offset 3, got %d", w.NextOffset())
	}
}

func TestReadFromRoundTripsArbitraryPayloads(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	payloads := []string{
		"simple",
		"with\ttabs\tand\nnewlines",
		"unicode: 日本語 \U0001F600",
		"",
	}
	for i, p := range payloads {
		if _, err := w.Append(uint64(i), p); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records, err := w.ReadFrom(0, len(payloads))
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if len(records) != len(payloads) {
		t.Fatalf("expected %d records, got %d", len(payloads), len(records))
	}
	for i, rec := range records {
		if rec.Offset != uint64(i) {
			t.Fatalf("record %d: expected offset %d, got %d", i, i, rec.Offset)
		}
		if rec.Payload != payloads[i] {
			t.Fatalf("record %d: payload mismatch: got %q want %q", i, rec.Payload, payloads[i])
		}
	}
}

func TestReadFromRespectsFromAndLimit(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	for i := 0; i < 10; i++ {
		if _, err := w.Append(uint64(i), "x"); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records, err := w.ReadFrom(5, 3)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Offset != 5 || records[2].Offset != 7 {
		t.Fatalf("unexpected offset window: %+v", records)
	}

	records, err = w.ReadFrom(0, 0)
	if err != nil {
		t.Fatalf("ReadFrom limit 0 failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records for limit 0, got %d", len(records))
	}
}

func TestRecoveryAfterCleanClose(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := w.Append(uint64(i), "v"); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	w2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer w2.Close()

	if w2.NextOffset() != 5 {
		t.Fatalf("expected recovered next offset 5, got %d", w2.NextOffset())
	}
	records, err := w2.ReadFrom(0, 10)
	if err != nil {
		t.Fatalf("ReadFrom after recovery failed: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 recovered records, got %d", len(records))
	}
}

func TestRecoveryTruncatesTornActiveTail(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := w.Append(1, "good"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Simulate a crash mid-write: append a line with no trailing newline.
	activePath := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(activePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("reopen for corruption failed: %v", err)
	}
	if _, err := f.WriteString("1\t2\tYm9ndXM="); err != nil {
		t.Fatalf("write torn tail failed: %v", err)
	}
	f.Close()

	w2, err := Open(dir)
	if err != nil {
		t.Fatalf("Open should recover by truncation, got error: %v", err)
	}
	defer w2.Close()

	if w2.NextOffset() != 1 {
		t.Fatalf("expected next offset 1 after truncating torn tail, got %d", w2.NextOffset())
	}

	info, err := os.Stat(activePath)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	firstLine := encodeRecord(0, 1, "good")
	if info.Size() != int64(len(firstLine)) {
		t.Fatalf("expected active segment truncated to %d bytes, got %d", len(firstLine), info.Size())
	}
}

func TestRecoveryFailsOnCorruptRotatedSegment(t *testing.T) {
	dir := t.TempDir()

	// A rotated segment whose declared start offset doesn't match what
	// recovery expects (0) is fatal corruption, never auto-truncated.
	rotatedPath := filepath.Join(dir, "wal.5.log")
	if err := os.WriteFile(rotatedPath, []byte(encodeRecord(5, 1, "x")), 0o644); err != nil {
		t.Fatalf("write rotated segment failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "wal.log"), nil, 0o644); err != nil {
		t.Fatalf("write active segment failed: %v", err)
	}

	if _, err := Open(dir); err == nil {
		t.Fatal("expected corruption error, got nil")
	}
}

func TestRotateSealsSegmentAndContinuesOffsets(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	if _, err := w.Append(1, "a"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "wal.0.log")); err != nil {
		t.Fatalf("expected rotated segment file: %v", err)
	}

	offset, err := w.Append(2, "b")
	if err != nil {
		t.Fatalf("Append after rotate failed: %v", err)
	}
	if offset != 1 {
		t.Fatalf("expected offset 1 after rotation, got %d", offset)
	}

	records, err := w.ReadFrom(0, 10)
	if err != nil {
		t.Fatalf("ReadFrom across segments failed: %v", err)
	}
	if len(records) != 2 || records[0].Payload != "a" || records[1].Payload != "b" {
		t.Fatalf("unexpected cross-segment records: %+v", records)
	}
}

func TestReadFromMissingTopicDirSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	os.Remove(filepath.Join(dir, "wal.log"))
	records, err := w.ReadFrom(0, 10)
	if err != nil {
		t.Fatalf("ReadFrom with missing active segment should not error, got %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}
