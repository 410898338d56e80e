package chatlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		withMS  bool
		want    string
	}{
		{0, false, "00:00:00"},
		{5.123, true, "00:00:05.123"},
		{3723, false, "01:02:03"},
		{3723.4567, true, "01:02:03.457"},
		{59.9996, true, "00:01:00.000"}, // millisecond carry
		{36000, false, "10:00:00"},
	}
	for _, c := range cases {
		if got := Timestamp(c.seconds, c.withMS); got != c.want {
			t.Errorf("Timestamp(%v, %v) = %q, want %q", c.seconds, c.withMS, got, c.want)
		}
	}
}

func TestFormatLine(t *testing.T) {
	got := FormatLine(65.5, "alice", "hello there")
	want := "[00:01:05.500] alice: hello there"
	if got != want {
		t.Errorf("FormatLine = %q, want %q", got, want)
	}
}

func TestScanLines(t *testing.T) {
	r := strings.NewReader("one\ntwo\nthree\n")
	var lines []string
	for line, err := range ScanLines(r) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 3 || lines[0] != "one" || lines[2] != "three" {
		t.Errorf("lines = %v", lines)
	}
}

func TestScanLinesEarlyStop(t *testing.T) {
	r := strings.NewReader("one\ntwo\nthree\n")
	n := 0
	for range ScanLines(r) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("consumed %d lines, want 2", n)
	}
}

func TestFileLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	content := FormatLine(1, "alice", "hi") + "\n" + FormatLine(2.5, "bob", "yo") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	var lines []string
	for line, err := range FileLines(path) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 || lines[1] != "[00:00:02.500] bob: yo" {
		t.Errorf("lines = %v", lines)
	}
}

func TestFileLinesMissingFile(t *testing.T) {
	sawErr := false
	for _, err := range FileLines(filepath.Join(t.TempDir(), "nope.log")) {
		if err != nil {
			sawErr = true
		}
	}
	if !sawErr {
		t.Error("expected an error for a missing file")
	}
}
