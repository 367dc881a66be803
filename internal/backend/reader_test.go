// ABOUTME: Tests for bounded line splitting of the child's stdout
// ABOUTME: Oversized lines are skipped whole and the following lines still arrive

package backend

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLineReader_SkipsOversizedLines(t *testing.T) {
	t.Parallel()

	input := "short\r\n" +
		strings.Repeat("a", 30) + "\n" + // spans two reader buffers
		strings.Repeat("b", 40) + "\n" + // exactly at the limit
		strings.Repeat("x", 100) + "\n" +
		"after\n" +
		"tail"
	lr := &lineReader{br: bufio.NewReaderSize(strings.NewReader(input), 16), limit: 40}

	tests := []struct {
		line    string
		dropped int
		eof     bool
	}{
		{line: "short"},
		{line: strings.Repeat("a", 30)},
		{line: strings.Repeat("b", 40)},
		{dropped: 101},
		{line: "after"},
		{line: "tail", eof: true},
	}
	for i, tt := range tests {
		line, dropped, err := lr.next()
		if string(line) != tt.line || dropped != tt.dropped {
			t.Errorf("line %d = (%q, %d); want (%q, %d)", i, line, dropped, tt.line, tt.dropped)
		}
		if gotEOF := errors.Is(err, io.EOF); gotEOF != tt.eof || (err != nil && !gotEOF) {
			t.Errorf("line %d err = %v; want eof=%v", i, err, tt.eof)
		}
	}
}

func TestLineReader_OversizedLineAtEOF(t *testing.T) {
	t.Parallel()

	lr := &lineReader{br: bufio.NewReaderSize(strings.NewReader(strings.Repeat("x", 50)), 16), limit: 10}
	line, dropped, err := lr.next()
	if line != nil || dropped != 50 || !errors.Is(err, io.EOF) {
		t.Errorf("next() = (%q, %d, %v); want (nil, 50, EOF)", line, dropped, err)
	}
}
