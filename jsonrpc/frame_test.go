package jsonrpc

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// rwBuffer joins a read source and a write sink into one io.ReadWriter.
type rwBuffer struct {
	io.Reader
	io.Writer
}

func TestFramerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&rwBuffer{Reader: &buf, Writer: &buf}, 0)

	bodies := []string{
		`{"jsonrpc":"2.0","method":"ping"}`,
		`{}`,
		`{"big":"` + strings.Repeat("x", 8192) + `"}`,
	}
	for _, body := range bodies {
		if err := f.WriteMessage([]byte(body)); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}
	for i, want := range bodies {
		got, err := f.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage %d: %v", i, err)
		}
		if string(got) != want {
			t.Errorf("message %d = %q, want %q", i, got, want)
		}
	}
	if _, err := f.ReadMessage(); err != io.EOF {
		t.Errorf("after last message: err = %v, want io.EOF", err)
	}
}

func TestFramerReadHeaderVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercase header name",
			input: "content-length: 2\r\n\r\nok",
			want:  "ok",
		},
		{
			name:  "extra headers ignored",
			input: "Content-Type: application/json\r\nContent-Length: 2\r\n\r\nok",
			want:  "ok",
		},
		{
			name:  "bare LF terminators",
			input: "Content-Length: 2\n\nok",
			want:  "ok",
		},
		{
			name:  "no surrounding whitespace",
			input: "Content-Length:2\r\n\r\nok",
			want:  "ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(&rwBuffer{Reader: strings.NewReader(tt.input)}, 0)
			got, err := f.ReadMessage()
			if err != nil {
				t.Fatalf("ReadMessage: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFramerReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		maxSize int
	}{
		{name: "missing content-length", input: "Content-Type: json\r\n\r\n{}"},
		{name: "negative length", input: "Content-Length: -1\r\n\r\n"},
		{name: "non-numeric length", input: "Content-Length: abc\r\n\r\n"},
		{name: "header line without colon", input: "garbage\r\n\r\n"},
		{name: "truncated body", input: "Content-Length: 10\r\n\r\nshort"},
		{name: "truncated header", input: "Content-Len"},
		{name: "body over limit", input: "Content-Length: 100\r\n\r\n", maxSize: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(&rwBuffer{Reader: strings.NewReader(tt.input)}, tt.maxSize)
			_, err := f.ReadMessage()
			if !errors.Is(err, ErrProtocol) {
				t.Errorf("err = %v, want ErrProtocol", err)
			}
		})
	}
}

func TestFramerCleanEOF(t *testing.T) {
	f := NewFramer(&rwBuffer{Reader: strings.NewReader("")}, 0)
	if _, err := f.ReadMessage(); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestFramerWriteProducesHeader(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&rwBuffer{Reader: &buf, Writer: &buf}, 0)
	if err := f.WriteMessage([]byte("hello")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	want := "Content-Length: 5\r\n\r\nhello"
	if got := buf.String(); got != want {
		t.Errorf("wire bytes = %q, want %q", got, want)
	}
}
