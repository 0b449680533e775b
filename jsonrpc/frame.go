package jsonrpc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// defaultMaxMessageSize bounds a single framed message body (4 MiB).
// Large tool results and attachments fit comfortably; a corrupt length
// header cannot force an unbounded allocation.
const defaultMaxMessageSize = 4 * 1024 * 1024

// Framer reads and writes messages delimited by LSP-style headers:
//
//	Content-Length: <n>\r\n
//	\r\n
//	<n bytes of body>
//
// Header names are case-insensitive; unknown headers are ignored.
// Reads are single-goroutine (the connection read loop); writes are
// serialized internally so concurrent writers cannot interleave frames.
type Framer struct {
	r       *bufio.Reader
	writeMu sync.Mutex
	w       io.Writer
	maxSize int
}

// NewFramer wraps rw with Content-Length framing. maxSize bounds the body
// of a single message; <= 0 selects the default.
func NewFramer(rw io.ReadWriter, maxSize int) *Framer {
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	return &Framer{
		r:       bufio.NewReader(rw),
		w:       rw,
		maxSize: maxSize,
	}
}

// ReadMessage reads the next framed message body. It returns io.EOF when the
// stream ends cleanly between messages, and an ErrProtocol-wrapped error when
// the header block is malformed or the stream ends mid-message.
func (f *Framer) ReadMessage() ([]byte, error) {
	length := -1
	for {
		line, err := f.readHeaderLine()
		if err != nil {
			if err == io.EOF && length < 0 {
				return nil, io.EOF
			}
			return nil, err
		}
		if line == "" {
			break // end of header block
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: malformed header line %q", ErrProtocol, line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: invalid Content-Length %q", ErrProtocol, strings.TrimSpace(value))
			}
			length = n
		}
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: missing Content-Length header", ErrProtocol)
	}
	if length > f.maxSize {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds limit %d", ErrProtocol, length, f.maxSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(f.r, body); err != nil {
		return nil, fmt.Errorf("%w: truncated message body: %v", ErrProtocol, err)
	}
	return body, nil
}

// readHeaderLine reads one CRLF-terminated header line, without the terminator.
// A bare LF terminator is tolerated.
func (f *Framer) readHeaderLine() (string, error) {
	line, err := f.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return "", io.EOF
		}
		if err == io.EOF {
			return "", fmt.Errorf("%w: truncated header", ErrProtocol)
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteMessage frames body with a Content-Length header and writes it as a
// single Write call. Safe for concurrent use.
func (f *Framer) WriteMessage(body []byte) error {
	buf := make([]byte, 0, len(body)+32)
	buf = fmt.Appendf(buf, "Content-Length: %d\r\n\r\n", len(body))
	buf = append(buf, body...)

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_, err := f.w.Write(buf)
	return err
}
