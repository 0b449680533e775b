// Package transport abstracts the byte channel between the client and the
// agent process: either the process's stdio pipes or a TCP connection to an
// already-running server.
package transport

import (
	"context"
	"io"
	"net"
	"sync"
)

// Transport is a bidirectional byte channel. Close is idempotent and unblocks
// a concurrent Read.
type Transport interface {
	io.ReadWriteCloser
}

// Pipe joins a child process's stdin and stdout pipes into a single Transport.
// Reads come from stdout, writes go to stdin. Close closes both ends.
func Pipe(stdin io.WriteCloser, stdout io.ReadCloser) Transport {
	return &pipeTransport{stdin: stdin, stdout: stdout}
}

type pipeTransport struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser

	closeOnce sync.Once
	closeErr  error
}

func (p *pipeTransport) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *pipeTransport) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

func (p *pipeTransport) Close() error {
	p.closeOnce.Do(func() {
		werr := p.stdin.Close()
		rerr := p.stdout.Close()
		if werr != nil {
			p.closeErr = werr
		} else {
			p.closeErr = rerr
		}
	})
	return p.closeErr
}

// DialTCP connects to a server at addr (host:port). The context bounds the
// dial only; the returned Transport is the live connection.
func DialTCP(ctx context.Context, addr string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
