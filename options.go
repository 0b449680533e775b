package copilot

import (
	"log/slog"
	"time"
)

// Defaults applied by resolveOptions.
const (
	defaultCLIPath          = "copilot"
	defaultLogLevel         = "info"
	defaultRequestTimeout   = 30 * time.Second
	defaultHandshakeTimeout = 30 * time.Second
	defaultGracePeriod      = 5 * time.Second
	defaultEventBuffer      = 1024
)

// clientOptions holds resolved configuration for a Client.
type clientOptions struct {
	cliPath string
	cliArgs []string
	cliURL  string
	port    int
	useTCP  bool
	dir     string
	env     map[string]string

	logLevel         string
	autoStart        bool
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	gracePeriod      time.Duration
	eventBuffer      int
	maxMessageSize   int
	logger           *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

// resolveOptions applies functional options over the defaults.
func resolveOptions(opts ...ClientOption) clientOptions {
	o := clientOptions{
		cliPath:          defaultCLIPath,
		logLevel:         defaultLogLevel,
		autoStart:        true,
		requestTimeout:   defaultRequestTimeout,
		handshakeTimeout: defaultHandshakeTimeout,
		gracePeriod:      defaultGracePeriod,
		eventBuffer:      defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.requestTimeout <= 0 {
		o.requestTimeout = defaultRequestTimeout
	}
	if o.handshakeTimeout <= 0 {
		o.handshakeTimeout = defaultHandshakeTimeout
	}
	if o.gracePeriod <= 0 {
		o.gracePeriod = defaultGracePeriod
	}
	if o.eventBuffer <= 0 {
		o.eventBuffer = defaultEventBuffer
	}
	return o
}

// WithCLIPath sets the agent CLI executable or Node.js entry script.
func WithCLIPath(path string) ClientOption {
	return func(o *clientOptions) { o.cliPath = path }
}

// WithCLIArgs prepends extra arguments to the CLI invocation.
func WithCLIArgs(args ...string) ClientOption {
	return func(o *clientOptions) { o.cliArgs = args }
}

// WithCLIURL connects to an agent server that is already running at addr
// (host:port) instead of spawning one.
func WithCLIURL(addr string) ClientOption {
	return func(o *clientOptions) { o.cliURL = addr }
}

// WithPort spawns the CLI in TCP server mode on port instead of stdio.
// Port 0 lets the CLI pick a free port, announced on its stdout.
func WithPort(port int) ClientOption {
	return func(o *clientOptions) {
		o.port = port
		o.useTCP = true
	}
}

// WithDir sets the CLI's working directory.
func WithDir(dir string) ClientOption {
	return func(o *clientOptions) { o.dir = dir }
}

// WithEnv overlays environment variables on the CLI process.
func WithEnv(env map[string]string) ClientOption {
	return func(o *clientOptions) { o.env = env }
}

// WithLogLevel sets the CLI's log level (passed as --log-level).
func WithLogLevel(level string) ClientOption {
	return func(o *clientOptions) { o.logLevel = level }
}

// WithAutoStart controls whether client operations start the agent on demand
// when it is not running. Enabled by default.
func WithAutoStart(enabled bool) ClientOption {
	return func(o *clientOptions) { o.autoStart = enabled }
}

// WithRequestTimeout bounds each request to the agent when the caller's
// context has no deadline of its own.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.requestTimeout = d }
}

// WithHandshakeTimeout bounds the startup handshake (spawn, connect, ping).
func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.handshakeTimeout = d }
}

// WithGracePeriod sets how long Stop waits after asking the CLI to exit
// before killing it.
func WithGracePeriod(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.gracePeriod = d }
}

// WithEventBuffer sets the session event queue capacity between the
// connection reader and subscriber dispatch.
func WithEventBuffer(n int) ClientOption {
	return func(o *clientOptions) { o.eventBuffer = n }
}

// WithMaxMessageSize bounds a single protocol message.
func WithMaxMessageSize(n int) ClientOption {
	return func(o *clientOptions) { o.maxMessageSize = n }
}

// WithLogger sets the structured logger for client internals. The default
// discards all records.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}
