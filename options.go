package codexlink

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	logger   zerolog.Logger
	handlers Handlers

	clientInfo ClientInfo
	model      string

	dialer       Dialer
	dialOpts     *DialOptions
	dialTimeout  time.Duration
	writeTimeout time.Duration

	reconnectBackoff Backoff
	retryBackoff     Backoff
	maxSendRetries   int

	usageMethods []string
}

func defaultConfig() clientConfig {
	return clientConfig{
		logger: zerolog.Nop(),
		clientInfo: ClientInfo{
			Name:       "codexlink",
			Title:      "CodexLink",
			InstanceID: uuid.New().String(),
		},
		dialer:       Dial,
		dialTimeout:  10 * time.Second,
		writeTimeout: 10 * time.Second,
		reconnectBackoff: Backoff{
			Base:   time.Second,
			Max:    30 * time.Second,
			Jitter: 0.2,
		},
		retryBackoff: Backoff{
			Base:   500 * time.Millisecond,
			Max:    10 * time.Second,
			Jitter: 0.2,
		},
		maxSendRetries: 3,
		usageMethods:   defaultUsageMethods,
	}
}

// WithLogger sets a structured logger for the client. The default
// logger discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithHandlers registers the caller's event callbacks.
func WithHandlers(h Handlers) Option {
	return func(c *clientConfig) {
		c.handlers = h
	}
}

// WithClientInfo sets the identity sent during the initialize
// handshake. An empty InstanceID keeps the generated one.
func WithClientInfo(info ClientInfo) Option {
	return func(c *clientConfig) {
		if info.InstanceID == "" {
			info.InstanceID = c.clientInfo.InstanceID
		}
		c.clientInfo = info
	}
}

// WithModel sets the model requested when starting new conversations.
// Empty means the server's default.
func WithModel(model string) Option {
	return func(c *clientConfig) {
		c.model = model
	}
}

// WithDialer replaces the transport dialer. Tests use this to connect
// the client to an in-memory transport.
func WithDialer(d Dialer) Option {
	return func(c *clientConfig) {
		c.dialer = d
	}
}

// WithDialOptions sets options for the WebSocket handshake.
func WithDialOptions(opts *DialOptions) Option {
	return func(c *clientConfig) {
		c.dialOpts = opts
	}
}

// WithDialTimeout bounds how long one connection attempt may take.
func WithDialTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.dialTimeout = d
	}
}

// WithWriteTimeout bounds how long one outgoing frame may take to
// write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.writeTimeout = d
	}
}

// WithReconnectBackoff sets the delay schedule for reconnect attempts.
func WithReconnectBackoff(b Backoff) Option {
	return func(c *clientConfig) {
		c.reconnectBackoff = b
	}
}

// WithRetryBackoff sets the delay schedule for queue-overflow retries.
func WithRetryBackoff(b Backoff) Option {
	return func(c *clientConfig) {
		c.retryBackoff = b
	}
}

// WithMaxSendRetries caps how often one request is retried after a
// queue overflow before the error is surfaced.
func WithMaxSendRetries(n int) Option {
	return func(c *clientConfig) {
		c.maxSendRetries = n
	}
}

// WithUsageMethods replaces the candidate method names tried by
// RequestUsageLimits, in probe order. Calling it with no names keeps
// the defaults.
func WithUsageMethods(methods ...string) Option {
	return func(c *clientConfig) {
		if len(methods) > 0 {
			c.usageMethods = methods
		}
	}
}
