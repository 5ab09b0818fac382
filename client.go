package codexlink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Client maintains a WebSocket session with a Codex agent server. It
// dials, performs the initialize handshake, keeps the connection alive
// across drops with backoff, and translates the server's event stream
// into the callbacks registered via WithHandlers.
// It is safe for concurrent use by multiple goroutines.
type Client struct {
	cfg clientConfig

	mu            sync.Mutex
	state         ConnState
	url           string
	transport     Transport
	autoReconnect bool
	attempt       int

	// gen fences goroutines and timers to one socket session. Every
	// teardown bumps it; a stale dial, read loop or timer sees the
	// mismatch and exits without touching current state.
	gen uint64

	hs      handshakeState
	corr    *correlator
	threads *threadMap
	timers  *scheduler
}

// New creates a disconnected client. Call Connect to open the session.
func New(opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		cfg:           cfg,
		state:         StateIdle,
		autoReconnect: true,
		corr:          newCorrelator(),
		threads:       newThreadMap(),
		timers:        newScheduler(),
	}
}

// State returns the current connection lifecycle state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens a session to the given ws:// or wss:// URL and starts
// the handshake. It returns once the dial is underway; readiness is
// reported through OnStatus. Connect is a no-op when a session is
// already open or opening. After a drop the client keeps reconnecting
// to the same URL until Disconnect is called.
func (c *Client) Connect(rawURL string) error {
	if err := validateURL(rawURL); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.url = rawURL
	c.autoReconnect = true
	c.attempt = 0
	c.timers.Cancel(timerReconnect)
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	c.emitStatus(StatusConnecting, "")
	c.debug(DebugState, "connecting", rawURL)
	go c.dial(gen, rawURL)
	return nil
}

// Disconnect closes the session and disables reconnection until the
// next Connect. Safe to call in any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.autoReconnect = false
	c.state = StateClosing
	tr := c.transport
	c.transport = nil
	c.teardownLocked()
	c.state = StateIdle
	c.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
	c.emitStatus(StatusDisconnected, "manual disconnect")
	c.debug(DebugState, "disconnected", "")
}

// ReconnectNow tears down any current session and dials immediately,
// skipping whatever backoff delay is pending. With an empty rawURL the
// last connected URL is reused.
func (c *Client) ReconnectNow(rawURL string) error {
	if rawURL != "" {
		if err := validateURL(rawURL); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if rawURL == "" {
		rawURL = c.url
	}
	if rawURL == "" {
		c.mu.Unlock()
		return ErrNoURL
	}
	tr := c.transport
	c.transport = nil
	c.teardownLocked()
	c.url = rawURL
	c.autoReconnect = true
	c.attempt = 0
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
	c.emitStatus(StatusConnecting, "manual reconnect")
	c.debug(DebugState, "reconnecting now", rawURL)
	go c.dial(gen, rawURL)
	return nil
}

// HydrateThreadMapping restores a conversation pairing persisted by the
// host, so the first turn after a restart resumes the server thread
// instead of starting a new one.
func (c *Client) HydrateThreadMapping(localID, remoteID string) {
	if localID == "" || remoteID == "" {
		return
	}
	c.mu.Lock()
	c.threads.Map(localID, remoteID)
	c.mu.Unlock()
	c.debug(DebugState, "thread mapping hydrated", localID+" -> "+remoteID)
}

// dial opens the transport for one session attempt and hands off to the
// handshake. It runs on its own goroutine.
func (c *Client) dial(gen uint64, rawURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.dialTimeout)
	tr, err := c.cfg.dialer(ctx, rawURL, c.cfg.dialOpts)
	cancel()

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		if tr != nil {
			tr.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.emitStatus(StatusError, "socket error")
		c.debug(DebugError, "dial failed", err.Error())
		c.socketClosed(gen, err)
		return
	}
	c.transport = tr
	c.state = StateHandshaking
	c.attempt = 0
	req := c.beginHandshakeLocked()
	c.mu.Unlock()

	c.emitStatus(StatusConnected, "")
	go c.readLoop(gen, tr)
	if req != nil {
		c.sendFrame(tr, req)
	}
}

// readLoop pumps frames off one socket until it dies. An undecodable
// frame is logged and skipped; a read error ends the session.
func (c *Client) readLoop(gen uint64, tr Transport) {
	for {
		f, err := tr.Receive(context.Background())
		if err != nil {
			var fe *FrameError
			if errors.As(err, &fe) {
				c.debug(DebugError, "undecodable frame", fe.Error())
				continue
			}
			c.socketClosed(gen, err)
			return
		}
		c.handleFrame(gen, f)
	}
}

// handleFrame routes one inbound frame. Dispatch decisions are made
// under the lock; callbacks and writes run after it is released.
func (c *Client) handleFrame(gen uint64, f *Frame) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	tr := c.transport
	var emits []func()
	if f.IsResponse() {
		emits = c.handleResponseLocked(tr, f)
	} else {
		emits = c.handleEventLocked(f)
	}
	c.mu.Unlock()

	name := f.Method
	if name == "" {
		name = "response"
	}
	c.debug(DebugRecv, name, frameSummary(f))
	for _, fn := range emits {
		fn()
	}
}

// handleResponseLocked matches a response frame to its pending request
// and dispatches by kind. The handshake response is checked first since
// it is tracked outside the pending map.
func (c *Client) handleResponseLocked(tr Transport, f *Frame) []func() {
	id := string(*f.ID)
	if c.hs.phase == hsPending && id == c.hs.initID {
		return c.finishHandshakeLocked(tr, f)
	}
	p, ok := c.corr.Take(id)
	if !ok {
		// Likely a response to a request dropped in a teardown. Still
		// worth telling the caller when it carries an error.
		if f.Error != nil {
			msg := f.Error.Message
			return []func(){func() { c.emitError(ErrorEvent{Message: msg}) }}
		}
		return nil
	}
	switch p.kind {
	case kindStartConversation:
		return c.handleStartResponseLocked(tr, p, f)
	case kindResumeConversation:
		return c.handleResumeResponseLocked(tr, p, f)
	case kindStartTurn:
		return c.handleTurnResponseLocked(p, f)
	case kindUsageProbe:
		return c.handleProbeResponseLocked(tr, p, f)
	}
	return nil
}

// handleEventLocked classifies a notification frame and resolves its
// server conversation id to the caller's. Events for conversations this
// client never started are dropped.
func (c *Client) handleEventLocked(f *Frame) []func() {
	cl := classifyFrame(f, time.Now())
	switch cl.kind {
	case classToken:
		if cl.convID == "" {
			return []func(){
				func() { c.debug(DebugState, "token without conversation id", frameSummary(f)) },
			}
		}
		local, ok := c.threads.Local(cl.convID)
		if !ok {
			return c.unknownConversationLocked(f, cl.convID)
		}
		tok := Token{
			ConversationID: local,
			MessageID:      c.eventMessageIDLocked(local, cl.msgID),
			Text:           cl.text,
			OriginMethod:   cl.origin,
		}
		return []func(){func() { c.emitToken(tok) }}

	case classDone:
		done := Done{MessageID: cl.msgID, FinalText: cl.text}
		if cl.convID != "" {
			local, ok := c.threads.Local(cl.convID)
			if !ok {
				return c.unknownConversationLocked(f, cl.convID)
			}
			done.ConversationID = local
			done.MessageID = c.eventMessageIDLocked(local, cl.msgID)
		}
		return []func(){func() { c.emitDone(done) }}

	case classError:
		ev := ErrorEvent{MessageID: cl.msgID, Message: cl.text}
		if cl.convID != "" {
			local, ok := c.threads.Local(cl.convID)
			if !ok {
				return c.unknownConversationLocked(f, cl.convID)
			}
			ev.ConversationID = local
			ev.MessageID = c.eventMessageIDLocked(local, cl.msgID)
		}
		return []func(){func() { c.emitError(ev) }}

	case classUsage:
		snap := UsageSnapshot{Items: cl.items}
		return []func(){func() { c.emitUsage(snap) }}
	}
	return nil
}

func (c *Client) unknownConversationLocked(f *Frame, remoteID string) []func() {
	detail := remoteID + ": " + frameSummary(f)
	return []func(){
		func() { c.debug(DebugState, "event for unknown conversation", detail) },
	}
}

// eventMessageIDLocked backfills a missing event message id with the
// latest one sent for the conversation.
func (c *Client) eventMessageIDLocked(localID, msgID string) string {
	if msgID != "" {
		return msgID
	}
	return c.threads.LastMessage(localID)
}

// socketClosed runs the teardown for one dead socket: clear session
// state, report the disconnect and schedule the next attempt.
func (c *Client) socketClosed(gen uint64, cause error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	reason := closeReason(cause)
	tr := c.transport
	c.transport = nil
	c.teardownLocked()
	c.state = StateIdle

	var delay time.Duration
	var attempt int
	reconnect := c.autoReconnect && c.url != ""
	if reconnect {
		delay = c.cfg.reconnectBackoff.Delay(c.attempt)
		c.attempt++
		attempt = c.attempt
		next := c.gen
		c.timers.Schedule(timerReconnect, delay, func() { c.redial(next) })
	}
	c.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
	c.emitStatus(StatusDisconnected, reason)
	if reconnect {
		c.debug(DebugState, "reconnect scheduled", fmt.Sprintf("attempt %d in %s", attempt, delay))
	}
}

// redial is the reconnect timer callback.
func (c *Client) redial(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateIdle || !c.autoReconnect || c.url == "" {
		c.mu.Unlock()
		return
	}
	rawURL := c.url
	attempt := c.attempt
	c.state = StateConnecting
	c.mu.Unlock()

	c.emitStatus(StatusConnecting, "")
	c.debug(DebugState, "reconnecting", fmt.Sprintf("attempt %d", attempt))
	c.dial(gen, rawURL)
}

// teardownLocked clears every piece of per-session protocol state.
// Thread mappings are cleared too; hosts that persist them restore via
// HydrateThreadMapping. Bumping gen fences out everything still running
// against the old socket.
func (c *Client) teardownLocked() {
	c.gen++
	c.hs = handshakeState{}
	c.corr.DropAll()
	c.threads.Reset()
	c.timers.CancelAll()
}

// closeReason renders a disconnect cause for the status callback. Clean
// closes pass the server's reason through; abnormal ones surface the
// close code.
func closeReason(err error) string {
	var ce *CloseError
	if errors.As(err, &ce) {
		if ce.Code == 1000 {
			if ce.Reason != "" {
				return ce.Reason
			}
			return "normal closure"
		}
		return fmt.Sprintf("abnormal closure (code %d)", ce.Code)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// sendFrame writes one request to the transport. Write failures are
// logged only; the read loop observes the dead socket and runs the
// teardown once.
func (c *Client) sendFrame(tr Transport, req *Request) {
	if tr == nil || req == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.writeTimeout)
	defer cancel()
	if err := tr.Send(ctx, req); err != nil {
		c.debug(DebugError, "send failed", err.Error())
		return
	}
	c.debug(DebugSend, req.Method, requestSummary(req))
}

func (c *Client) emitStatus(status Status, reason string) {
	c.cfg.logger.Debug().
		Str("status", string(status)).
		Str("reason", reason).
		Msg("status changed")
	if c.cfg.handlers.OnStatus != nil {
		c.cfg.handlers.OnStatus(status, reason)
	}
}

func (c *Client) debug(cat DebugCategory, msg, detail string) {
	c.cfg.logger.Debug().
		Str("category", string(cat)).
		Str("detail", detail).
		Msg(msg)
	if c.cfg.handlers.OnDebug != nil {
		c.cfg.handlers.OnDebug(DebugEntry{
			Time:     time.Now(),
			Category: cat,
			Message:  msg,
			Detail:   detail,
		})
	}
}

func (c *Client) emitToken(tok Token) {
	if c.cfg.handlers.OnToken != nil {
		c.cfg.handlers.OnToken(tok)
	}
}

func (c *Client) emitDone(done Done) {
	if c.cfg.handlers.OnDone != nil {
		c.cfg.handlers.OnDone(done)
	}
}

func (c *Client) emitError(ev ErrorEvent) {
	c.cfg.logger.Warn().
		Str("conversation_id", ev.ConversationID).
		Str("message_id", ev.MessageID).
		Msg(ev.Message)
	if c.cfg.handlers.OnError != nil {
		c.cfg.handlers.OnError(ev)
	}
}

func (c *Client) emitUsage(snap UsageSnapshot) {
	if c.cfg.handlers.OnUsage != nil {
		c.cfg.handlers.OnUsage(snap)
	}
}

func (c *Client) emitThreadMapped(localID, remoteID string) {
	c.cfg.logger.Debug().
		Str("conversation_id", localID).
		Str("remote_id", remoteID).
		Msg("thread mapped")
	if c.cfg.handlers.OnThreadMapped != nil {
		c.cfg.handlers.OnThreadMapped(localID, remoteID)
	}
}
