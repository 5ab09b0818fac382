package codexlink

// handshakePhase tracks the initialize exchange for one socket session.
type handshakePhase int

const (
	hsIdle handshakePhase = iota
	hsPending
	hsReady
)

type handshakeState struct {
	phase  handshakePhase
	initID string
}

// beginHandshakeLocked starts the initialize exchange for a fresh
// socket and returns the request to write, or nil if a handshake is
// already underway.
func (c *Client) beginHandshakeLocked() *Request {
	if c.hs.phase != hsIdle {
		return nil
	}
	id := c.corr.NextID()
	c.hs = handshakeState{phase: hsPending, initID: id}
	return NewInitializeRequest(id, c.cfg.clientInfo)
}

// finishHandshakeLocked handles the initialize response. On a result it
// sends the initialized notification and promotes the connection to
// ready; on an error it closes the socket so the reconnect path can try
// again.
func (c *Client) finishHandshakeLocked(tr Transport, f *Frame) []func() {
	if f.Error != nil {
		c.hs = handshakeState{}
		detail := f.Error.Message
		return []func(){
			func() { c.debug(DebugError, "initialize rejected", detail) },
			func() {
				if tr != nil {
					tr.Close()
				}
			},
		}
	}
	c.hs.phase = hsReady
	c.state = StateReady
	note := NewInitializedNotification()
	return []func(){
		func() { c.sendFrame(tr, note) },
		func() { c.emitStatus(StatusReady, "") },
	}
}
