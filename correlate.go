package codexlink

import (
	"strconv"
	"sync/atomic"
)

// requestKind tags a pending request with the action that produced it,
// which decides how its response is dispatched.
type requestKind string

const (
	kindStartConversation  requestKind = "start-conversation"
	kindResumeConversation requestKind = "resume-conversation"
	kindStartTurn          requestKind = "start-turn"
	kindUsageProbe         requestKind = "usage-probe"
)

// pendingRequest is one in-flight request awaiting its response. The
// chat payload is retained verbatim so overload retries and the
// resume-to-start fallback can rebuild the request.
type pendingRequest struct {
	id          string
	kind        requestKind
	localID     string // caller conversation id
	remoteID    string // server conversation id, set for resume and turn
	msgID       string // caller message id the turn belongs to
	text        string
	attachments []Attachment
	retries     int // overload retries consumed
	probe       int // usage candidate index
}

// correlator matches response frames to in-flight requests. The pending
// map is guarded by the client lock; id generation alone is safe to
// call concurrently.
type correlator struct {
	lastID  atomic.Uint64
	pending map[string]*pendingRequest
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[string]*pendingRequest)}
}

// NextID returns a fresh request id. Ids increase monotonically for the
// life of the client and are never reused, even across reconnects.
func (cr *correlator) NextID() string {
	return strconv.FormatUint(cr.lastID.Add(1), 10)
}

// Track registers p until its response arrives or the socket goes away.
func (cr *correlator) Track(p *pendingRequest) {
	cr.pending[p.id] = p
}

// Take removes and returns the pending request with the given id, so
// each request is resolved at most once.
func (cr *correlator) Take(id string) (*pendingRequest, bool) {
	p, ok := cr.pending[id]
	if ok {
		delete(cr.pending, id)
	}
	return p, ok
}

// DropAll forgets every pending request without failing it. Requests
// lost to a teardown are covered by the connection status, not
// per-request errors.
func (cr *correlator) DropAll() {
	clear(cr.pending)
}
