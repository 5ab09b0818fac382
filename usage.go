package codexlink

import "time"

// Probe methods tried in order when the host asks for usage limits.
// Servers answer method-not-found for the ones they do not implement.
var defaultUsageMethods = []string{
	"account/rateLimits",
	"getRateLimits",
	"userInfo",
}

// RequestUsageLimits asks the server for the account's rate limit
// windows. Because servers disagree on the method name, the client
// walks a candidate list until one answers; the parsed snapshot
// arrives via OnUsage. A server that supports none of the candidates
// produces no callback at all.
func (c *Client) RequestUsageLimits() error {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	p := &pendingRequest{
		id:   c.corr.NextID(),
		kind: kindUsageProbe,
	}
	c.corr.Track(p)
	req := c.requestFor(p)
	tr := c.transport
	c.mu.Unlock()

	c.sendFrame(tr, req)
	return nil
}

// handleProbeResponseLocked advances the usage probe. Method-not-found
// moves to the next candidate; any other error aborts the walk.
func (c *Client) handleProbeResponseLocked(tr Transport, p *pendingRequest, f *Frame) []func() {
	if f.Error != nil {
		if f.Error.Code != codeMethodNotFound {
			msg := f.Error.Message
			return []func(){func() { c.emitError(ErrorEvent{Message: msg}) }}
		}
		if p.probe+1 >= len(c.cfg.usageMethods) {
			return []func(){
				func() { c.debug(DebugState, "no supported usage method", "") },
			}
		}
		next := &pendingRequest{
			id:    c.corr.NextID(),
			kind:  kindUsageProbe,
			probe: p.probe + 1,
		}
		c.corr.Track(next)
		req := c.requestFor(next)
		return []func(){func() { c.sendFrame(tr, req) }}
	}

	items := parseUsagePayload(f.Result, time.Now())
	if len(items) == 0 {
		return []func(){
			func() { c.debug(DebugState, "usage response had no rate limit data", "") },
		}
	}
	snap := UsageSnapshot{Items: items}
	return []func(){func() { c.emitUsage(snap) }}
}
