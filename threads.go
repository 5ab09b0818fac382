package codexlink

// threadMap tracks which server conversation backs each caller
// conversation, which of those the current socket has a live turn
// context for, and the newest caller message id per conversation. All
// methods assume the caller holds the client lock.
type threadMap struct {
	localToRemote map[string]string
	remoteToLocal map[string]string
	resumed       map[string]bool
	lastMsg       map[string]string
}

func newThreadMap() *threadMap {
	return &threadMap{
		localToRemote: make(map[string]string),
		remoteToLocal: make(map[string]string),
		resumed:       make(map[string]bool),
		lastMsg:       make(map[string]string),
	}
}

// Map associates localID with remoteID. Stale pairings either id was
// part of are evicted from both directions and from the resumed set, so
// the two maps never disagree.
func (t *threadMap) Map(localID, remoteID string) {
	if old, ok := t.localToRemote[localID]; ok && old != remoteID {
		delete(t.remoteToLocal, old)
		delete(t.resumed, old)
	}
	if old, ok := t.remoteToLocal[remoteID]; ok && old != localID {
		delete(t.localToRemote, old)
	}
	t.localToRemote[localID] = remoteID
	t.remoteToLocal[remoteID] = localID
}

// Remote returns the server id paired with a caller conversation.
func (t *threadMap) Remote(localID string) (string, bool) {
	r, ok := t.localToRemote[localID]
	return r, ok
}

// Local returns the caller id paired with a server conversation.
func (t *threadMap) Local(remoteID string) (string, bool) {
	l, ok := t.remoteToLocal[remoteID]
	return l, ok
}

// MarkResumed records that remoteID has a live turn context on the
// current socket, so further turns can skip the resume request.
func (t *threadMap) MarkResumed(remoteID string) {
	t.resumed[remoteID] = true
}

// Resumed reports whether remoteID has a live turn context.
func (t *threadMap) Resumed(remoteID string) bool {
	return t.resumed[remoteID]
}

// Invalidate forgets everything known about a caller conversation.
func (t *threadMap) Invalidate(localID string) {
	if remote, ok := t.localToRemote[localID]; ok {
		delete(t.remoteToLocal, remote)
		delete(t.resumed, remote)
	}
	delete(t.localToRemote, localID)
	delete(t.lastMsg, localID)
}

// SetLastMessage records the newest caller message id for a
// conversation. Events that arrive without a message id are stamped
// with it.
func (t *threadMap) SetLastMessage(localID, messageID string) {
	t.lastMsg[localID] = messageID
}

// LastMessage returns the newest caller message id for a conversation,
// or empty.
func (t *threadMap) LastMessage(localID string) string {
	return t.lastMsg[localID]
}

// Reset drops every mapping, resumed marker and message id.
func (t *threadMap) Reset() {
	clear(t.localToRemote)
	clear(t.remoteToLocal)
	clear(t.resumed)
	clear(t.lastMsg)
}
