package codexlink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestUsageLimits_FirstMethodSucceeds(t *testing.T) {
	c, d, rec := newTestClient(t)
	tr := connectReady(t, c, d, rec)

	require.NoError(t, c.RequestUsageLimits())
	probe := tr.waitForRequest(t, time.Second)
	require.Equal(t, "account/rateLimits", probe.Method)

	tr.pushFrame(resultFrame(probe.ID, map[string]interface{}{
		"rate_limits": map[string]interface{}{
			"primary":   map[string]interface{}{"used_percent": 30.0, "window_minutes": 300},
			"secondary": map[string]interface{}{"used_percent": 70.0, "window_minutes": 10080},
		},
	}))

	require.Eventually(t, func() bool { return len(rec.usageList()) == 1 },
		time.Second, time.Millisecond)
	snap := rec.usageList()[0]
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "primary", snap.Items[0].Name)
	assert.Equal(t, "secondary", snap.Items[1].Name)
}

func TestRequestUsageLimits_WalksCandidates(t *testing.T) {
	c, d, rec := newTestClient(t)
	tr := connectReady(t, c, d, rec)

	require.NoError(t, c.RequestUsageLimits())

	first := tr.waitForRequest(t, time.Second)
	require.Equal(t, "account/rateLimits", first.Method)
	tr.pushFrame(errorFrame(first.ID, -32601, "method not found"))

	second := tr.waitForRequest(t, time.Second)
	require.Equal(t, "getRateLimits", second.Method)
	tr.pushFrame(errorFrame(second.ID, -32601, "method not found"))

	third := tr.waitForRequest(t, time.Second)
	require.Equal(t, "userInfo", third.Method)
	tr.pushFrame(resultFrame(third.ID, map[string]interface{}{
		"account": map[string]interface{}{
			"rate_limits": map[string]interface{}{
				"primary": map[string]interface{}{"used_percent": 25.0},
			},
		},
	}))

	require.Eventually(t, func() bool { return len(rec.usageList()) == 1 },
		time.Second, time.Millisecond)
	require.Len(t, rec.usageList()[0].Items, 1)
	assert.InDelta(t, 25.0, *rec.usageList()[0].Items[0].UsedPercent, 0.001)
	assert.Empty(t, rec.errorList())
}

func TestRequestUsageLimits_OtherErrorAborts(t *testing.T) {
	c, d, rec := newTestClient(t)
	tr := connectReady(t, c, d, rec)

	require.NoError(t, c.RequestUsageLimits())
	probe := tr.waitForRequest(t, time.Second)
	tr.pushFrame(errorFrame(probe.ID, -32000, "internal error"))

	require.Eventually(t, func() bool { return len(rec.errorList()) == 1 },
		time.Second, time.Millisecond)
	ev := rec.errorList()[0]
	assert.Empty(t, ev.ConversationID)
	assert.Equal(t, "internal error", ev.Message)

	select {
	case extra := <-tr.onSend:
		t.Fatalf("probe must stop after a non-lookup error, got %s", extra.Method)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestUsageLimits_AllCandidatesExhausted(t *testing.T) {
	c, d, rec := newTestClient(t)
	tr := connectReady(t, c, d, rec)

	require.NoError(t, c.RequestUsageLimits())
	for _, method := range []string{"account/rateLimits", "getRateLimits", "userInfo"} {
		probe := tr.waitForRequest(t, time.Second)
		require.Equal(t, method, probe.Method)
		tr.pushFrame(errorFrame(probe.ID, -32601, "method not found"))
	}

	require.Eventually(t, func() bool { return rec.hasDebug("no supported usage method") },
		time.Second, time.Millisecond)
	assert.Empty(t, rec.usageList())
	assert.Empty(t, rec.errorList())

	select {
	case extra := <-tr.onSend:
		t.Fatalf("no request may follow an exhausted probe, got %s", extra.Method)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestUsageLimits_EmptyResultStopsProbing(t *testing.T) {
	c, d, rec := newTestClient(t)
	tr := connectReady(t, c, d, rec)

	require.NoError(t, c.RequestUsageLimits())
	probe := tr.waitForRequest(t, time.Second)
	tr.pushFrame(resultFrame(probe.ID, map[string]interface{}{"plan": "pro"}))

	require.Eventually(t, func() bool { return rec.hasDebug("usage response had no rate limit data") },
		time.Second, time.Millisecond)
	assert.Empty(t, rec.usageList())

	// a successful response ends the walk even without usable data
	select {
	case extra := <-tr.onSend:
		t.Fatalf("probe must stop after a success, got %s", extra.Method)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestUsageLimits_BeforeReady(t *testing.T) {
	c, _, _ := newTestClient(t)

	err := c.RequestUsageLimits()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestRequestUsageLimits_CustomMethods(t *testing.T) {
	c, d, rec := newTestClient(t, WithUsageMethods("my/usage"))
	tr := connectReady(t, c, d, rec)

	require.NoError(t, c.RequestUsageLimits())
	probe := tr.waitForRequest(t, time.Second)
	require.Equal(t, "my/usage", probe.Method)
	tr.pushFrame(errorFrame(probe.ID, -32601, "method not found"))

	require.Eventually(t, func() bool { return rec.hasDebug("no supported usage method") },
		time.Second, time.Millisecond)
}
