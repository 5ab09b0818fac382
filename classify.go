package codexlink

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// The server family has shipped several generations of event naming.
// Extraction is table-driven: each semantic field has an ordered list of
// candidate names, tried at the top level of the params object first and
// then inside a nested "msg" object.
var (
	conversationIDFields = []string{"conversationId", "conversation_id", "threadId", "thread_id"}
	messageIDFields      = []string{"messageId", "message_id", "itemId", "item_id"}
	tokenTextFields      = []string{"token", "delta"}
	finalTextFields      = []string{"last_agent_message", "lastAgentMessage"}
	rateLimitFields      = []string{"rate_limits", "rateLimits", "rate_limit_windows", "rateLimitWindows"}
	usedPercentFields    = []string{"used_percent", "usedPercent", "percent_used", "usedPct"}
	windowMinutesFields  = []string{"window_minutes", "windowMinutes", "window_duration_minutes"}
	resetsAtFields       = []string{"resets_at", "resetsAt"}
	resetsInFields       = []string{"resets_in_seconds", "resetsInSeconds"}
	windowNameFields     = []string{"name", "id", "label", "window"}
)

// Known delta method names. Current servers use deltaMethod with flat
// params; v1 servers use legacyDeltaMethod with the payload wrapped in a
// "msg" object.
const (
	deltaMethod       = "agentMessageDelta"
	legacyDeltaMethod = "codex/event/agent_message_delta"
)

var turnDoneMethods = map[string]bool{
	"turnCompleted":             true,
	"turn.completed":            true,
	"taskComplete":              true,
	"codex/event/task_complete": true,
}

var itemDoneMethods = map[string]bool{
	"itemCompleted":              true,
	"item.completed":             true,
	"codex/event/item_completed": true,
}

// Item types that carry agent output. Completions of any other item
// type (command runs, tool calls) do not end the reply.
var agentItemTypes = map[string]bool{
	"agent_message":     true,
	"agentMessage":      true,
	"assistant_message": true,
}

// maxUsageDepth bounds the structural search for rate-limit data.
const maxUsageDepth = 5

type classification int

const (
	classUnknown classification = iota
	classToken
	classDone
	classError
	classUsage
)

// classified is the outcome of examining one event frame. Conversation
// and message ids are the server's; the client resolves them to local
// ids before delivery.
type classified struct {
	kind   classification
	convID string
	msgID  string
	text   string
	origin string
	items  []RateLimitItem
}

// classifyFrame sorts an event frame into token, done, error or usage,
// tolerating every method and field dialect the server family has
// shipped. Frames it cannot place come back unknown and are dropped by
// the caller. now anchors relative reset times in usage data.
func classifyFrame(f *Frame, now time.Time) classified {
	params := decodeObject(f.Params)
	var msg map[string]interface{}
	if m, ok := params["msg"].(map[string]interface{}); ok {
		msg = m
	}
	names := eventNames(f.Method, params, msg)

	if cl, ok := classifyToken(f.Method, names, params, msg); ok {
		return cl
	}
	if cl, ok := classifyDone(names, params, msg); ok {
		return cl
	}
	if cl, ok := classifyError(names, params, msg); ok {
		return cl
	}
	if items := usageItems(params, now); len(items) > 0 {
		return classified{kind: classUsage, items: items}
	}
	return classified{kind: classUnknown}
}

// classifyToken recognizes streamed delta fragments. Current servers
// mirror every delta under the legacy method name with flat params for
// compatibility; that variant is the duplicate and is dropped so each
// logical delta is delivered exactly once. A legacy method with a
// msg-wrapped payload is a genuine v1 event, not a duplicate.
func classifyToken(method string, names []string, params, msg map[string]interface{}) (classified, bool) {
	if method == legacyDeltaMethod && msg == nil {
		return classified{kind: classUnknown}, true
	}
	known := method == deltaMethod || method == legacyDeltaMethod

	origin := method
	if !known {
		origin = ""
		for _, n := range names {
			ln := strings.ToLower(n)
			if strings.HasSuffix(ln, "delta") || strings.Contains(ln, "token") {
				origin = n
				break
			}
		}
		if origin == "" {
			return classified{}, false
		}
	}

	text := dialectString(params, msg, tokenTextFields)
	if text == "" {
		if known {
			// a delta with no text to show
			return classified{kind: classUnknown}, true
		}
		return classified{}, false
	}
	return classified{
		kind:   classToken,
		convID: extractConversationID(params, msg),
		msgID:  extractMessageID(params, msg),
		text:   unescapeText(text),
		origin: origin,
	}, true
}

// classifyDone recognizes turn completions, and item completions whose
// item is specifically agent output.
func classifyDone(names []string, params, msg map[string]interface{}) (classified, bool) {
	for _, n := range names {
		if turnDoneMethods[n] {
			return classified{
				kind:   classDone,
				convID: extractConversationID(params, msg),
				msgID:  extractMessageID(params, msg),
				text:   dialectString(params, msg, finalTextFields),
			}, true
		}
	}
	for _, n := range names {
		if !itemDoneMethods[n] {
			continue
		}
		item := childObject(params, msg, "item")
		if item == nil {
			return classified{}, false
		}
		if !agentItemTypes[stringField(item, "type", "item_type", "itemType")] {
			return classified{}, false
		}
		return classified{
			kind:   classDone,
			convID: extractConversationID(params, msg),
			msgID:  extractMessageID(params, msg),
			text:   stringField(item, "text", "content"),
		}, true
	}
	return classified{}, false
}

// classifyError recognizes frames carrying an error object or named
// like an error.
func classifyError(names []string, params, msg map[string]interface{}) (classified, bool) {
	errObj, _ := params["error"].(map[string]interface{})
	if errObj == nil && msg != nil {
		errObj, _ = msg["error"].(map[string]interface{})
	}
	named := false
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), "error") {
			named = true
			break
		}
	}
	if errObj == nil && !named {
		return classified{}, false
	}
	message := ""
	if errObj != nil {
		message = stringField(errObj, "message")
	}
	if message == "" {
		message = dialectString(params, msg, []string{"message"})
	}
	if message == "" {
		message = "unknown error"
	}
	return classified{
		kind:   classError,
		convID: extractConversationID(params, msg),
		msgID:  extractMessageID(params, msg),
		text:   message,
	}, true
}

// usageItems extracts rate-limit windows from anywhere inside payload.
func usageItems(payload map[string]interface{}, now time.Time) []RateLimitItem {
	raw, ok := findRateLimits(payload, 0)
	if !ok {
		return nil
	}
	return parseRateLimits(raw, now)
}

// parseUsagePayload runs the structural usage search over a raw result
// payload, e.g. a usage probe response.
func parseUsagePayload(raw json.RawMessage, now time.Time) []RateLimitItem {
	return usageItems(decodeObject(raw), now)
}

// findRateLimits walks nested objects looking for a rate-limit member
// under any of its candidate names.
func findRateLimits(v interface{}, depth int) (interface{}, bool) {
	if depth > maxUsageDepth {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	for _, k := range rateLimitFields {
		if rl, ok := m[k]; ok {
			return rl, true
		}
	}
	for _, child := range m {
		if rl, ok := findRateLimits(child, depth+1); ok {
			return rl, true
		}
	}
	return nil, false
}

// parseRateLimits normalizes the two shipped shapes: a composite object
// with primary/secondary windows, or an array of window objects. A bare
// single window is tolerated too.
func parseRateLimits(v interface{}, now time.Time) []RateLimitItem {
	switch rl := v.(type) {
	case map[string]interface{}:
		var items []RateLimitItem
		for _, name := range []string{"primary", "secondary"} {
			if w, ok := rl[name].(map[string]interface{}); ok {
				if item, ok := parseWindow(w, name, now); ok {
					items = append(items, item)
				}
			}
		}
		if len(items) > 0 {
			return items
		}
		if item, ok := parseWindow(rl, stringField(rl, windowNameFields...), now); ok {
			return []RateLimitItem{item}
		}
	case []interface{}:
		var items []RateLimitItem
		for _, el := range rl {
			w, ok := el.(map[string]interface{})
			if !ok {
				continue
			}
			if item, ok := parseWindow(w, stringField(w, windowNameFields...), now); ok {
				items = append(items, item)
			}
		}
		return items
	}
	return nil
}

// parseWindow reads one window object. It reports false when none of
// the window fields are present, so arbitrary objects near a rate-limit
// key do not turn into empty items.
func parseWindow(w map[string]interface{}, name string, now time.Time) (RateLimitItem, bool) {
	item := RateLimitItem{Name: name}
	found := false
	if pct, ok := numberField(w, usedPercentFields...); ok {
		// some servers report a 0-1 ratio instead of a percentage
		if pct <= 1.0 {
			pct *= 100
		}
		item.UsedPercent = &pct
		found = true
	}
	if mins, ok := numberField(w, windowMinutesFields...); ok {
		item.WindowMinutes = int(mins)
		found = true
	}
	if at, ok := resetTime(w, now); ok {
		item.ResetsAt = at
		found = true
	}
	return item, found
}

// resetTime reads a reset timestamp: unix seconds or RFC 3339 under the
// absolute names, or a relative seconds count anchored at now.
func resetTime(w map[string]interface{}, now time.Time) (time.Time, bool) {
	for _, k := range resetsAtFields {
		switch v := w[k].(type) {
		case float64:
			return time.Unix(int64(v), 0), true
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t, true
			}
		}
	}
	if secs, ok := numberField(w, resetsInFields...); ok {
		return now.Add(time.Duration(secs * float64(time.Second))), true
	}
	return time.Time{}, false
}

func extractConversationID(params, msg map[string]interface{}) string {
	return dialectString(params, msg, conversationIDFields)
}

func extractMessageID(params, msg map[string]interface{}) string {
	if s := dialectString(params, msg, messageIDFields); s != "" {
		return s
	}
	// the item id doubles as the message id on item-scoped events
	if item := childObject(params, msg, "item"); item != nil {
		if s, ok := item["id"].(string); ok {
			return s
		}
	}
	return ""
}

// resultConversationID pulls the server conversation id out of a
// response payload.
func resultConversationID(raw json.RawMessage) string {
	m := decodeObject(raw)
	if m == nil {
		return ""
	}
	var msg map[string]interface{}
	if mm, ok := m["msg"].(map[string]interface{}); ok {
		msg = mm
	}
	return extractConversationID(m, msg)
}

// eventNames lists every name under which a frame declares its type:
// the method field plus type/event fields at both payload levels.
func eventNames(method string, params, msg map[string]interface{}) []string {
	names := make([]string, 0, 5)
	if method != "" {
		names = append(names, method)
	}
	for _, m := range []map[string]interface{}{params, msg} {
		if m == nil {
			continue
		}
		for _, k := range []string{"type", "event"} {
			if s, ok := m[k].(string); ok && s != "" {
				names = append(names, s)
			}
		}
	}
	return names
}

func decodeObject(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// dialectString tries each candidate field at the top level, then
// inside the nested msg object, returning the first non-empty string.
func dialectString(params, msg map[string]interface{}, fields []string) string {
	if s := stringField(params, fields...); s != "" {
		return s
	}
	if msg != nil {
		if s := stringField(msg, fields...); s != "" {
			return s
		}
	}
	return ""
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func numberField(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func childObject(params, msg map[string]interface{}, key string) map[string]interface{} {
	if m, ok := params[key].(map[string]interface{}); ok {
		return m
	}
	if msg != nil {
		if m, ok := msg[key].(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}

// unescapeText undoes one layer of JSON string escaping. Some server
// builds double-encode delta text; a literal backslash escape is the
// tell.
func unescapeText(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case 'r':
				b.WriteByte('\r')
				i++
				continue
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case '"':
				b.WriteByte('"')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
