// Package codexlink provides a resilient WebSocket client for a local
// Codex agent server.
//
// The server speaks a JSON-RPC-like protocol: the client sends requests
// carrying monotonically increasing ids, the server answers with
// matching response frames and pushes notification frames (streamed
// tokens, turn completions, errors, usage data) in between. Several
// generations of the protocol are in the wild with different method and
// field names; the client recognizes all of them and delivers a single
// normalized event stream through caller-registered handlers.
//
// # Connection Lifecycle
//
// Connect dials and performs the initialize handshake; from then on the
// client keeps the session alive, redialing with capped exponential
// backoff whenever the socket drops, until Disconnect. All server-side
// session state is considered lost on a drop: conversation mappings are
// forgotten and the next turn of each conversation transparently starts
// or resumes a server thread as needed.
//
// # Basic Usage
//
//	client := codexlink.New(
//	    codexlink.WithHandlers(codexlink.Handlers{
//	        OnToken: func(tok codexlink.Token) {
//	            fmt.Print(tok.Text)
//	        },
//	        OnStatus: func(status codexlink.Status, reason string) {
//	            log.Printf("status: %s %s", status, reason)
//	        },
//	    }),
//	)
//	if err := client.Connect("ws://127.0.0.1:8765/ws"); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	err := client.SendChat(codexlink.ChatMessage{
//	    ConversationID: "conv-1",
//	    Text:           "Hello!",
//	})
//
// # Thread Safety
//
// [Client] is safe for concurrent use by multiple goroutines. Protocol
// events for one connection are delivered sequentially from that
// connection's read goroutine, and handlers may call back into the
// client.
//
// # Observability
//
// Use [WithLogger] for structured logs and the OnDebug handler for an
// in-process event feed:
//
//	client := codexlink.New(
//	    codexlink.WithLogger(zerolog.New(os.Stderr).With().Timestamp().Logger()),
//	    codexlink.WithHandlers(codexlink.Handlers{
//	        OnDebug: func(e codexlink.DebugEntry) {
//	            fmt.Println(e.Category, e.Message, e.Detail)
//	        },
//	    }),
//	)
package codexlink
