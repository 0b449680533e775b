// Package copilot drives the Copilot CLI agent from Go.
//
// The client starts the CLI in server mode as a child process (or connects
// to an already-running server over TCP) and speaks bidirectional JSON-RPC
// with it: outbound requests create and drive sessions, inbound requests let
// the agent call back into application code for tools, permissions, user
// input, and hooks.
//
// # Core Types
//
//   - [Client] — owns the agent process and the connection; creates sessions
//   - [Session] — one conversation: send messages, subscribe to events,
//     register tools and handlers
//   - [SessionEvent] — structured event stream from the agent, decoded into
//     typed [EventData] payloads
//   - [Tool] — a client-side tool the agent can invoke during a turn
//   - [SessionHooks] — lifecycle hooks invoked around tool use and prompts
//
// # Quick Start
//
//	client := copilot.NewClient()
//	defer client.Stop(context.Background())
//
//	session, err := client.CreateSession(ctx, copilot.SessionConfig{
//	    Model: "gpt-5",
//	})
//	if err != nil { log.Fatal(err) }
//
//	evt, err := session.SendAndWait(ctx, copilot.MessageOptions{
//	    Prompt: "Summarize this repository.",
//	})
//	if err != nil { log.Fatal(err) }
//	if msg, ok := evt.Data.(*copilot.AssistantMessageData); ok {
//	    fmt.Println(msg.Content)
//	}
//
// # Lifecycle
//
// The client starts lazily: the first operation that needs the agent spawns
// it (disable with [WithAutoStart]). [Client.Stop] shuts the agent down
// gracefully and leaves sessions resumable with [Client.ResumeSession];
// [Session.Destroy] removes a session for good.
package copilot
