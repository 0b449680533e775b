// Package filter provides composable channel middleware for session event
// streams. Consumers wrap Session.Events with these functions to select the
// event granularity they need.
package filter

import (
	"context"
	"strings"

	copilot "github.com/copilot-sdk/copilot-go"
)

// Filter returns a channel that only passes events of the given types.
// Spawns a goroutine that exits when ctx is cancelled or ch is closed.
// The returned channel is closed when the goroutine exits.
func Filter(ctx context.Context, ch <-chan copilot.SessionEvent, types ...copilot.EventType) <-chan copilot.SessionEvent {
	allowed := make(map[copilot.EventType]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return pipe(ctx, ch, func(evt copilot.SessionEvent) bool {
		_, ok := allowed[evt.Type]
		return ok
	})
}

// Completed returns a channel that drops all delta types, passing only
// complete events. Spawns a goroutine that exits when ctx is cancelled
// or ch is closed.
func Completed(ctx context.Context, ch <-chan copilot.SessionEvent) <-chan copilot.SessionEvent {
	return pipe(ctx, ch, func(evt copilot.SessionEvent) bool {
		return !IsDelta(evt.Type)
	})
}

// AssistantOnly returns a channel that passes only assistant.* events.
// Spawns a goroutine that exits when ctx is cancelled or ch is closed.
func AssistantOnly(ctx context.Context, ch <-chan copilot.SessionEvent) <-chan copilot.SessionEvent {
	return pipe(ctx, ch, func(evt copilot.SessionEvent) bool {
		return strings.HasPrefix(string(evt.Type), "assistant.")
	})
}

// IsDelta reports whether t is a streaming delta (partial) event type.
// Convention: all delta types use the "_delta" suffix (e.g.,
// assistant.message_delta, assistant.reasoning_delta). This avoids needing
// to update a switch statement each time a new delta type is added.
func IsDelta(t copilot.EventType) bool {
	return strings.HasSuffix(string(t), "_delta")
}

// pipe spawns a goroutine that reads from ch, passes events matching
// the predicate to the returned channel, and closes it when ch closes
// or ctx is cancelled. Callers must either drain the returned channel
// or cancel ctx to avoid goroutine leaks. Events accepted by the
// predicate may be silently dropped if ctx is cancelled mid-send.
func pipe(ctx context.Context, ch <-chan copilot.SessionEvent, accept func(copilot.SessionEvent) bool) <-chan copilot.SessionEvent {
	out := make(chan copilot.SessionEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if accept(evt) && !trySend(ctx, out, evt) {
					return
				}
			}
		}
	}()
	return out
}

// trySend sends evt on out, returning true on success.
// Returns false if ctx is cancelled before the send completes.
func trySend(ctx context.Context, out chan<- copilot.SessionEvent, evt copilot.SessionEvent) bool {
	select {
	case out <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}
