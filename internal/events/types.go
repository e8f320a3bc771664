// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the small in-process publish/subscribe bus used
// to fan session output/exit notifications out to attached clients and to
// broadcast status and schedule-completion events to every authenticated
// connection.
package events

import (
	"context"
	"time"
)

// Event is an immutable notification carried on the bus.
type Event struct {
	Type      string
	Timestamp time.Time
	Payload   map[string]interface{}
}

// Handler processes a received event.
type Handler func(ctx context.Context, event Event)

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// Bus is the pub/sub contract used throughout the server. One process-wide
// Bus carries every session's output/exit events plus schedule and
// preferences broadcasts; subscribers filter by payload fields (e.g.
// "sessionId") rather than by a per-session topic.
type Bus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(pattern string, handler Handler) (SubscriptionID, error)
	Unsubscribe(id SubscriptionID)
	Close()
}

const (
	// TypeOutput carries a chunk of PTY output. Payload: {"sessionId": string, "raw": string, "event": ParsedEvent}.
	TypeOutput = "session.output"
	// TypeExit fires exactly once when a session's child process terminates. Payload: {"sessionId": string, "exitCode": int, "reason": string}.
	TypeExit = "session.exit"
)
