// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ptysession owns one child process attached to a pseudo-terminal:
// lifecycle, bounded output history, and best-effort output classification.
package ptysession

import "time"

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// ActivityStatus is the derived busy/idle classification.
type ActivityStatus string

const (
	ActivityBusy    ActivityStatus = "busy"
	ActivityIdle    ActivityStatus = "idle"
	ActivityUnknown ActivityStatus = "unknown"
)

// busyWindow is how recently output must have arrived for a running session
// to be considered busy.
const busyWindow = 30 * time.Second

// historyCap is the bounded replay buffer size.
const historyCap = 100 * 1024

// Info is the exported, JSON-friendly snapshot of a Session.
type Info struct {
	ID             string         `json:"id"`
	Cwd            string         `json:"cwd"`
	CreatedAt      time.Time      `json:"createdAt"`
	Status         Status         `json:"status"`
	ActivityStatus ActivityStatus `json:"activityStatus"`
	PID            int            `json:"pid,omitempty"`
}

// EventType classifies a chunk of PTY output.
type EventType string

const (
	EventText      EventType = "text"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventAskUser   EventType = "ask_user"
	EventDiff      EventType = "diff"
)

// Option is one numbered choice extracted from an ask_user prompt.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ParsedEvent is the best-effort classification of one output chunk.
type ParsedEvent struct {
	Type     EventType `json:"type"`
	ToolName string    `json:"toolName,omitempty"`
	Options  []Option  `json:"options,omitempty"`
	Content  string    `json:"content"`
}
