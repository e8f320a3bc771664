// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"time"
)

// SessionStatus mirrors internal/ptysession.Status.
type SessionStatus string

// ActivityStatus mirrors internal/ptysession.ActivityStatus.
type ActivityStatus string

// Session is a live session summary, as returned by GET /api/sessions.
type Session struct {
	ID             string         `json:"id"`
	Cwd            string         `json:"cwd"`
	CreatedAt      time.Time      `json:"createdAt"`
	Status         SessionStatus  `json:"status"`
	ActivityStatus ActivityStatus `json:"activityStatus"`
	PID            int            `json:"pid,omitempty"`
}

// Sessions lists every live session.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	data, err := c.get(ctx, "/api/sessions")
	if err != nil {
		return nil, err
	}
	var out []Session
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
