// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
)

// Port is a listening TCP port owned by the server's user, as returned by
// GET /api/ports.
type Port struct {
	Port int  `json:"port"`
	IPv6 bool `json:"ipv6"`
}

// Ports lists locally listening ports owned by the server process's user.
func (c *Client) Ports(ctx context.Context) ([]Port, error) {
	data, err := c.get(ctx, "/api/ports")
	if err != nil {
		return nil, err
	}
	var out []Port
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
