// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"net/url"
)

// DirEntry is one immediate subdirectory, as returned by GET /api/dirs.
type DirEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Dirs lists the immediate subdirectories of path, for the directory
// autocomplete control.
func (c *Client) Dirs(ctx context.Context, path string) ([]DirEntry, error) {
	data, err := c.get(ctx, "/api/dirs?path="+url.QueryEscape(path))
	if err != nil {
		return nil, err
	}
	var out []DirEntry
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
