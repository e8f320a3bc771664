// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package banner

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockFor(t *testing.T) {
	assert.Equal(t, '█', blockFor(true, true))
	assert.Equal(t, '▀', blockFor(true, false))
	assert.Equal(t, '▄', blockFor(false, true))
	assert.Equal(t, ' ', blockFor(false, false))
}

func TestPrint_IncludesLocalAndPublicURLs(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, "http://localhost:3456", "https://example.trycloudflare.com")
	out := buf.String()
	assert.Contains(t, out, "http://localhost:3456")
	assert.Contains(t, out, "https://example.trycloudflare.com")
}

func TestPrint_NoTunnelConfigured(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, "http://localhost:3456", "")
	assert.Contains(t, buf.String(), "(no tunnel configured)")
}
