// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package procdetect

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesBinary(t *testing.T) {
	cases := []struct {
		argv0, binary string
		want          bool
	}{
		{"claude", "claude", true},
		{"/usr/local/bin/claude", "claude", true},
		{"/opt/homebrew/bin/claude", "claude", true},
		{"other", "claude", false},
		{"/Applications/Claude.app/Contents/MacOS/claude", "claude", false},
		{"claudeish", "claude", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, matchesBinary(c.argv0, c.binary), "%s vs %s", c.argv0, c.binary)
	}
}

func TestKill_GracefulExit(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	gone, err := Kill(pid, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, gone)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestKill_AlreadyGone(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	gone, _ := Kill(cmd.Process.Pid, 100*time.Millisecond)
	assert.True(t, gone)
}

func TestDiscover_NoMatchesForUnknownBinary(t *testing.T) {
	d := New("definitely-not-a-real-binary-xyz")
	external, err := d.Discover(nil)
	require.NoError(t, err)
	assert.Empty(t, external)
}
