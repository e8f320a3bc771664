// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package binresolve

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_ExplicitOverride(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "mycli")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755))

	path, err := Resolve("mycli", bin)
	require.NoError(t, err)
	assert.Equal(t, bin, path)
}

func TestResolve_ExplicitOverrideMissing_FailsLoudly(t *testing.T) {
	_, err := Resolve("mycli", "/nonexistent/path/to/mycli")
	require.Error(t, err)
}

func TestResolve_ExplicitOverrideIsDir_Fails(t *testing.T) {
	dir := t.TempDir()
	_, err := Resolve("mycli", dir)
	require.Error(t, err)
}

func TestResolve_PathLookup(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("PATH lookup test assumes a POSIX shell binary")
	}
	path, err := Resolve("sh", "")
	require.NoError(t, err)
	assert.Contains(t, path, "sh")
}

func TestResolve_NotFound(t *testing.T) {
	_, err := Resolve("definitely-not-a-real-binary-xyz", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definitely-not-a-real-binary-xyz")
}

func TestResolve_FallbackCandidates_Ordered(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	candidates := fallbackCandidates("mycli")
	require.NotEmpty(t, candidates)
	assert.Equal(t, filepath.Join(home, ".local", "bin", "mycli"), candidates[0])
	assert.Contains(t, candidates, "/usr/local/bin/mycli")
	assert.Contains(t, candidates, "/opt/homebrew/bin/mycli")
	assert.Contains(t, candidates, "/usr/bin/mycli")
}
