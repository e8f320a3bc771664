// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package binresolve locates the target CLI binary: explicit override env
// var, then PATH lookup, then a fixed fallback list of well-known install
// locations.
package binresolve

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Resolve finds an absolute path to name.
//
// override, when non-empty, must point at an existing file that is not a
// directory (its permission bits are not checked) or resolution fails loudly — a misconfigured explicit override is treated as
// a hard failure rather than silently falling through to PATH or the
// fallback list.
func Resolve(name string, override string) (string, error) {
	if override != "" {
		info, err := os.Stat(override)
		if err != nil {
			return "", fmt.Errorf("binary override %q is set but does not exist: %w", override, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("binary override %q is a directory, not an executable", override)
		}
		return override, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	for _, candidate := range fallbackCandidates(name) {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf(
		"could not find %q: not on PATH and not in any of the usual install locations; "+
			"set the explicit path override environment variable or install %q",
		name, name)
}

// fallbackCandidates returns the fixed, ordered list of well-known install
// locations checked after PATH.
func fallbackCandidates(name string) []string {
	candidates := make([]string, 0, 4)
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".local", "bin", name))
	}
	candidates = append(candidates,
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/opt/homebrew/bin", name),
		filepath.Join("/usr/bin", name),
	)
	return candidates
}
