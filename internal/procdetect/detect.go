// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package procdetect enumerates foreign, unmanaged instances of the target
// CLI running under the current user and can terminate them by PID.
package procdetect

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	ps "github.com/mitchellh/go-ps"
)

// External is a snapshot of a foreign, unowned process running the target
// binary.
type External struct {
	PID            int      `json:"pid"`
	Cwd            string   `json:"cwd"`
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	ActivityStatus string   `json:"activityStatus"`
}

// Detector finds External sessions and can terminate them.
type Detector struct {
	binary string
}

// New builds a Detector that looks for processes named binary.
func New(binary string) *Detector {
	return &Detector{binary: binary}
}

// Discover lists every process owned by the current user running the
// target binary, resolving its working directory, excluding anything in
// exclude (managed PIDs and the server's own PID). Entries whose cwd
// cannot be determined are dropped.
func (d *Detector) Discover(exclude map[int]struct{}) ([]External, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("procdetect: listing processes: %w", err)
	}

	uid := currentUID()
	self := os.Getpid()

	var out []External
	for _, p := range procs {
		pid := p.Pid()
		if pid == self {
			continue
		}
		if _, skip := exclude[pid]; skip {
			continue
		}
		if isZombie(pid) {
			continue
		}
		if !ownedByUser(pid, uid) {
			continue
		}

		argv, err := readArgv(pid)
		if err != nil || len(argv) == 0 {
			continue
		}
		if !matchesBinary(argv[0], d.binary) {
			continue
		}

		cwd, err := resolveCwd(pid)
		if err != nil || cwd == "" {
			continue
		}

		out = append(out, External{
			PID:     pid,
			Cwd:     cwd,
			Command: argv[0],
			Args:    argv[1:],
		})
	}

	return out, nil
}

// matchesBinary matches the first argv token against the exact binary name
// or a path ending in /<binary> that is not inside a macOS .app bundle.
func matchesBinary(argv0, binary string) bool {
	if argv0 == binary {
		return true
	}
	if strings.Contains(argv0, ".app") {
		return false
	}
	return strings.HasSuffix(argv0, "/"+binary)
}

// Terminate sends a single graceful terminate signal without waiting.
func Terminate(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return terminate(proc)
}

// IsAlive reports whether pid still refers to a live process.
func IsAlive(pid int) bool {
	return isAlive(pid)
}

// Kill sends a graceful terminate, polls liveness every 50ms, and escalates
// to an unconditional kill if still alive after timeout. Returns whether
// the process is confirmed gone.
func Kill(pid int, timeout time.Duration) (bool, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, err
	}

	if err := terminate(proc); err != nil && isAlive(pid) {
		return false, err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !isAlive(pid) {
			return true, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if !isAlive(pid) {
		return true, nil
	}

	forceKill(proc)
	time.Sleep(50 * time.Millisecond)
	return !isAlive(pid), nil
}

func currentUID() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Uid
}

func isZombie(pid int) bool {
	if runtime.GOOS != "linux" {
		return false
	}
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	// comm (field 2) can itself contain spaces and parens, so split on the
	// last ')' rather than whitespace to find the state field reliably.
	idx := strings.LastIndexByte(string(data), ')')
	if idx < 0 || idx+2 >= len(data) {
		return false
	}
	state := strings.Fields(string(data)[idx+1:])
	return len(state) > 0 && state[0] == "Z"
}
