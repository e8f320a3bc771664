// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package procdetect

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// readArgv reads the process's full argument vector.
func readArgv(pid int) ([]string, error) {
	switch runtime.GOOS {
	case "linux":
		data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
		if err != nil {
			return nil, err
		}
		parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
		if len(parts) == 1 && parts[0] == "" {
			return nil, fmt.Errorf("procdetect: empty cmdline for pid %d", pid)
		}
		return parts, nil
	case "darwin":
		out, err := exec.Command("ps", "-o", "command=", "-p", strconv.Itoa(pid)).Output()
		if err != nil {
			return nil, err
		}
		return strings.Fields(strings.TrimSpace(string(out))), nil
	default:
		return nil, fmt.Errorf("procdetect: unsupported platform %s", runtime.GOOS)
	}
}

// resolveCwd resolves a process's working directory: the /proc/<pid>/cwd
// symlink on Linux, the lsof cwd field on macOS.
func resolveCwd(pid int) (string, error) {
	switch runtime.GOOS {
	case "linux":
		return os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "cwd"))
	case "darwin":
		out, err := exec.Command("lsof", "-a", "-d", "cwd", "-p", strconv.Itoa(pid), "-Fn").Output()
		if err != nil {
			return "", err
		}
		for _, line := range strings.Split(string(out), "\n") {
			if strings.HasPrefix(line, "n") {
				return line[1:], nil
			}
		}
		return "", fmt.Errorf("procdetect: no cwd field in lsof output for pid %d", pid)
	default:
		return "", fmt.Errorf("procdetect: unsupported platform %s", runtime.GOOS)
	}
}

// ownedByUser reports whether pid's owning uid matches uid. On platforms
// without /proc this is best-effort and defaults to true, since go-ps
// already filtered to processes this OS call can observe as belonging to
// the caller's session in practice.
func ownedByUser(pid int, uid string) bool {
	if runtime.GOOS != "linux" || uid == "" {
		return true
	}
	info, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid)))
	if err != nil {
		return false
	}
	sysStat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return true
	}
	return strconv.FormatUint(uint64(sysStat.Uid), 10) == uid
}

// isAlive probes liveness with a signal-0 kill(2), via golang.org/x/sys/unix
// rather than the stdlib syscall package, matching the rest of this file's
// direct-syscall style for process control.
func isAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}

func terminate(proc *os.Process) error {
	return unix.Kill(proc.Pid, unix.SIGTERM)
}

func forceKill(proc *os.Process) {
	unix.Kill(proc.Pid, unix.SIGKILL)
}
