// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package portscan lists local TCP ports the current user is listening on,
// for the directory/port pickers in the browser UI.
package portscan

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Port is one listening TCP socket owned by the current user.
type Port struct {
	Port  int  `json:"port"`
	IPv6  bool `json:"ipv6"`
}

const (
	tcpListenState = "0A"
)

var warnOnce sync.Once

// List scans /proc/net/tcp and /proc/net/tcp6 for LISTEN sockets owned by
// the current user. On non-Linux platforms it returns an empty list,
// logging the limitation once.
func List() ([]Port, error) {
	if runtime.GOOS != "linux" {
		warnOnce.Do(func() {
			log.Printf("portscan: GOOS=%s unsupported, returning empty port list", runtime.GOOS)
		})
		return []Port{}, nil
	}

	uid := os.Getuid()

	ports := make(map[int]bool)
	for _, path := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		if err := scanFile(path, uid, ports); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("portscan: reading %s: %w", path, err)
		}
	}

	out := make([]Port, 0, len(ports))
	for port, ipv6 := range ports {
		out = append(out, Port{Port: port, IPv6: ipv6})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out, nil
}

func scanFile(path string, uid int, ports map[int]bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ipv6 := strings.HasSuffix(path, "6")

	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		port, owned, ok := parseLine(scanner.Text(), uid)
		if ok && owned {
			ports[port] = ipv6
		}
	}
	return scanner.Err()
}

// parseLine extracts the local port and owner uid from one /proc/net/tcp
// row, matching only rows in the LISTEN state.
func parseLine(line string, uid int) (port int, owned bool, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 8 {
		return 0, false, false
	}

	if fields[3] != tcpListenState {
		return 0, false, false
	}

	localAddr := fields[1]
	colon := strings.LastIndexByte(localAddr, ':')
	if colon < 0 {
		return 0, false, false
	}
	p, err := strconv.ParseInt(localAddr[colon+1:], 16, 32)
	if err != nil {
		return 0, false, false
	}

	rowUID, err := strconv.Atoi(fields[7])
	if err != nil {
		return 0, false, false
	}

	return int(p), rowUID == uid, true
}
