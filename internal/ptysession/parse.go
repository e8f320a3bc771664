// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ptysession

import (
	"regexp"
	"strings"
)

// ansiPattern strips ANSI escape sequences for pattern matching only; the
// raw bytes handed to history()/output subscribers are never touched by
// this. No third-party ANSI-handling library in the pack fits this
// substring-classification use case without pulling in a full terminal
// emulator, so this is plain stdlib regexp.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07|\x1b[()][A-Za-z0-9]`)

var numberedLinePattern = regexp.MustCompile(`(?m)^(\d+)\.\s+(.+)$`)

var toolNamePattern = regexp.MustCompile(`\b(Read|Edit|Write|Bash|Glob|Grep)\b`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// classify applies the output-classification heuristics to one chunk.
func classify(raw []byte) ParsedEvent {
	stripped := stripANSI(string(raw))

	if ev, ok := classifyAskUser(stripped); ok {
		return ev
	}
	if m := toolNamePattern.FindStringSubmatch(stripped); m != nil {
		return ParsedEvent{Type: EventToolStart, ToolName: m[1], Content: stripped}
	}
	if strings.Contains(stripped, "@@") && (strings.Contains(stripped, "+") || strings.Contains(stripped, "-")) {
		return ParsedEvent{Type: EventDiff, Content: stripped}
	}
	return ParsedEvent{Type: EventText, Content: stripped}
}

// classifyAskUser implements the ask_user heuristic: a "?" plus at least two
// numbered-list lines. This is a known source of false positives on
// unrelated numbered lists, kept deliberately rather than "fixed" — a
// stricter heuristic risks missing real prompts.
func classifyAskUser(stripped string) (ParsedEvent, bool) {
	if !strings.Contains(stripped, "?") {
		return ParsedEvent{}, false
	}

	matches := numberedLinePattern.FindAllStringSubmatch(stripped, -1)
	if len(matches) < 2 {
		return ParsedEvent{}, false
	}

	options := make([]Option, 0, len(matches))
	for _, m := range matches {
		options = append(options, Option{Label: m[1], Value: strings.TrimSpace(m[2])})
	}

	return ParsedEvent{Type: EventAskUser, Options: options, Content: stripped}, true
}
