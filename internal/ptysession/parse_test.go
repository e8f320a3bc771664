// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ptysession

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_PlainText(t *testing.T) {
	ev := classify([]byte("just some output\n"))
	assert.Equal(t, EventText, ev.Type)
	assert.Equal(t, "just some output", ev.Content[:len("just some output")])
}

func TestClassify_ToolStart(t *testing.T) {
	ev := classify([]byte("Running Bash(ls -la)..."))
	assert.Equal(t, EventToolStart, ev.Type)
	assert.Equal(t, "Bash", ev.ToolName)
}

func TestClassify_Diff(t *testing.T) {
	ev := classify([]byte("@@ -1,2 +1,3 @@\n+added line\n-removed line\n"))
	assert.Equal(t, EventDiff, ev.Type)
}

func TestClassify_AskUser(t *testing.T) {
	chunk := "Which option do you want?\n1. Keep going\n2. Stop now\n"
	ev := classify([]byte(chunk))
	assert.Equal(t, EventAskUser, ev.Type)
	assert.Len(t, ev.Options, 2)
	assert.Equal(t, "1", ev.Options[0].Label)
	assert.Equal(t, "Keep going", ev.Options[0].Value)
	assert.Equal(t, "2", ev.Options[1].Label)
	assert.Equal(t, "Stop now", ev.Options[1].Value)
}

func TestClassify_AskUser_RequiresTwoNumberedLines(t *testing.T) {
	chunk := "Do you agree?\n1. Yes\n"
	ev := classify([]byte(chunk))
	assert.NotEqual(t, EventAskUser, ev.Type)
}

func TestClassify_AskUser_RequiresQuestionMark(t *testing.T) {
	chunk := "Pick one.\n1. Yes\n2. No\n"
	ev := classify([]byte(chunk))
	assert.NotEqual(t, EventAskUser, ev.Type)
}

func TestStripANSI(t *testing.T) {
	input := "\x1b[32mgreen\x1b[0m text"
	assert.Equal(t, "green text", stripANSI(input))
}
