// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package multiplex

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rigshell/agentbridge/internal/events"
	"github.com/rigshell/agentbridge/internal/prefs"
	"github.com/rigshell/agentbridge/internal/ptysession"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	previewChars = 150

	// sendQueueSize bounds the per-client outbound queue. A client that
	// cannot drain this many frames before the queue fills is treated as
	// stalled: per spec §5/§9 "Backpressure", the connection is closed
	// rather than blocking the publisher (which may be a session's own
	// PTY read loop).
	sendQueueSize = 256
)

// outboundFrame is one queued write: either a control event (BinaryMessage),
// raw PTY output (TextMessage), or a keepalive (PingMessage).
type outboundFrame struct {
	msgType int
	data    []byte
}

// Client is the state machine for one connection. Every outbound write is
// queued onto sendCh and flushed by writeLoop in its own goroutine, so a
// slow reader on the far end never blocks the publisher — whether that's
// the hub's 5s status broadcast, the scheduler's completion broadcast, or a
// session's own PTY pump delivering output. Enqueue is non-blocking: if the
// queue is already full the connection is torn down instead of stalling
// whoever is publishing.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	sendCh    chan outboundFrame
	doneCh    chan struct{}
	closeOnce sync.Once

	authenticated atomic.Bool

	mu        sync.Mutex
	sessionID string
	outputSub events.SubscriptionID
	exitSub   events.SubscriptionID
	exitFired bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		sendCh: make(chan outboundFrame, sendQueueSize),
		doneCh: make(chan struct{}),
	}
}

// closeConn tears the connection down at most once. Called both when the
// send queue overflows and when the write loop observes a write error.
func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		close(c.doneCh)
		c.conn.Close()
	})
}

// enqueue queues a frame for the write loop without blocking. If the queue
// is full the connection is closed rather than stalling the caller — which
// may be holding up a PTY read loop or the hub's broadcast fan-out.
func (c *Client) enqueue(msgType int, data []byte) {
	select {
	case <-c.doneCh:
		return
	default:
	}
	select {
	case c.sendCh <- outboundFrame{msgType: msgType, data: data}:
	case <-c.doneCh:
	default:
		log.Printf("multiplex: client send queue full, closing connection")
		c.closeConn()
	}
}

// writeLoop is the sole goroutine that calls conn.WriteMessage, draining
// sendCh in order so that, per spec §5, a session's byte stream reaches the
// client as the exact concatenation of PTY reads in read order.
func (c *Client) writeLoop() {
	for {
		select {
		case <-c.doneCh:
			return
		case frame := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(frame.msgType, frame.data); err != nil {
				c.closeConn()
				return
			}
		}
	}
}

func (c *Client) isAuthenticated() bool { return c.authenticated.Load() }

// run starts the write loop and reads frames until the connection closes.
func (c *Client) run() {
	defer c.closeConn()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writeLoop()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-c.doneCh:
				return
			case <-pingTicker.C:
				c.enqueue(websocket.PingMessage, nil)
			}
		}
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			c.handleControlFrame(data)
		case websocket.TextMessage:
			c.handleTextFrame(data)
		}
	}
}

// handleTextFrame forwards raw input to the attached session's PTY,
// dropping it silently if unauthenticated or unattached.
func (c *Client) handleTextFrame(data []byte) {
	if !c.isAuthenticated() {
		return
	}
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		return
	}
	sess, ok := c.hub.sessions.Get(sessionID)
	if !ok {
		return
	}
	sess.Write(data)
}

// handleControlFrame parses and dispatches one binary command.
func (c *Client) handleControlFrame(data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.writeError("malformed command")
		return
	}

	if !c.isAuthenticated() && cmd.Type != CmdAuth {
		c.writeError("not authenticated")
		return
	}

	switch cmd.Type {
	case CmdAuth:
		c.handleAuth(cmd)
	case CmdPreferencesSet:
		c.handlePreferencesSet(cmd)
	case CmdSessionList:
		c.handleSessionList()
	case CmdSessionDiscover:
		c.handleSessionDiscover()
	case CmdSessionCreate:
		c.handleSessionCreate(cmd)
	case CmdSessionAttach:
		c.handleSessionAttach(cmd)
	case CmdSessionAdopt:
		c.handleSessionAdopt(cmd)
	case CmdSessionDestroy:
		c.handleSessionDestroy(cmd)
	case CmdResize:
		c.handleResize(cmd)
	case CmdImageUpload:
		c.handleImageUpload(cmd)
	case CmdScheduleCreate:
		c.handleScheduleCreate(cmd)
	case CmdScheduleUpdate:
		c.handleScheduleUpdate(cmd)
	case CmdScheduleDelete:
		c.handleScheduleDelete(cmd)
	case CmdScheduleTrigger:
		c.handleScheduleTrigger(cmd)
	case CmdScheduleList:
		c.handleScheduleList()
	case CmdScheduleRuns:
		c.handleScheduleRuns(cmd)
	case CmdScheduleLog:
		c.handleScheduleLog(cmd)
	default:
		c.writeError(fmt.Sprintf("unknown command %q", cmd.Type))
	}
}

func (c *Client) handleAuth(cmd command) {
	if !c.hub.gate.Check(cmd.Token) {
		c.writeEvent(event{Type: EvtAuthFailed, Error: "invalid token"})
		return
	}
	c.authenticated.Store(true)
	c.writeEvent(event{Type: EvtAuthSuccess, Preferences: c.hub.prefs.Get()})
}

func (c *Client) handlePreferencesSet(cmd command) {
	if cmd.Preferences == nil {
		c.writeError("preferences:set requires preferences")
		return
	}
	p := prefs.Preferences{NotificationsEnabled: cmd.Preferences.NotificationsEnabled}
	if err := c.hub.prefs.Set(p); err != nil {
		c.writeError(err.Error())
	}
}

func (c *Client) handleSessionList() {
	c.writeEvent(event{Type: EvtSessionList, Sessions: c.hub.sessions.List()})
}

func (c *Client) handleSessionDiscover() {
	externals, err := c.hub.sessions.DiscoverExternal()
	if err != nil {
		c.writeError(err.Error())
		return
	}
	c.writeEvent(event{Type: EvtSessionDiscovered, Sessions: externals})
}

func (c *Client) handleSessionCreate(cmd command) {
	cwd := cmd.Cwd
	if cwd == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			c.writeError(err.Error())
			return
		}
	}

	sess, err := c.hub.sessions.Create(cwd, nil)
	if err != nil {
		c.writeError(err.Error())
		return
	}

	c.writeEvent(event{Type: EvtSessionCreated, Session: sess.Info()})
	c.attachTo(sess, false)
}

func (c *Client) handleSessionAttach(cmd command) {
	if cmd.SessionID == "" {
		c.writeError("session:attach requires sessionId")
		return
	}
	sess, ok := c.hub.sessions.Get(cmd.SessionID)
	if !ok {
		c.writeError(fmt.Sprintf("session %q not found", cmd.SessionID))
		return
	}
	c.attachTo(sess, cmd.HasCache)
}

func (c *Client) handleSessionAdopt(cmd command) {
	if cmd.PID == 0 || cmd.Cwd == "" {
		c.writeError("session:adopt requires pid and cwd")
		return
	}
	sess, err := c.hub.sessions.Adopt(cmd.PID, cmd.Cwd)
	if err != nil {
		c.writeError(err.Error())
		return
	}
	c.writeEvent(event{Type: EvtSessionCreated, Session: sess.Info(), IsAdopted: true})
	c.attachTo(sess, false)
}

func (c *Client) handleSessionDestroy(cmd command) {
	if cmd.SessionID == "" {
		c.writeError("session:destroy requires sessionId")
		return
	}
	c.hub.sessions.Destroy(cmd.SessionID)

	c.mu.Lock()
	if c.sessionID == cmd.SessionID {
		c.detachLocked()
	}
	c.mu.Unlock()

	c.writeEvent(event{Type: EvtSessionDestroyed, SessionID: cmd.SessionID})
}

func (c *Client) handleResize(cmd command) {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		return
	}
	if sess, ok := c.hub.sessions.Get(sessionID); ok {
		sess.Resize(cmd.Cols, cmd.Rows)
	}
}

// uploadScratchDir is the per-session scratch directory image uploads are
// written to (SPEC_FULL.md §4 "Image upload control command"), keeping
// uploads from two different sessions from colliding on filename. A client
// with no attached session falls back to a fixed "unattached" bucket.
func (c *Client) uploadScratchDir() string {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		sessionID = "unattached"
	}
	return filepath.Join(c.hub.uploadDir, sessionID)
}

func (c *Client) handleImageUpload(cmd command) {
	if cmd.Data == "" || cmd.MimeType == "" {
		c.writeError("image:upload requires data and mimeType")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(cmd.Data)
	if err != nil {
		c.writeError("invalid base64 image data")
		return
	}

	name := cmd.Filename
	if name == "" {
		name = fmt.Sprintf("upload-%d%s", time.Now().UnixNano(), extensionFor(cmd.MimeType))
	}
	name = filepath.Base(name)

	dir := c.uploadScratchDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.writeError(err.Error())
		return
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		c.writeError(err.Error())
		return
	}

	c.writeEvent(event{Type: EvtImageUploaded, Path: path})
}

func extensionFor(mimeType string) string {
	if idx := strings.LastIndex(mimeType, "/"); idx >= 0 {
		return "." + mimeType[idx+1:]
	}
	return ""
}

func (c *Client) handleScheduleCreate(cmd command) {
	sched, err := c.hub.schedules.Create(cmd.Name, cmd.Prompt, cmd.Cwd, cmd.Preset)
	if err != nil {
		c.writeError(err.Error())
		return
	}
	c.writeEvent(event{Type: EvtScheduleUpdated, Schedule: sched})
}

func (c *Client) handleScheduleUpdate(cmd command) {
	if cmd.ScheduleID == "" || cmd.Enabled == nil {
		c.writeError("schedule:update requires scheduleId and enabled")
		return
	}
	sched, err := c.hub.schedules.Update(cmd.ScheduleID, *cmd.Enabled)
	if err != nil {
		c.writeError(err.Error())
		return
	}
	c.writeEvent(event{Type: EvtScheduleUpdated, Schedule: sched})
}

func (c *Client) handleScheduleDelete(cmd command) {
	if cmd.ScheduleID == "" {
		c.writeError("schedule:delete requires scheduleId")
		return
	}
	if err := c.hub.schedules.Delete(cmd.ScheduleID); err != nil {
		c.writeError(err.Error())
		return
	}
	c.writeEvent(event{Type: EvtScheduleUpdated, Deleted: cmd.ScheduleID})
}

func (c *Client) handleScheduleTrigger(cmd command) {
	if cmd.ScheduleID == "" {
		c.writeError("schedule:trigger requires scheduleId")
		return
	}
	if err := c.hub.schedules.Trigger(cmd.ScheduleID); err != nil {
		c.writeError(err.Error())
		return
	}
	c.writeEvent(event{Type: EvtScheduleTriggered, ScheduleID: cmd.ScheduleID})
}

func (c *Client) handleScheduleList() {
	c.writeEvent(event{Type: EvtScheduleList, Schedules: c.hub.schedules.List()})
}

func (c *Client) handleScheduleRuns(cmd command) {
	if cmd.ScheduleID == "" {
		c.writeError("schedule:runs requires scheduleId")
		return
	}
	runs, err := c.hub.schedules.ListRuns(cmd.ScheduleID)
	if err != nil {
		c.writeError(err.Error())
		return
	}
	c.writeEvent(event{Type: EvtScheduleRuns, ScheduleID: cmd.ScheduleID, Runs: runs})
}

func (c *Client) handleScheduleLog(cmd command) {
	if cmd.ScheduleID == "" || cmd.Timestamp == "" {
		c.writeError("schedule:log requires scheduleId and timestamp")
		return
	}
	content, err := c.hub.schedules.GetRunLog(cmd.ScheduleID, cmd.Timestamp)
	if err != nil {
		c.writeError(err.Error())
		return
	}
	c.writeEvent(event{Type: EvtScheduleLog, ScheduleID: cmd.ScheduleID, Timestamp: cmd.Timestamp, Content: content})
}

// attachTo rebinds the client to sess, releasing any previous subscription
// deterministically before subscribing to the new one.
func (c *Client) attachTo(sess *ptysession.Session, hasCache bool) {
	c.mu.Lock()
	c.detachLocked()
	c.sessionID = sess.ID()
	c.exitFired = false
	sessionID := sess.ID()

	outputSub, _ := c.hub.bus.Subscribe(events.TypeOutput, func(ctx context.Context, e events.Event) {
		c.onOutput(sessionID, e)
	})
	exitSub, _ := c.hub.bus.Subscribe(events.TypeExit, func(ctx context.Context, e events.Event) {
		c.onExit(sessionID, e)
	})
	c.outputSub = outputSub
	c.exitSub = exitSub
	c.mu.Unlock()

	c.writeEvent(event{Type: EvtSessionAttached, Session: sess.Info()})

	if !hasCache {
		if history := sess.History(); len(history) > 0 {
			c.writeText(history)
		}
	}
}

func (c *Client) onOutput(sessionID string, e events.Event) {
	if stringField(e.Payload, "sessionId") != sessionID {
		return
	}
	c.mu.Lock()
	stillAttached := c.sessionID == sessionID
	c.mu.Unlock()
	if !stillAttached {
		return
	}

	if raw, ok := e.Payload["raw"].(string); ok {
		c.writeText([]byte(raw))
	}

	parsed, ok := e.Payload["event"].(ptysession.ParsedEvent)
	if ok && parsed.Type == ptysession.EventAskUser {
		c.emitInputRequired(sessionID, parsed)
	}
}

func (c *Client) emitInputRequired(sessionID string, parsed ptysession.ParsedEvent) {
	sess, ok := c.hub.sessions.Get(sessionID)
	name := sessionID
	if ok {
		name = filepath.Base(sess.Cwd())
	}

	preview := parsed.Content
	if len(preview) > previewChars {
		preview = preview[:previewChars]
	}

	c.writeEvent(event{
		Type:        EvtSessionInputRequired,
		SessionID:   sessionID,
		SessionName: name,
		Preview:     preview,
	})
}

// onExit fires session:exit at most once per attachment.
func (c *Client) onExit(sessionID string, e events.Event) {
	if stringField(e.Payload, "sessionId") != sessionID {
		return
	}

	c.mu.Lock()
	if c.sessionID != sessionID || c.exitFired {
		c.mu.Unlock()
		return
	}
	c.exitFired = true
	c.mu.Unlock()

	c.writeEvent(event{Type: EvtSessionExit, SessionID: sessionID, ExitCode: intField(e.Payload, "exitCode")})
}

// detach unbinds the client from its current session, if any, detaching
// both handlers unconditionally.
func (c *Client) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachLocked()
}

func (c *Client) detachLocked() {
	if c.outputSub != "" {
		c.hub.bus.Unsubscribe(c.outputSub)
		c.outputSub = ""
	}
	if c.exitSub != "" {
		c.hub.bus.Unsubscribe(c.exitSub)
		c.exitSub = ""
	}
	c.sessionID = ""
}

// writeEvent queues a control event. Queueing, not writing, is what makes
// this safe to call from the bus's publishing goroutine — which may be a
// session's own PTY pump — without risking that goroutine blocking on a
// slow client.
func (c *Client) writeEvent(evt event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.enqueue(websocket.BinaryMessage, data)
}

func (c *Client) writeText(data []byte) {
	c.enqueue(websocket.TextMessage, data)
}

func (c *Client) writeError(msg string) {
	c.writeEvent(event{Type: EvtError, Error: msg})
}
