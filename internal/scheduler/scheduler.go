// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs the target CLI in headless mode on a recurring
// schedule, records logs, and broadcasts run outcomes.
package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rigshell/agentbridge/internal/binresolve"
	"github.com/rigshell/agentbridge/internal/config"
	"github.com/rigshell/agentbridge/internal/events"
)

const (
	TypeScheduleUpdated   = "schedule:updated"
	TypeScheduleRunComplete = "schedule:run_complete"

	retentionSweepInterval = time.Hour
)

// Preset is one entry in the fixed, closed preset table.
type Preset struct {
	Label         string
	CronExpr      string
	MaxDelay      time.Duration
}

// Presets is the fixed set of schedule presets offered to callers.
var Presets = []Preset{
	{"Daily (morning)", "0 7 * * *", 3 * time.Hour},
	{"Daily (afternoon)", "0 12 * * *", 3 * time.Hour},
	{"Daily (evening)", "0 17 * * *", 3 * time.Hour},
	{"Weekdays (morning)", "0 7 * * 1-5", 3 * time.Hour},
	{"Weekdays (afternoon)", "0 12 * * 1-5", 3 * time.Hour},
	{"Weekdays (evening)", "0 17 * * 1-5", 3 * time.Hour},
	{"Weekly (morning)", "0 7 * * 1", 3 * time.Hour},
	{"Weekly (afternoon)", "0 12 * * 1", 3 * time.Hour},
	{"Weekly (evening)", "0 17 * * 1", 3 * time.Hour},
}

func presetByLabel(label string) (Preset, bool) {
	for _, p := range Presets {
		if p.Label == label {
			return p, true
		}
	}
	return Preset{}, false
}

// LastRun summarizes the most recent firing of a Schedule.
type LastRun struct {
	Timestamp  time.Time `json:"timestamp"`
	ExitCode   int       `json:"exitCode"`
	DurationMs int64     `json:"durationMs"`
}

// Schedule is one recurring headless-run configuration.
type Schedule struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Prompt         string   `json:"prompt"`
	Cwd            string   `json:"cwd"`
	PresetLabel    string   `json:"presetLabel"`
	CronExpression string   `json:"cronExpression"`
	Enabled        bool     `json:"enabled"`
	CreatedAt      time.Time `json:"createdAt"`
	LastRun        *LastRun `json:"lastRun,omitempty"`
}

// RunSummary is one entry in listRuns, newest first.
type RunSummary struct {
	Timestamp string `json:"timestamp"`
	ExitCode  *int   `json:"exitCode"`
}

// Scheduler owns the set of Schedules, their cron registrations, and their
// run logs.
type Scheduler struct {
	binary         string
	binaryOverride string
	dotDir         string
	retention      time.Duration
	bus            events.Bus

	cron *cron.Cron

	mu        sync.Mutex
	schedules map[string]*Schedule
	entries   map[string]cron.EntryID
}

// Config wires a Scheduler's dependencies.
type Config struct {
	Binary         string
	BinaryOverride string
	DotDir         string
	Retention      time.Duration
	Bus            events.Bus
}

// New constructs a Scheduler. Load must be called to populate it from disk
// and start the cron runner.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		binary:         cfg.Binary,
		binaryOverride: cfg.BinaryOverride,
		dotDir:         cfg.DotDir,
		retention:      cfg.Retention,
		bus:            cfg.Bus,
		cron:           cron.New(),
		schedules:      make(map[string]*Schedule),
		entries:        make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) schedulesPath() string { return filepath.Join(s.dotDir, "schedules.json") }
func (s *Scheduler) runsDir() string       { return filepath.Join(s.dotDir, "runs") }

// Load reads the persisted schedule set, registers a cron job for every
// enabled entry, runs an initial retention sweep, starts the cron runner
// and the hourly retention sweep.
func (s *Scheduler) Load() error {
	if err := os.MkdirAll(s.dotDir, 0755); err != nil {
		return fmt.Errorf("scheduler: creating %s: %w", s.dotDir, err)
	}

	data, err := os.ReadFile(s.schedulesPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("scheduler: reading %s: %w", s.schedulesPath(), err)
	}

	var loaded []*Schedule
	if len(data) > 0 {
		if err := json.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("scheduler: parsing %s: %w", s.schedulesPath(), err)
		}
	}

	s.mu.Lock()
	for _, sched := range loaded {
		s.schedules[sched.ID] = sched
		if sched.Enabled {
			s.registerLocked(sched)
		}
	}
	s.mu.Unlock()

	s.sweepRetention()
	s.cron.Start()

	go s.retentionLoop()

	return nil
}

func (s *Scheduler) retentionLoop() {
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		s.sweepRetention()
	}
}

// registerLocked adds a cron entry for sched; caller must hold s.mu.
func (s *Scheduler) registerLocked(sched *Schedule) {
	id, err := s.cron.AddFunc(sched.CronExpression, func() {
		s.fire(sched.ID)
	})
	if err != nil {
		return
	}
	s.entries[sched.ID] = id
}

func (s *Scheduler) unregisterLocked(id string) {
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

// fire applies the random per-firing delay, then executes.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	sched, ok := s.schedules[id]
	s.mu.Unlock()
	if !ok || !sched.Enabled {
		return
	}

	preset, ok := presetByLabel(sched.PresetLabel)
	if !ok {
		return
	}

	delay := randomDuration(preset.MaxDelay)
	time.Sleep(delay)

	s.mu.Lock()
	sched, ok = s.schedules[id]
	s.mu.Unlock()
	if !ok || !sched.Enabled {
		return
	}

	s.execute(sched)
}

func randomDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

// Create registers a new schedule from a preset label.
func (s *Scheduler) Create(name, prompt, cwd, presetLabel string) (*Schedule, error) {
	preset, ok := presetByLabel(presetLabel)
	if !ok {
		return nil, fmt.Errorf("scheduler: unknown preset %q", presetLabel)
	}

	id := newScheduleID()
	sched := &Schedule{
		ID:             id,
		Name:           name,
		Prompt:         prompt,
		Cwd:            config.ExpandHome(cwd),
		PresetLabel:    presetLabel,
		CronExpression: preset.CronExpr,
		Enabled:        true,
		CreatedAt:      time.Now(),
	}

	s.mu.Lock()
	s.schedules[id] = sched
	s.registerLocked(sched)
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return nil, err
	}
	s.broadcastUpdated()

	return sched, nil
}

// Update toggles enabled, (de)registering the cron entry accordingly (spec
// §4.5 update).
func (s *Scheduler) Update(id string, enabled bool) (*Schedule, error) {
	s.mu.Lock()
	sched, ok := s.schedules[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("scheduler: schedule %q not found", id)
	}

	sched.Enabled = enabled
	s.unregisterLocked(id)
	if enabled {
		s.registerLocked(sched)
	}
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return nil, err
	}
	s.broadcastUpdated()

	return sched, nil
}

// Delete removes a schedule and its run-log directory.
func (s *Scheduler) Delete(id string) error {
	s.mu.Lock()
	_, ok := s.schedules[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: schedule %q not found", id)
	}
	s.unregisterLocked(id)
	delete(s.schedules, id)
	s.mu.Unlock()

	os.RemoveAll(filepath.Join(s.runsDir(), id))

	if err := s.persist(); err != nil {
		return err
	}
	s.broadcastUpdated()
	return nil
}

// Trigger executes a schedule immediately, bypassing the random delay (spec
// §4.5 trigger).
func (s *Scheduler) Trigger(id string) error {
	s.mu.Lock()
	sched, ok := s.schedules[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: schedule %q not found", id)
	}
	go s.execute(sched)
	return nil
}

// List returns every schedule, in no particular order.
func (s *Scheduler) List() []*Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, sched)
	}
	return out
}

// ListRuns returns run summaries for id, newest first.
func (s *Scheduler) ListRuns(id string) ([]RunSummary, error) {
	dir := filepath.Join(s.runsDir(), id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	runs := make([]RunSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		ts := strings.TrimSuffix(entry.Name(), ".log")
		exitCode := parseFooterExitCode(filepath.Join(dir, entry.Name()))
		runs = append(runs, RunSummary{Timestamp: ts, ExitCode: exitCode})
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp > runs[j].Timestamp })
	return runs, nil
}

// GetRunLog returns the full text of one run-log file.
func (s *Scheduler) GetRunLog(id, timestamp string) (string, error) {
	path := filepath.Join(s.runsDir(), id, timestamp+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func newScheduleID() string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

func safeTimestamp(t time.Time) string {
	return strings.ReplaceAll(t.Format(time.RFC3339), ":", "-")
}

func (s *Scheduler) persist() error {
	s.mu.Lock()
	list := make([]*Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		list = append(list, sched)
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("scheduler: marshaling: %w", err)
	}

	tmp := s.schedulesPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("scheduler: writing %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.schedulesPath())
}

func (s *Scheduler) broadcastUpdated() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(context.Background(), events.Event{Type: TypeScheduleUpdated})
}

// execute runs the schedule's headless CLI invocation to completion,
// writing the run log and finalizing exactly once.
func (s *Scheduler) execute(sched *Schedule) {
	startedAt := time.Now()

	resolved, err := binresolve.Resolve(s.binary, s.binaryOverride)
	if err != nil {
		s.finalize(sched, startedAt, -1, err)
		return
	}

	runDir := filepath.Join(s.runsDir(), sched.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		s.finalize(sched, startedAt, -1, err)
		return
	}

	logPath := filepath.Join(runDir, safeTimestamp(startedAt)+".log")
	logFile, err := os.Create(logPath)
	if err != nil {
		s.finalize(sched, startedAt, -1, err)
		return
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "# Started: %s\n# Schedule: %s\n# Prompt: %s\n# Cwd: %s\n---\n",
		startedAt.Format(time.RFC3339), sched.Name, sched.Prompt, sched.Cwd)

	cmd := exec.Command(resolved, "-p", sched.Prompt)
	cmd.Dir = sched.Cwd
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), "FORCE_COLOR=0")

	exitCode := 0
	if err := cmd.Run(); err != nil {
		exitCode = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	duration := time.Since(startedAt)
	fmt.Fprintf(logFile, "---\n# Finished: %s\n# Exit code: %d\n# Duration: %dms\n",
		time.Now().Format(time.RFC3339), exitCode, duration.Milliseconds())

	s.recordRun(sched, LastRun{Timestamp: startedAt, ExitCode: exitCode, DurationMs: duration.Milliseconds()})
}

// finalize records a run that never produced a log file, because the
// binary could not be resolved, the run directory could not be created, or
// the log file could not be created.
func (s *Scheduler) finalize(sched *Schedule, startedAt time.Time, exitCode int, err error) {
	s.recordRun(sched, LastRun{Timestamp: startedAt, ExitCode: exitCode, DurationMs: time.Since(startedAt).Milliseconds()})
}

func (s *Scheduler) recordRun(sched *Schedule, run LastRun) {
	s.mu.Lock()
	if current, ok := s.schedules[sched.ID]; ok {
		current.LastRun = &run
	}
	s.mu.Unlock()

	s.persist()

	if s.bus != nil {
		s.bus.Publish(context.Background(), events.Event{
			Type: TypeScheduleRunComplete,
			Payload: map[string]interface{}{
				"scheduleId": sched.ID,
				"name":       sched.Name,
				"exitCode":   run.ExitCode,
				"timestamp":  run.Timestamp,
			},
		})
	}
}

// sweepRetention deletes run-log files older than the retention window and
// removes now-empty per-schedule directories.
func (s *Scheduler) sweepRetention() {
	cutoff := time.Now().Add(-s.retention)

	scheduleDirs, err := os.ReadDir(s.runsDir())
	if err != nil {
		return
	}

	for _, scheduleDir := range scheduleDirs {
		if !scheduleDir.IsDir() {
			continue
		}
		dir := filepath.Join(s.runsDir(), scheduleDir.Name())

		logFiles, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		remaining := 0
		for _, f := range logFiles {
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				os.Remove(filepath.Join(dir, f.Name()))
				continue
			}
			remaining++
		}

		if remaining == 0 {
			os.Remove(dir)
		}
	}
}

// parseFooterExitCode scans a run-log's footer for its exit code; the
// footer is the authoritative parse target.
func parseFooterExitCode(path string) *int {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	const marker = "# Exit code: "
	idx := strings.LastIndex(string(data), marker)
	if idx < 0 {
		return nil
	}
	rest := string(data)[idx+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	var code int
	if _, err := fmt.Sscanf(strings.TrimSpace(rest), "%d", &code); err != nil {
		return nil
	}
	return &code
}

// Stop halts the cron runner, waiting for any in-flight job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
