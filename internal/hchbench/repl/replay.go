package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
)

// replayEntry is one line of a --replay-log transcript: the exact
// rendering a driver was shown, and the action text it answered with.
type replayEntry struct {
	Rendering string `json:"rendering"`
	Action    string `json:"action"`
}

// ReplayDriver answers every Prompt from a recorded transcript when the
// rendering matches exactly, and otherwise falls through to an underlying
// driver (a human, typically) — recording that fresh answer so later runs
// against the same log file replay it too.
type ReplayDriver struct {
	recorded map[string]string
	under    Driver
	logPath  string
	writer   io.WriteCloser
}

// Driver mirrors scheduler.Driver without importing the scheduler package,
// since repl must not depend on scheduler (the wiring layer depends on
// both, not the other way around).
type Driver interface {
	Prompt(rendering string) (string, error)
	ReportError(err error)
}

// NewReplayDriver loads path (if it exists) into a lookup table and opens
// it for append so new exchanges with under are recorded as they happen.
func NewReplayDriver(path string, under Driver) (*ReplayDriver, error) {
	recorded := map[string]string{}
	if f, err := os.Open(path); err == nil {
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			var e replayEntry
			if err := sonic.Unmarshal(sc.Bytes(), &e); err != nil {
				f.Close()
				return nil, fmt.Errorf("repl: malformed replay log line: %w", err)
			}
			recorded[e.Rendering] = e.Action
		}
		f.Close()
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("repl: read replay log: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("repl: open replay log: %w", err)
	}

	w, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("repl: open replay log for append: %w", err)
	}
	return &ReplayDriver{recorded: recorded, under: under, logPath: path, writer: w}, nil
}

// Close flushes the underlying log file handle.
func (r *ReplayDriver) Close() error { return r.writer.Close() }

func (r *ReplayDriver) Prompt(rendering string) (string, error) {
	if text, ok := r.recorded[rendering]; ok {
		return text, nil
	}
	text, err := r.under.Prompt(rendering)
	if err != nil {
		return "", err
	}
	data, merr := sonic.Marshal(replayEntry{Rendering: rendering, Action: text})
	if merr == nil {
		r.writer.Write(append(data, '\n'))
	}
	r.recorded[rendering] = text
	return text, nil
}

func (r *ReplayDriver) ReportError(err error) { r.under.ReportError(err) }

// NoteAutomationReplay forwards a scheduler.AutomationObserver notification
// to under, so wrapping a Terminal in a ReplayDriver doesn't silence its
// cache-hit notices.
func (r *ReplayDriver) NoteAutomationReplay(rendering string) {
	if obs, ok := r.under.(interface{ NoteAutomationReplay(string) }); ok {
		obs.NoteAutomationReplay(rendering)
	}
}
