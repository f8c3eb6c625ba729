package player

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"matinee.app/mcp-matinee/internal/domain"
)

type candidate struct {
	binary string
	label  string
	ipc    bool
	args   func(path, endpoint string, loop bool) []string
}

func (c candidate) displayName() string {
	if c.label != "" {
		return c.label
	}
	return c.binary
}

func mpvCandidate() candidate {
	return candidate{
		binary: "mpv",
		ipc:    true,
		args: func(path, endpoint string, loop bool) []string {
			args := []string{"--input-ipc-server=" + endpoint, path}
			if loop {
				args = append([]string{"--loop=inf"}, args...)
			}
			return args
		},
	}
}

func fileOnlyArgs(path, _ string, _ bool) []string {
	return []string{path}
}

// CandidateInfo describes one launchable player, in launch priority order.
type CandidateInfo struct {
	Binary  string
	Control bool
}

// Candidates lists the players this platform knows how to launch.
func Candidates() []CandidateInfo {
	all := platformCandidates()
	infos := make([]CandidateInfo, 0, len(all))
	for _, cand := range all {
		infos = append(infos, CandidateInfo{Binary: cand.binary, Control: cand.ipc})
	}
	return infos
}

// Process is one spawned player. The handle is owned by the playback
// session; a process dropped from tracking keeps running on its own.
type Process struct {
	PID             int
	Binary          string
	File            string
	ControlEndpoint string
	StartedAt       time.Time

	cmd  *exec.Cmd
	done chan struct{}
}

func newProcess(cmd *exec.Cmd, cand candidate, file, endpoint string, startedAt time.Time) *Process {
	p := &Process{
		Binary:    cand.displayName(),
		File:      file,
		StartedAt: startedAt,
		cmd:       cmd,
		done:      make(chan struct{}),
	}
	if cand.ipc {
		p.ControlEndpoint = endpoint
	}
	if cmd.Process != nil {
		p.PID = cmd.Process.Pid
		go func() {
			_ = cmd.Wait()
			close(p.done)
		}()
	} else {
		close(p.done)
	}
	return p
}

// ExitedWithin waits up to d for the process to exit on its own.
func (p *Process) ExitedWithin(d time.Duration) bool {
	if p == nil || p.done == nil {
		return true
	}
	select {
	case <-p.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (p *Process) Kill() error {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

type Launcher struct {
	all      []candidate
	lookPath func(file string) (string, error)
	start    func(cmd *exec.Cmd) error
	now      func() time.Time

	once     sync.Once
	resolved []resolvedCandidate
}

type resolvedCandidate struct {
	candidate
	path string
}

func NewLauncher() *Launcher {
	return &Launcher{
		all:      platformCandidates(),
		lookPath: exec.LookPath,
		start:    func(cmd *exec.Cmd) error { return cmd.Start() },
		now:      time.Now,
	}
}

// Prefer moves the named player to the front of the candidate order.
// Unknown names are ignored. Must be called before the first Launch.
func (l *Launcher) Prefer(binary string) {
	if binary == "" {
		return
	}
	for i, cand := range l.all {
		if !strings.EqualFold(cand.binary, binary) && !strings.EqualFold(cand.label, binary) {
			continue
		}
		reordered := make([]candidate, 0, len(l.all))
		reordered = append(reordered, cand)
		reordered = append(reordered, l.all[:i]...)
		reordered = append(reordered, l.all[i+1:]...)
		l.all = reordered
		return
	}
}

func (l *Launcher) resolve() []resolvedCandidate {
	l.once.Do(func() {
		for _, cand := range l.all {
			path, err := l.lookPath(cand.binary)
			if err != nil {
				continue
			}
			l.resolved = append(l.resolved, resolvedCandidate{candidate: cand, path: path})
		}
	})
	return l.resolved
}

// Launch starts the highest-ranked available player for the given file.
// The control endpoint is recorded on the process only when the chosen
// player supports IPC; fallback players receive just the file path.
func (l *Launcher) Launch(entry domain.MediaEntry, endpoint string, loop bool) (*Process, error) {
	resolved := l.resolve()
	if len(resolved) == 0 {
		return nil, noPlayerAvailableError(l.triedBinaries())
	}

	cand := resolved[0]
	cmd := exec.Command(cand.path, cand.args(entry.Path, endpoint, loop)...)
	if err := l.start(cmd); err != nil {
		return nil, playerStartError(cand.displayName(), err)
	}

	return newProcess(cmd, cand.candidate, entry.Name, endpoint, l.now()), nil
}

func (l *Launcher) triedBinaries() []string {
	tried := make([]string, 0, len(l.all))
	for _, cand := range l.all {
		tried = append(tried, cand.displayName())
	}
	return tried
}

func noPlayerAvailableError(tried []string) *domain.ToolError {
	return &domain.ToolError{
		Code:    "NO_PLAYER_AVAILABLE",
		Message: fmt.Sprintf("no media player found (tried: %s)", strings.Join(tried, ", ")),
		Limitations: []domain.Limitation{{
			Code:    "PLAYER_BINARY_MISSING",
			Message: "Playback requires at least one supported player binary in PATH.",
		}},
		SuggestedFixes: []string{
			"Linux: install mpv with your package manager (for example: sudo apt install mpv).",
			"macOS: install mpv with Homebrew (brew install mpv).",
			"Windows: install mpv and add mpv.exe to PATH, then verify with `where mpv`.",
		},
		Details: map[string]any{
			"tried": tried,
		},
	}
}

func playerStartError(binary string, cause error) *domain.ToolError {
	return &domain.ToolError{
		Code:    "INTERNAL_ERROR",
		Message: fmt.Sprintf("failed to start %s: %v", binary, cause),
		Details: map[string]any{
			"binary": binary,
		},
	}
}
