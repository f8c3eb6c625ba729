package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"matinee.app/mcp-matinee/internal/control"
	"matinee.app/mcp-matinee/internal/domain"
	"matinee.app/mcp-matinee/internal/player"
)

const defaultQuitWait = 2 * time.Second

type Launcher interface {
	Launch(entry domain.MediaEntry, endpoint string, loop bool) (*player.Process, error)
}

type ControlChannel interface {
	Send(ctx context.Context, endpoint string, cmd control.Command) (*control.Reply, error)
}

// Session owns the single tracked player process. Every state read and
// transition happens under the mutex, which stays held for the full
// control-channel round trip a command triggers.
type Session struct {
	launcher Launcher
	channel  ControlChannel
	logger   *slog.Logger
	quitWait time.Duration
	waitExit func(p *player.Process, d time.Duration) bool
	kill     func(p *player.Process) error

	mu      sync.Mutex
	current *player.Process
}

func New(launcher Launcher, channel ControlChannel, logger *slog.Logger) *Session {
	return &Session{
		launcher: launcher,
		channel:  channel,
		logger:   logger,
		quitWait: defaultQuitWait,
		waitExit: (*player.Process).ExitedWithin,
		kill:     (*player.Process).Kill,
	}
}

// Play launches a player for the given catalog entry and tracks it. A
// fresh control socket path is allocated per launch so a lingering
// prior player can never hold the new instance's endpoint. When a
// process is already tracked it is replaced without being terminated;
// the orphaned process keeps running untracked.
func (s *Session) Play(_ context.Context, entry domain.MediaEntry, loop bool) (*domain.PlayResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proc, err := s.launcher.Launch(entry, newEndpointPath(), loop)
	if err != nil {
		return nil, err
	}

	replaced := s.current
	s.current = proc

	result := &domain.PlayResult{
		OK:             true,
		File:           proc.File,
		Player:         proc.Binary,
		PID:            proc.PID,
		ControlEnabled: proc.ControlEndpoint != "",
	}
	if replaced != nil {
		result.ReplacedPID = replaced.PID
		s.logWarn("replacing tracked player process; previous process is left running",
			slog.Int("orphaned_pid", replaced.PID),
			slog.String("orphaned_file", replaced.File))
	}
	return result, nil
}

// Stop ends the tracked session. The quit command is best-effort: the
// tracked state is cleared no matter how the player answers.
func (s *Session) Stop(ctx context.Context) (*domain.StopResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proc := s.current
	if proc == nil {
		return &domain.StopResult{OK: true, WasPlaying: false}, nil
	}

	if proc.ControlEndpoint != "" {
		if _, err := s.channel.Send(ctx, proc.ControlEndpoint, control.Command{Tokens: []any{"quit"}}); err != nil {
			s.logWarn("quit command failed", slog.String("error", err.Error()))
		}
		if !s.waitExit(proc, s.quitWait) {
			if err := s.kill(proc); err != nil {
				s.logWarn("failed to kill player process", slog.Int("pid", proc.PID), slog.String("error", err.Error()))
			}
		}
	} else if err := s.kill(proc); err != nil {
		s.logWarn("failed to kill player process", slog.Int("pid", proc.PID), slog.String("error", err.Error()))
	}

	s.current = nil
	return &domain.StopResult{OK: true, WasPlaying: true, File: proc.File}, nil
}

// Invoke forwards a guarded transport-control operation to the active
// player. It fails before any connection attempt when nothing is
// playing or the player exposes no control socket.
func (s *Session) Invoke(ctx context.Context, op domain.Op, seconds int) (*domain.ControlResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proc := s.current
	if proc == nil {
		return nil, noActiveSessionError()
	}
	if proc.ControlEndpoint == "" {
		return nil, noRemoteControlError(proc.Binary)
	}

	cmd, ok := commandFor(op, seconds)
	if !ok {
		return nil, unknownOperationError(op)
	}
	if _, err := s.channel.Send(ctx, proc.ControlEndpoint, cmd); err != nil {
		return nil, err
	}
	return &domain.ControlResult{OK: true, Command: cmd.String()}, nil
}

func (s *Session) NowPlaying() *domain.NowPlayingResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	proc := s.current
	if proc == nil {
		return &domain.NowPlayingResult{OK: true, Playing: false}
	}
	return &domain.NowPlayingResult{
		OK:             true,
		Playing:        true,
		File:           proc.File,
		Player:         proc.Binary,
		StartedAt:      proc.StartedAt.UTC().Format(time.RFC3339),
		ControlEnabled: proc.ControlEndpoint != "",
	}
}

func commandFor(op domain.Op, seconds int) (control.Command, bool) {
	switch op {
	case domain.OpPause:
		return control.Command{Tokens: []any{"cycle", "pause"}, ExpectsReply: true}, true
	case domain.OpSeekForward:
		return control.Command{Tokens: []any{"seek", seconds, "relative"}, ExpectsReply: true}, true
	case domain.OpSeekBackward:
		return control.Command{Tokens: []any{"seek", -seconds, "relative"}, ExpectsReply: true}, true
	case domain.OpNextChapter:
		return control.Command{Tokens: []any{"add", "chapter", 1}, ExpectsReply: true}, true
	case domain.OpPreviousChapter:
		return control.Command{Tokens: []any{"add", "chapter", -1}, ExpectsReply: true}, true
	case domain.OpToggleLoop:
		return control.Command{Tokens: []any{"cycle", "loop-file"}, ExpectsReply: true}, true
	case domain.OpRestart:
		return control.Command{Tokens: []any{"seek", 0, "absolute"}, ExpectsReply: true}, true
	}
	return control.Command{}, false
}

func unknownOperationError(op domain.Op) *domain.ToolError {
	return &domain.ToolError{
		Code:    "INTERNAL_ERROR",
		Message: fmt.Sprintf("no player command mapped for operation %d", int(op)),
	}
}

func (s *Session) logWarn(msg string, attrs ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Log(context.Background(), slog.LevelWarn, msg, attrs...)
}

func newEndpointPath() string {
	return filepath.Join(os.TempDir(), "mpv-ipc-"+randomToken(8)+".sock")
}

func randomToken(bytesLen int) string {
	if bytesLen <= 0 {
		bytesLen = 8
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "fallback"
	}
	return hex.EncodeToString(buf)
}

func noActiveSessionError() *domain.ToolError {
	return &domain.ToolError{
		Code:    "NO_ACTIVE_SESSION",
		Message: "no media is currently playing",
		SuggestedFixes: []string{
			"Start playback with play_movie first.",
		},
	}
}

func noRemoteControlError(binary string) *domain.ToolError {
	return &domain.ToolError{
		Code:    "NO_ACTIVE_SESSION",
		Message: fmt.Sprintf("the current player (%s) does not support remote control", binary),
		Limitations: []domain.Limitation{{
			Code:    "PLAYER_NO_IPC",
			Message: "Only mpv playback exposes a control socket.",
		}},
		SuggestedFixes: []string{
			"Install mpv so playback can be controlled remotely.",
			"Stop and start playback again once mpv is available.",
		},
		Details: map[string]any{
			"player": binary,
		},
	}
}
