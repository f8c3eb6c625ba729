package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"matinee.app/mcp-matinee/internal/catalog"
	"matinee.app/mcp-matinee/internal/domain"
)

func (s *Server) callListMovies(id json.RawMessage, rawArgs json.RawMessage) *response {
	startedAt := time.Now()

	if s.catalog == nil {
		return s.toolInternalError("list_movies", "", startedAt, id, "media catalog is not configured")
	}

	var args struct{}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.invalidParams("list_movies", "", startedAt, id)
	}

	entries, err := s.catalog.Scan()
	if err != nil {
		if errors.Is(err, catalog.ErrDirectoryNotFound) {
			s.logCall("list_movies", "", startedAt, "")
			return resultResponse(id, toolCallResult{
				Content: []toolContent{{
					Type: "text",
					Text: fmt.Sprintf("Media directory does not exist: %s", s.catalog.Dir()),
				}},
			})
		}
		s.logCall("list_movies", "", startedAt, "INTERNAL_ERROR")
		return resultResponse(id, toolErrorResult("INTERNAL_ERROR", err.Error()))
	}
	s.logCall("list_movies", "", startedAt, "")

	if len(entries) == 0 {
		return resultResponse(id, toolCallResult{
			Content: []toolContent{{
				Type: "text",
				Text: fmt.Sprintf("No media files found in %s", s.catalog.Dir()),
			}},
			StructuredContent: domain.ListMoviesResult{
				OK:        true,
				Directory: s.catalog.Dir(),
				Count:     0,
				Entries:   []domain.MediaEntry{},
			},
		})
	}

	return resultResponse(id, toolCallResult{
		Content: []toolContent{{
			Type: "text",
			Text: formatMediaList(s.catalog.Dir(), entries),
		}},
		StructuredContent: domain.ListMoviesResult{
			OK:        true,
			Directory: s.catalog.Dir(),
			Count:     len(entries),
			Entries:   entries,
		},
	})
}

func (s *Server) callPlayMovie(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) *response {
	startedAt := time.Now()

	if s.catalog == nil || s.playback == nil {
		return s.toolInternalError("play_movie", "", startedAt, id, "playback is not configured")
	}

	var args struct {
		Filename string `json:"filename"`
		Loop     *bool  `json:"loop,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.invalidParams("play_movie", "", startedAt, id)
	}
	args.Filename = strings.TrimSpace(args.Filename)
	if args.Filename == "" {
		return s.invalidParams("play_movie", "", startedAt, id)
	}
	loop := args.Loop != nil && *args.Loop

	entries, err := s.catalog.Scan()
	if err != nil {
		if errors.Is(err, catalog.ErrDirectoryNotFound) {
			notFound := &domain.ToolError{
				Code:    "NOT_FOUND",
				Message: fmt.Sprintf("media directory does not exist: %s", s.catalog.Dir()),
			}
			s.logCall("play_movie", args.Filename, startedAt, notFound.Code)
			return resultResponse(id, toolErrorResultFromError(notFound))
		}
		s.logCall("play_movie", args.Filename, startedAt, "INTERNAL_ERROR")
		return resultResponse(id, toolErrorResult("INTERNAL_ERROR", err.Error()))
	}

	entry, ok := findEntry(entries, args.Filename)
	if !ok {
		notFound := notFoundError(args.Filename, entryNames(entries))
		s.logCall("play_movie", args.Filename, startedAt, notFound.Code)
		return resultResponse(id, toolErrorResultFromError(notFound))
	}

	result, err := s.playback.Play(ctx, entry, loop)
	if err != nil {
		s.logCall("play_movie", args.Filename, startedAt, toolErrorCode(err))
		return resultResponse(id, toolErrorResultFromError(err))
	}
	s.logCall("play_movie", result.File, startedAt, "")

	text := fmt.Sprintf("Playing %s with %s (no IPC control)", result.File, result.Player)
	if result.ControlEnabled {
		text = fmt.Sprintf("Playing %s with %s (IPC enabled)", result.File, result.Player)
	}
	return resultResponse(id, toolCallResult{
		Content:           []toolContent{{Type: "text", Text: text}},
		StructuredContent: result,
	})
}

func (s *Server) callStopPlayback(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) *response {
	startedAt := time.Now()

	if s.playback == nil {
		return s.toolInternalError("stop_playback", "", startedAt, id, "playback is not configured")
	}

	var args struct{}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.invalidParams("stop_playback", "", startedAt, id)
	}

	result, err := s.playback.Stop(ctx)
	if err != nil {
		s.logCall("stop_playback", "", startedAt, toolErrorCode(err))
		return resultResponse(id, toolErrorResultFromError(err))
	}
	s.logCall("stop_playback", result.File, startedAt, "")

	text := "No media currently playing"
	if result.WasPlaying {
		text = "Playback stopped"
	}
	return resultResponse(id, toolCallResult{
		Content:           []toolContent{{Type: "text", Text: text}},
		StructuredContent: result,
	})
}

func (s *Server) callGetCurrentPlaying(id json.RawMessage, rawArgs json.RawMessage) *response {
	startedAt := time.Now()

	if s.playback == nil {
		return s.toolInternalError("get_current_playing", "", startedAt, id, "playback is not configured")
	}

	var args struct{}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.invalidParams("get_current_playing", "", startedAt, id)
	}

	now := s.playback.NowPlaying()
	s.logCall("get_current_playing", now.File, startedAt, "")

	text := "No media is currently playing"
	if now.Playing {
		text = fmt.Sprintf("Currently playing: %s", now.File)
	}
	return resultResponse(id, toolCallResult{
		Content:           []toolContent{{Type: "text", Text: text}},
		StructuredContent: now,
	})
}

func (s *Server) callControl(ctx context.Context, id json.RawMessage, toolName string, op domain.Op, rawArgs json.RawMessage) *response {
	startedAt := time.Now()

	if s.playback == nil {
		return s.toolInternalError(toolName, "", startedAt, id, "playback is not configured")
	}

	seconds := defaultSeekSeconds
	if op == domain.OpSeekForward || op == domain.OpSeekBackward {
		var args struct {
			Seconds *json.Number `json:"seconds,omitempty"`
		}
		if err := decodeStrict(rawArgs, &args); err != nil {
			return s.invalidParams(toolName, "", startedAt, id)
		}
		if args.Seconds != nil {
			parsed, err := parseSeconds(*args.Seconds)
			if err != nil {
				s.logCall(toolName, "", startedAt, toolErrorCode(err))
				return resultResponse(id, toolErrorResultFromError(err))
			}
			seconds = parsed
		}
	} else {
		var args struct{}
		if err := decodeStrict(rawArgs, &args); err != nil {
			return s.invalidParams(toolName, "", startedAt, id)
		}
	}

	result, err := s.playback.Invoke(ctx, op, seconds)
	if err != nil {
		s.logCall(toolName, "", startedAt, toolErrorCode(err))
		return resultResponse(id, toolErrorResultFromError(err))
	}
	s.logCall(toolName, "", startedAt, "")

	return resultResponse(id, toolCallResult{
		Content: []toolContent{{
			Type: "text",
			Text: fmt.Sprintf("Command executed: %s", result.Command),
		}},
		StructuredContent: result,
	})
}

func controlToolOp(name string) (domain.Op, bool) {
	switch name {
	case "pause_playback":
		return domain.OpPause, true
	case "seek_forward":
		return domain.OpSeekForward, true
	case "seek_backward":
		return domain.OpSeekBackward, true
	case "next_chapter":
		return domain.OpNextChapter, true
	case "previous_chapter":
		return domain.OpPreviousChapter, true
	case "toggle_loop":
		return domain.OpToggleLoop, true
	case "restart_playback":
		return domain.OpRestart, true
	}
	return 0, false
}

func parseSeconds(raw json.Number) (int, error) {
	v, err := raw.Int64()
	if err != nil {
		f, ferr := raw.Float64()
		if ferr != nil || math.Trunc(f) != f || f < math.MinInt64 || f > math.MaxInt64 {
			return 0, invalidSecondsError(raw.String())
		}
		v = int64(f)
	}
	if v <= 0 || v > math.MaxInt32 {
		return 0, invalidSecondsError(raw.String())
	}
	return int(v), nil
}

func invalidSecondsError(value string) *domain.ToolError {
	return &domain.ToolError{
		Code:    "INVALID_ARGUMENT",
		Message: fmt.Sprintf("seconds must be a positive integer, got %s", value),
	}
}

func notFoundError(filename string, available []string) *domain.ToolError {
	message := fmt.Sprintf("no media file found matching %q", filename)
	if len(available) > 0 {
		message += "; available files: " + strings.Join(available, ", ")
	}
	return &domain.ToolError{
		Code:    "NOT_FOUND",
		Message: message,
		SuggestedFixes: []string{
			"Call list_movies to inspect the catalog.",
		},
		Details: map[string]any{
			"available": available,
		},
	}
}

func findEntry(entries []domain.MediaEntry, filename string) (domain.MediaEntry, bool) {
	for _, entry := range entries {
		if entry.Name == filename {
			return entry, true
		}
	}
	return domain.MediaEntry{}, false
}

func entryNames(entries []domain.MediaEntry) []string {
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names
}

func formatMediaList(dir string, entries []domain.MediaEntry) string {
	var out strings.Builder
	fmt.Fprintf(&out, "Found %d media file(s) in %s:", len(entries), dir)
	for i, entry := range entries {
		fmt.Fprintf(
			&out,
			"\n\n%d. %s\n   Path: %s\n   Size: %s\n   Type: %s",
			i+1,
			entry.Name,
			entry.Path,
			humanize.IBytes(uint64(entry.Size)),
			entry.Ext,
		)
	}
	return out.String()
}

func staticTools() []tool {
	return []tool{
		{
			Name:        "list_movies",
			Description: "List all media files available in the media directory, with path, size, and type for each entry. Call this first to discover the exact 'filename' values play_movie accepts.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": false,
			},
		},
		{
			Name:        "play_movie",
			Description: "Play a media file from the media directory. mpv is preferred and enables remote control over an IPC socket; other players start without control. Starting a new file replaces the tracked session.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filename": map[string]any{
						"type":        "string",
						"description": "Exact file name as returned by list_movies (case-sensitive).",
					},
					"loop": map[string]any{
						"type":        "boolean",
						"default":     false,
						"description": "Loop the file indefinitely.",
					},
				},
				"required":             []string{"filename"},
				"additionalProperties": false,
			},
		},
		{
			Name:        "pause_playback",
			Description: "Toggle between pause and resume for the current playback.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": false,
			},
		},
		{
			Name:        "stop_playback",
			Description: "Stop the current playback and release the player session.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": false,
			},
		},
		{
			Name:        "seek_forward",
			Description: "Skip forward in the current playback by a number of seconds.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"seconds": map[string]any{
						"type":        "integer",
						"minimum":     1,
						"default":     defaultSeekSeconds,
						"description": "Number of seconds to skip forward (default: 10).",
					},
				},
				"additionalProperties": false,
			},
		},
		{
			Name:        "seek_backward",
			Description: "Skip backward in the current playback by a number of seconds.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"seconds": map[string]any{
						"type":        "integer",
						"minimum":     1,
						"default":     defaultSeekSeconds,
						"description": "Number of seconds to skip backward (default: 10).",
					},
				},
				"additionalProperties": false,
			},
		},
		{
			Name:        "next_chapter",
			Description: "Jump to the next chapter of the current playback, if the file has chapters.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": false,
			},
		},
		{
			Name:        "previous_chapter",
			Description: "Jump to the previous chapter of the current playback, if the file has chapters.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": false,
			},
		},
		{
			Name:        "toggle_loop",
			Description: "Toggle infinite looping of the currently playing file.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": false,
			},
		},
		{
			Name:        "restart_playback",
			Description: "Restart the currently playing file from the beginning.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": false,
			},
		},
		{
			Name:        "get_current_playing",
			Description: "Get the name of the currently playing media file, if any.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": false,
			},
		},
	}
}
