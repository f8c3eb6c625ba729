package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"matinee.app/mcp-matinee/internal/domain"
)

const protocolVersion = "2024-11-05"

const defaultSeekSeconds = 10

type MediaCatalog interface {
	Dir() string
	Scan() ([]domain.MediaEntry, error)
}

type PlaybackController interface {
	Play(ctx context.Context, entry domain.MediaEntry, loop bool) (*domain.PlayResult, error)
	Stop(ctx context.Context) (*domain.StopResult, error)
	Invoke(ctx context.Context, op domain.Op, seconds int) (*domain.ControlResult, error)
	NowPlaying() *domain.NowPlayingResult
}

type Server struct {
	in            *bufio.Reader
	out           *bufio.Writer
	serverName    string
	serverVersion string
	logger        *slog.Logger
	outputMode    wireMode
	outputLocked  bool
	tools         []tool
	catalog       MediaCatalog
	playback      PlaybackController
}

type Config struct {
	ServerName    string
	ServerVersion string
	Logger        *slog.Logger
	Catalog       MediaCatalog
	Playback      PlaybackController
}

func New(in io.Reader, out io.Writer, cfg Config) *Server {
	if cfg.ServerName == "" {
		cfg.ServerName = "mcp-matinee"
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}

	return &Server{
		in:            bufio.NewReader(in),
		out:           bufio.NewWriter(out),
		serverName:    cfg.ServerName,
		serverVersion: cfg.ServerVersion,
		logger:        cfg.Logger,
		tools:         staticTools(),
		catalog:       cfg.Catalog,
		playback:      cfg.Playback,
	}
}

// Run serves the byte streams the server was constructed with until
// EOF or context cancellation. Replies mirror the framing of the
// first message the client sent.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.logLifecycle(slog.LevelInfo, "mcp_context_done", slog.String("reason", ctx.Err().Error()))
			return ctx.Err()
		default:
		}

		s.logLifecycle(slog.LevelDebug, "mcp_read_wait")
		payload, mode, err := readMessage(s.in)
		if err != nil {
			if err == io.EOF {
				s.logLifecycle(slog.LevelInfo, "mcp_stream_eof")
				return nil
			}
			s.logLifecycle(slog.LevelError, "mcp_read_error", slog.String("error", err.Error()))
			return err
		}
		if !s.outputLocked {
			s.outputMode = mode
			s.outputLocked = true
			s.logLifecycle(slog.LevelDebug, "mcp_output_mode", slog.String("mode", mode.String()))
		}
		s.logLifecycle(slog.LevelDebug, "mcp_message_received", slog.Int("bytes", len(payload)))

		resp := s.dispatch(ctx, payload)
		if resp == nil {
			continue
		}
		if err := s.send(resp); err != nil {
			s.logLifecycle(slog.LevelError, "mcp_send_error", slog.String("error", err.Error()))
			return err
		}
	}
}

// HandleMessage dispatches one raw JSON-RPC message and returns the
// encoded response, or nil for notifications. Safe for concurrent
// use; the HTTP transports call it per posted message.
func (s *Server) HandleMessage(ctx context.Context, payload []byte) ([]byte, error) {
	resp := s.dispatch(ctx, payload)
	if resp == nil {
		return nil, nil
	}
	return json.Marshal(resp)
}

func (s *Server) dispatch(ctx context.Context, payload []byte) *response {
	startedAt := time.Now()

	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logCall("parse", "", startedAt, "-32700")
		return errorResponse(nil, -32700, "parse error")
	}

	if len(req.ID) == 0 {
		return nil
	}

	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		s.logCall(req.Method, "", startedAt, "-32600")
		return errorResponse(req.ID, -32600, "invalid request")
	}

	switch req.Method {
	case "initialize":
		s.logCall("initialize", "", startedAt, "")
		return resultResponse(req.ID, initializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: map[string]any{
				"tools": map[string]any{
					"listChanged": false,
				},
			},
			ServerInfo: map[string]string{
				"name":    s.serverName,
				"version": s.serverVersion,
			},
			Instructions: "Use tools/list to inspect available tools.",
		})
	case "ping":
		s.logCall("ping", "", startedAt, "")
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		s.logCall("tools/list", "", startedAt, "")
		return resultResponse(req.ID, toolsListResult{Tools: s.tools})
	case "tools/call":
		return s.handleToolCall(ctx, req.ID, req.Params)
	default:
		s.logCall(req.Method, "", startedAt, "-32601")
		return errorResponse(req.ID, -32601, "method not found")
	}
}

func (s *Server) handleToolCall(ctx context.Context, id json.RawMessage, rawParams json.RawMessage) *response {
	startedAt := time.Now()

	params, err := decodeToolCallParams(rawParams)
	if err != nil {
		return s.invalidParams("tools/call", "", startedAt, id)
	}

	switch params.Name {
	case "list_movies":
		return s.callListMovies(id, params.Arguments)
	case "play_movie":
		return s.callPlayMovie(ctx, id, params.Arguments)
	case "stop_playback":
		return s.callStopPlayback(ctx, id, params.Arguments)
	case "get_current_playing":
		return s.callGetCurrentPlaying(id, params.Arguments)
	default:
		if op, ok := controlToolOp(params.Name); ok {
			return s.callControl(ctx, id, params.Name, op, params.Arguments)
		}
		s.logCall(params.Name, "", startedAt, "TOOL_NOT_FOUND")
		return resultResponse(id, toolErrorResult(
			"TOOL_NOT_FOUND",
			fmt.Sprintf("unknown tool: %s", params.Name),
		))
	}
}

func decodeToolCallParams(raw json.RawMessage) (toolsCallParams, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return toolsCallParams{}, err
	}

	nameRaw, ok := payload["name"]
	if !ok {
		return toolsCallParams{}, fmt.Errorf("missing tool name")
	}

	var name string
	if err := json.Unmarshal(nameRaw, &name); err != nil {
		return toolsCallParams{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return toolsCallParams{}, fmt.Errorf("missing tool name")
	}

	arguments, ok := payload["arguments"]
	if !ok {
		flattened := map[string]json.RawMessage{}
		for key, value := range payload {
			if key == "name" || key == "_meta" {
				continue
			}
			flattened[key] = value
		}
		if len(flattened) > 0 {
			normalized, err := json.Marshal(flattened)
			if err != nil {
				return toolsCallParams{}, err
			}
			arguments = normalized
		}
	}

	if len(bytes.TrimSpace(arguments)) == 0 {
		arguments = json.RawMessage("{}")
	}

	return toolsCallParams{
		Name:      name,
		Arguments: arguments,
	}, nil
}

func decodeStrict(raw json.RawMessage, out any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("invalid JSON payload")
	}
	var trailing any
	if err := decoder.Decode(&trailing); err != io.EOF {
		return fmt.Errorf("invalid JSON payload")
	}
	return nil
}

func (s *Server) invalidParams(method, file string, startedAt time.Time, id json.RawMessage) *response {
	s.logCall(method, file, startedAt, "-32602")
	return errorResponse(id, -32602, "invalid params")
}

func (s *Server) toolInternalError(method, file string, startedAt time.Time, id json.RawMessage, message string) *response {
	s.logCall(method, file, startedAt, "INTERNAL_ERROR")
	return resultResponse(id, toolErrorResult("INTERNAL_ERROR", message))
}

func toolErrorResult(code, message string) toolCallResult {
	return toolCallResult{
		Content: []toolContent{
			{
				Type: "text",
				Text: fmt.Sprintf("%s: %s", code, message),
			},
		},
		StructuredContent: map[string]any{
			"error": map[string]string{
				"code":    code,
				"message": message,
			},
		},
		IsError: true,
	}
}

func toolErrorResultFromError(err error) toolCallResult {
	var tErr *domain.ToolError
	if errors.As(err, &tErr) && tErr != nil {
		result := toolErrorResult(tErr.Code, tErr.Message)
		structured := map[string]any{
			"error": map[string]any{
				"code":    tErr.Code,
				"message": tErr.Message,
			},
		}
		if len(tErr.Limitations) > 0 {
			structured["error"].(map[string]any)["limitations"] = tErr.Limitations
		}
		if len(tErr.SuggestedFixes) > 0 {
			structured["error"].(map[string]any)["suggested_fixes"] = tErr.SuggestedFixes
		}
		if len(tErr.Details) > 0 {
			structured["error"].(map[string]any)["details"] = tErr.Details
		}
		result.StructuredContent = structured
		return result
	}

	return toolErrorResult("INTERNAL_ERROR", err.Error())
}

func toolErrorCode(err error) string {
	var tErr *domain.ToolError
	if errors.As(err, &tErr) && tErr != nil && strings.TrimSpace(tErr.Code) != "" {
		return tErr.Code
	}
	return "INTERNAL_ERROR"
}

func (s *Server) logCall(method, file string, startedAt time.Time, errorCode string) {
	if s == nil || s.logger == nil {
		return
	}
	level := slog.LevelInfo
	if strings.TrimSpace(errorCode) != "" {
		level = slog.LevelError
	}

	s.logger.Log(
		context.Background(),
		level,
		"mcp_call",
		slog.String("method", strings.TrimSpace(method)),
		slog.String("file", strings.TrimSpace(file)),
		slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
		slog.String("error_code", strings.TrimSpace(errorCode)),
	)
}

func (s *Server) send(resp *response) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	s.logLifecycle(slog.LevelDebug, "mcp_send", slog.Int("bytes", len(encoded)))
	return writeMessage(s.out, s.outputMode, encoded)
}

func (s *Server) logLifecycle(level slog.Level, msg string, attrs ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Log(context.Background(), level, msg, attrs...)
}
