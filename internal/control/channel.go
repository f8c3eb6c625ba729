package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"matinee.app/mcp-matinee/internal/domain"
)

const (
	defaultConnectTimeout = 2 * time.Second
	defaultReadTimeout    = 2 * time.Second

	maxReplyBytes = 64 * 1024
)

// Command is one request for the player's control socket.
type Command struct {
	Tokens       []any
	ExpectsReply bool
}

func (c Command) String() string {
	parts := make([]string, len(c.Tokens))
	for i, tok := range c.Tokens {
		parts[i] = fmt.Sprintf("%v", tok)
	}
	return strings.Join(parts, " ")
}

type Reply struct {
	Data      any    `json:"data,omitempty"`
	RequestID int    `json:"request_id,omitempty"`
	Event     string `json:"event,omitempty"`
	Error     string `json:"error"`
}

type Channel struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

func NewChannel() *Channel {
	return &Channel{
		ConnectTimeout: defaultConnectTimeout,
		ReadTimeout:    defaultReadTimeout,
	}
}

// Send opens a fresh connection to the control endpoint, writes one
// newline-terminated command object and reads the player's reply. The
// connection is not reused and a failed attempt surfaces immediately;
// there is no retry.
func (ch *Channel) Send(ctx context.Context, endpoint string, cmd Command) (*Reply, error) {
	payload, err := json.Marshal(struct {
		Command []any `json:"command"`
	}{Command: cmd.Tokens})
	if err != nil {
		return nil, toolError("INTERNAL_ERROR", fmt.Sprintf("encode control command: %v", err))
	}

	dialer := net.Dialer{Timeout: ch.connectTimeout()}
	conn, err := dialer.DialContext(ctx, "unix", endpoint)
	if err != nil {
		return nil, endpointUnreachableError(endpoint, err)
	}
	defer conn.Close()

	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, endpointUnreachableError(endpoint, err)
	}
	if !cmd.ExpectsReply {
		return nil, nil
	}

	if err := conn.SetReadDeadline(time.Now().Add(ch.readTimeout())); err != nil {
		return nil, toolError("INTERNAL_ERROR", fmt.Sprintf("set read deadline: %v", err))
	}

	reader := bufio.NewReader(io.LimitReader(conn, maxReplyBytes))
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, timeoutError(endpoint, ch.readTimeout())
			}
			return nil, protocolError(endpoint, "control connection closed before a reply arrived")
		}

		var reply Reply
		if err := json.Unmarshal(line, &reply); err != nil {
			return nil, protocolError(endpoint, fmt.Sprintf("unparseable control reply: %v", err))
		}
		// The player broadcasts asynchronous event lines on every
		// connection; only lines carrying an error field are replies.
		if reply.Error == "" {
			if reply.Event != "" {
				continue
			}
			return nil, protocolError(endpoint, "control reply is missing the error field")
		}
		if reply.Error != "success" {
			return nil, playerCommandError(cmd.String(), reply.Error)
		}
		return &reply, nil
	}
}

func (ch *Channel) connectTimeout() time.Duration {
	if ch.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return ch.ConnectTimeout
}

func (ch *Channel) readTimeout() time.Duration {
	if ch.ReadTimeout <= 0 {
		return defaultReadTimeout
	}
	return ch.ReadTimeout
}

func toolError(code, message string) *domain.ToolError {
	return &domain.ToolError{Code: code, Message: message}
}

func endpointUnreachableError(endpoint string, cause error) *domain.ToolError {
	return &domain.ToolError{
		Code:    "ENDPOINT_UNREACHABLE",
		Message: "could not reach the player control socket; the player may have exited",
		SuggestedFixes: []string{
			"Start playback again with play_movie.",
		},
		Details: map[string]any{
			"endpoint": endpoint,
			"cause":    cause.Error(),
		},
	}
}

func timeoutError(endpoint string, window time.Duration) *domain.ToolError {
	return &domain.ToolError{
		Code:    "TIMEOUT",
		Message: fmt.Sprintf("no reply from the player control socket within %s", window),
		Details: map[string]any{
			"endpoint": endpoint,
		},
	}
}

func protocolError(endpoint, message string) *domain.ToolError {
	return &domain.ToolError{
		Code:    "PROTOCOL_ERROR",
		Message: message,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	}
}

func playerCommandError(command, playerErr string) *domain.ToolError {
	return &domain.ToolError{
		Code:    "PLAYER_ERROR",
		Message: fmt.Sprintf("player rejected command %q: %s", command, playerErr),
		Details: map[string]any{
			"command":      command,
			"player_error": playerErr,
		},
	}
}
