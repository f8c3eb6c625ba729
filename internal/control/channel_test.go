package control

import (
	"bufio"
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"matinee.app/mcp-matinee/internal/domain"
)

func startFakePlayer(t *testing.T, handle func(line string, conn net.Conn)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				line, err := bufio.NewReader(c).ReadString('\n')
				if err != nil {
					return
				}
				handle(strings.TrimSpace(line), c)
			}(conn)
		}
	}()
	return path
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var toolErr *domain.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected *domain.ToolError, got %T: %v", err, err)
	}
	return toolErr.Code
}

func TestSendSuccess(t *testing.T) {
	received := make(chan string, 1)
	path := startFakePlayer(t, func(line string, conn net.Conn) {
		received <- line
		_, _ = conn.Write([]byte(`{"error":"success"}` + "\n"))
	})

	reply, err := NewChannel().Send(context.Background(), path, Command{
		Tokens:       []any{"seek", 30, "relative"},
		ExpectsReply: true,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply == nil || reply.Error != "success" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	select {
	case line := <-received:
		if line != `{"command":["seek",30,"relative"]}` {
			t.Fatalf("unexpected wire command: %s", line)
		}
	case <-time.After(time.Second):
		t.Fatal("player never received the command")
	}
}

func TestSendSkipsEventLines(t *testing.T) {
	path := startFakePlayer(t, func(_ string, conn net.Conn) {
		_, _ = conn.Write([]byte(`{"event":"pause"}` + "\n" + `{"error":"success"}` + "\n"))
	})

	reply, err := NewChannel().Send(context.Background(), path, Command{
		Tokens:       []any{"cycle", "pause"},
		ExpectsReply: true,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Error != "success" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestSendPlayerError(t *testing.T) {
	path := startFakePlayer(t, func(_ string, conn net.Conn) {
		_, _ = conn.Write([]byte(`{"error":"property unavailable"}` + "\n"))
	})

	_, err := NewChannel().Send(context.Background(), path, Command{
		Tokens:       []any{"cycle", "loop-file"},
		ExpectsReply: true,
	})
	if code := errCode(t, err); code != "PLAYER_ERROR" {
		t.Fatalf("expected PLAYER_ERROR, got %s", code)
	}
	if !strings.Contains(err.Error(), "property unavailable") {
		t.Fatalf("player message not surfaced: %v", err)
	}
}

func TestSendMalformedReply(t *testing.T) {
	path := startFakePlayer(t, func(_ string, conn net.Conn) {
		_, _ = conn.Write([]byte("definitely not json\n"))
	})

	_, err := NewChannel().Send(context.Background(), path, Command{
		Tokens:       []any{"cycle", "pause"},
		ExpectsReply: true,
	})
	if code := errCode(t, err); code != "PROTOCOL_ERROR" {
		t.Fatalf("expected PROTOCOL_ERROR, got %s", code)
	}
}

func TestSendReplyMissingErrorField(t *testing.T) {
	path := startFakePlayer(t, func(_ string, conn net.Conn) {
		_, _ = conn.Write([]byte("{}\n"))
	})

	_, err := NewChannel().Send(context.Background(), path, Command{
		Tokens:       []any{"cycle", "pause"},
		ExpectsReply: true,
	})
	if code := errCode(t, err); code != "PROTOCOL_ERROR" {
		t.Fatalf("expected PROTOCOL_ERROR, got %s", code)
	}
}

func TestSendConnectionClosedBeforeReply(t *testing.T) {
	path := startFakePlayer(t, func(string, net.Conn) {})

	_, err := NewChannel().Send(context.Background(), path, Command{
		Tokens:       []any{"cycle", "pause"},
		ExpectsReply: true,
	})
	if code := errCode(t, err); code != "PROTOCOL_ERROR" {
		t.Fatalf("expected PROTOCOL_ERROR, got %s", code)
	}
}

func TestSendReadTimeout(t *testing.T) {
	path := startFakePlayer(t, func(_ string, conn net.Conn) {
		time.Sleep(300 * time.Millisecond)
		_, _ = conn.Write([]byte(`{"error":"success"}` + "\n"))
	})

	ch := NewChannel()
	ch.ReadTimeout = 50 * time.Millisecond
	_, err := ch.Send(context.Background(), path, Command{
		Tokens:       []any{"cycle", "pause"},
		ExpectsReply: true,
	})
	if code := errCode(t, err); code != "TIMEOUT" {
		t.Fatalf("expected TIMEOUT, got %s", code)
	}
}

func TestSendEndpointUnreachable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nobody-home.sock")

	_, err := NewChannel().Send(context.Background(), path, Command{
		Tokens:       []any{"cycle", "pause"},
		ExpectsReply: true,
	})
	if code := errCode(t, err); code != "ENDPOINT_UNREACHABLE" {
		t.Fatalf("expected ENDPOINT_UNREACHABLE, got %s", code)
	}
}

func TestSendWithoutReply(t *testing.T) {
	received := make(chan string, 1)
	path := startFakePlayer(t, func(line string, _ net.Conn) {
		received <- line
	})

	reply, err := NewChannel().Send(context.Background(), path, Command{Tokens: []any{"quit"}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply != nil {
		t.Fatalf("expected no reply, got %+v", reply)
	}

	select {
	case line := <-received:
		if line != `{"command":["quit"]}` {
			t.Fatalf("unexpected wire command: %s", line)
		}
	case <-time.After(time.Second):
		t.Fatal("player never received the command")
	}
}

func TestCommandString(t *testing.T) {
	cmd := Command{Tokens: []any{"seek", -10, "relative"}}
	if got := cmd.String(); got != "seek -10 relative" {
		t.Fatalf("unexpected command string: %q", got)
	}
}
