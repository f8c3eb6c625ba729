package sseserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type fakeHandler struct {
	mu       sync.Mutex
	payloads [][]byte
	reply    []byte
}

// HandleMessage mirrors the dispatcher contract: notifications (no id)
// produce no reply.
func (f *fakeHandler) HandleMessage(_ context.Context, payload []byte) ([]byte, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, append([]byte{}, payload...))
	reply := f.reply
	f.mu.Unlock()

	var envelope struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.ID) == 0 {
		return nil, nil
	}
	return reply, nil
}

func (f *fakeHandler) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeHandler) lastPayload() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return nil
	}
	return f.payloads[len(f.payloads)-1]
}

func testServer(handler *fakeHandler) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httptest.NewServer(New(handler, logger).Router())
}

func openStream(t *testing.T, baseURL string) (string, *bufio.Reader, func()) {
	t.Helper()

	resp, err := http.Get(baseURL + "/sse")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	endpoint := readEvent(t, reader, "endpoint")
	return endpoint, reader, func() { _ = resp.Body.Close() }
}

func readEvent(t *testing.T, reader *bufio.Reader, want string) string {
	t.Helper()

	event := ""
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if event == want {
				return strings.TrimPrefix(line, "data: ")
			}
			event = ""
		}
	}
}

func TestStreamAnnouncesMessageEndpoint(t *testing.T) {
	srv := testServer(&fakeHandler{})
	defer srv.Close()

	endpoint, _, closeStream := openStream(t, srv.URL)
	defer closeStream()

	if !strings.HasPrefix(endpoint, "/messages/?session_id=sess_") {
		t.Fatalf("unexpected endpoint announcement: %s", endpoint)
	}
}

func TestPostDispatchesAndStreamsResponse(t *testing.T) {
	handler := &fakeHandler{
		reply: []byte(`{"jsonrpc":"2.0","id":7,"result":{"tools":[]}}`),
	}
	srv := testServer(handler)
	defer srv.Close()

	endpoint, reader, closeStream := openStream(t, srv.URL)
	defer closeStream()

	request := []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)
	resp, err := http.Post(srv.URL+endpoint, "application/json", bytes.NewReader(request))
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	data := readEvent(t, reader, "message")
	parsed := map[string]any{}
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		t.Fatalf("unmarshal streamed response: %v", err)
	}
	if parsed["id"].(float64) != 7 {
		t.Fatalf("unexpected response id: %#v", parsed["id"])
	}

	if got := handler.lastPayload(); !bytes.Equal(got, request) {
		t.Fatalf("handler received %s, want %s", got, request)
	}
}

func TestPostUnknownSessionNeverDispatches(t *testing.T) {
	handler := &fakeHandler{}
	srv := testServer(handler)
	defer srv.Close()

	resp, err := http.Post(
		srv.URL+"/messages/?session_id=sess_unknown",
		"application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`),
	)
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if handler.calls() != 0 {
		t.Fatalf("unknown session must not reach the dispatcher, got %d calls", handler.calls())
	}
}

func TestPostOversizeMessageRejected(t *testing.T) {
	handler := &fakeHandler{}
	srv := testServer(handler)
	defer srv.Close()

	endpoint, _, closeStream := openStream(t, srv.URL)
	defer closeStream()

	oversize := bytes.Repeat([]byte("a"), maxMessageBytes+1)
	resp, err := http.Post(srv.URL+endpoint, "application/json", bytes.NewReader(oversize))
	if err != nil {
		t.Fatalf("post oversize message: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
	if handler.calls() != 0 {
		t.Fatalf("oversize message must not reach the dispatcher, got %d calls", handler.calls())
	}
}

func TestPostMissingSessionID(t *testing.T) {
	srv := testServer(&fakeHandler{})
	defer srv.Close()

	resp, err := http.Post(
		srv.URL+"/messages/",
		"application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`),
	)
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestNotificationProducesNoEvent(t *testing.T) {
	handler := &fakeHandler{
		reply: []byte(`{"jsonrpc":"2.0","id":2,"result":{}}`),
	}
	srv := testServer(handler)
	defer srv.Close()

	endpoint, reader, closeStream := openStream(t, srv.URL)
	defer closeStream()

	notification := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	resp, err := http.Post(srv.URL+endpoint, "application/json", notification)
	if err != nil {
		t.Fatalf("post notification: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	followUp := strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	resp, err = http.Post(srv.URL+endpoint, "application/json", followUp)
	if err != nil {
		t.Fatalf("post follow-up: %v", err)
	}
	resp.Body.Close()

	data := readEvent(t, reader, "message")
	parsed := map[string]any{}
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		t.Fatalf("unmarshal streamed response: %v", err)
	}
	if parsed["id"].(float64) != 2 {
		t.Fatalf("notification must not produce an event; got response %s", data)
	}
}

func TestMessageEndpointRejectsGet(t *testing.T) {
	srv := testServer(&fakeHandler{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/messages/?session_id=sess_x")
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}
