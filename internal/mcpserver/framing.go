package mcpserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// wireMode is the message framing negotiated with the client. The
// first inbound message decides it; replies mirror it.
type wireMode int

const (
	wireFramed wireMode = iota
	wireJSONLine
)

func (m wireMode) String() string {
	if m == wireJSONLine {
		return "jsonline"
	}
	return "framed"
}

func readMessage(r *bufio.Reader) ([]byte, wireMode, error) {
	firstLine, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && firstLine == "" {
			return nil, wireFramed, io.EOF
		}
		return nil, wireFramed, err
	}

	if payload, ok, err := tryReadJSONLineMessage(r, firstLine); ok || err != nil {
		if err != nil {
			return nil, wireJSONLine, err
		}
		return payload, wireJSONLine, nil
	}

	contentLength := -1
	sawHeader := false
	line := firstLine

	for {
		if line == "\r\n" {
			if !sawHeader {
				if line, err = r.ReadString('\n'); err != nil {
					if err == io.EOF && !sawHeader {
						return nil, wireFramed, io.EOF
					}
					return nil, wireFramed, err
				}
				continue
			}
			break
		}

		sawHeader = true
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			break
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}

		if strings.EqualFold(key, "Content-Length") {
			parsed, parseErr := strconv.Atoi(strings.TrimSpace(value))
			if parseErr != nil {
				return nil, wireFramed, fmt.Errorf("invalid Content-Length: %w", parseErr)
			}
			contentLength = parsed
		}

		line, err = r.ReadString('\n')
		if err != nil {
			if err == io.EOF && !sawHeader {
				return nil, wireFramed, io.EOF
			}
			return nil, wireFramed, err
		}
	}

	if contentLength < 0 {
		return nil, wireFramed, fmt.Errorf("missing Content-Length header")
	}

	payload := make([]byte, contentLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, wireFramed, err
	}

	return payload, wireFramed, nil
}

func tryReadJSONLineMessage(r *bufio.Reader, firstLine string) ([]byte, bool, error) {
	trimmed := strings.TrimSpace(firstLine)
	if trimmed == "" {
		return nil, false, nil
	}
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return nil, false, nil
	}

	buf := bytes.NewBufferString(firstLine)
	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		return bytes.TrimSpace(buf.Bytes()), true, nil
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, true, err
		}
		buf.WriteString(line)
		if json.Valid(bytes.TrimSpace(buf.Bytes())) {
			return bytes.TrimSpace(buf.Bytes()), true, nil
		}
	}
}

func writeMessage(w *bufio.Writer, mode wireMode, payload []byte) error {
	if mode == wireJSONLine {
		return writeJSONLineMessage(w, payload)
	}
	return writeFramedMessage(w, payload)
}

func writeFramedMessage(w *bufio.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeJSONLineMessage(w *bufio.Writer, payload []byte) error {
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
