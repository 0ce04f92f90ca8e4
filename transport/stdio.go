// Package transport adapts the engine's byte-agnostic dispatcher to a
// concrete wire: stdio (Content-Length framing) or WebSocket. Neither
// adapter touches session state directly — both only parse/frame bytes
// and call engine.Engine.Handle.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"log"

	"github.com/opentool-run/interact/engine"
	"github.com/opentool-run/interact/internal/jsonrpc2"
	"github.com/opentool-run/interact/protocol"
)

// Stdio serves an Engine over Content-Length-framed JSON-RPC messages,
// generalizing the teacher's jsonrpc2.Client read loop to the
// message-driven (server) side instead of the side that spawns a CLI.
type Stdio struct {
	eng    *engine.Engine
	reader *jsonrpc2.Reader
	writer *jsonrpc2.Writer
	logger *log.Logger
}

// NewStdio wires eng to r/w. logger defaults to log.Default() when nil.
func NewStdio(eng *engine.Engine, r io.Reader, w io.Writer, logger *log.Logger) *Stdio {
	if logger == nil {
		logger = log.Default()
	}
	return &Stdio{
		eng:    eng,
		reader: jsonrpc2.NewReader(r),
		writer: jsonrpc2.NewWriter(w),
		logger: logger,
	}
}

// Serve reads framed requests until ctx is cancelled or the underlying
// reader returns an error (including a clean EOF, which is not
// reported as an error). ctx is checked only between frames: cancelling
// it does not interrupt a read that is already blocked, so Serve returns
// once that read yields a frame or an error. Every request is dispatched on its own
// goroutine so a handler blocked on a prompt never stalls other
// sessions' requests; server-pushed notifications from the engine's
// event bus are written interleaved, safely, by jsonrpc2.Writer's
// internal lock.
func (s *Stdio) Serve(ctx context.Context) error {
	unsubscribe := s.eng.Events().Subscribe(func(n engine.Notification) {
		if err := s.writer.WriteMessage(n); err != nil {
			s.logger.Printf("transport/stdio: push notification: %v", err)
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		body, err := s.reader.ReadMessage()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		var req protocol.Request
		if err := json.Unmarshal(body, &req); err != nil {
			s.logger.Printf("transport/stdio: malformed message: %v", err)
			continue
		}

		go s.dispatch(ctx, &req)
	}
}

func (s *Stdio) dispatch(ctx context.Context, req *protocol.Request) {
	resp := s.eng.Handle(ctx, req)
	if req.IsNotification() {
		return
	}
	if err := s.writer.WriteMessage(resp); err != nil {
		s.logger.Printf("transport/stdio: write response: %v", err)
	}
}
