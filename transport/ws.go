package transport

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/opentool-run/interact/engine"
	"github.com/opentool-run/interact/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WS serves an Engine with one JSON-RPC message per WebSocket text
// frame — the "pipe/socket" transport instance spec.md's transport
// pluggability calls for alongside stdio.
type WS struct {
	eng    *engine.Engine
	logger *log.Logger
}

// NewWS wires eng for WebSocket serving. logger defaults to
// log.Default() when nil.
func NewWS(eng *engine.Engine, logger *log.Logger) *WS {
	if logger == nil {
		logger = log.Default()
	}
	return &WS{eng: eng, logger: logger}
}

// Handler upgrades each incoming connection and serves it until it
// closes.
func (s *WS) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Printf("transport/ws: upgrade: %v", err)
			return
		}
		s.serveConn(r.Context(), conn)
	})
}

func (s *WS) serveConn(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	var writeMu sync.Mutex
	unsubscribe := s.eng.Events().Subscribe(func(n engine.Notification) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(n); err != nil {
			s.logger.Printf("transport/ws: push notification: %v", err)
		}
	})
	defer unsubscribe()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.logger.Printf("transport/ws: malformed message: %v", err)
			continue
		}

		go func(req protocol.Request) {
			resp := s.eng.Handle(ctx, &req)
			if req.IsNotification() {
				return
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(resp); err != nil {
				s.logger.Printf("transport/ws: write response: %v", err)
			}
		}(req)
	}
}
