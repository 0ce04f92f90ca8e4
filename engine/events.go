package engine

import (
	"encoding/json"

	"github.com/opentool-run/interact/protocol"
	"github.com/opentool-run/interact/session"
)

// Notification is a server-originated JSON-RPC message with no id —
// the shape a transport sends unsolicited (spec.md §6.1 "Notifications
// / server-originated messages").
type Notification = protocol.Request

// Events exposes the engine's lifecycle stream as the optional
// interaction.prompt/interaction.continue push notifications, directly
// modeled on the teacher's Session.On/dispatchEvent: synchronous,
// in-order delivery with panics recovered per subscriber.
type Events struct {
	mgr *session.Manager
}

func newEvents(mgr *session.Manager) *Events {
	return &Events{mgr: mgr}
}

// Subscribe registers fn for every lifecycle event that has a
// corresponding push notification. Returns an unsubscribe func. A
// pure polling client loses nothing by never calling this —
// interaction.getState carries the same information.
func (e *Events) Subscribe(fn func(Notification)) func() {
	return e.mgr.Subscribe(func(ev session.LifecycleEvent) {
		n, ok := translate(ev)
		if !ok {
			return
		}
		fn(n)
	})
}

func translate(ev session.LifecycleEvent) (Notification, bool) {
	switch ev.Type {
	case session.EventWaiting:
		if ev.State == nil || ev.State.CurrentPrompt == nil {
			return Notification{}, false
		}
		return notify("interaction.prompt", map[string]any{
			"sessionId": ev.SessionID,
			"prompt":    ev.State.CurrentPrompt,
		}), true
	case session.EventUpdated:
		if ev.State == nil || ev.State.Status != session.StatusActive {
			return Notification{}, false
		}
		return notify("interaction.continue", map[string]any{
			"sessionId": ev.SessionID,
		}), true
	default:
		return Notification{}, false
	}
}

func notify(method string, params any) Notification {
	data, _ := json.Marshal(params)
	return Notification{JSONRPC: "2.0", Method: method, Params: data}
}
