// Package broadcast implements the BroadcastBus: non-blocking fan-out of
// call lifecycle events to every connected operator websocket client,
// grounded on the teacher's former internal/tasks.Manager.Subscribe
// subscriber registry and internal/httpapi.Server.handleSessionWS's
// non-blocking select-with-default outbound send, generalized from a
// single-session-scoped channel into a process-wide pub/sub bus.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/ent0n29/salesagent/internal/observability"
	"github.com/ent0n29/salesagent/internal/protocol"
)

// QueueSize bounds each subscriber's outbound buffer; a slow reader drops
// messages rather than blocking the publisher.
const QueueSize = 32

// PingInterval is how often the bus emits a keepalive frame to every
// subscriber, matching the teacher's websocket ping cadence.
const PingInterval = 20 * time.Second

type subscriber struct {
	id string
	ch chan []byte
}

// Bus is the process-wide fan-out point. One instance is shared by the
// httpapi websocket handler (which registers subscribers) and the
// TurnHandler (which publishes call events).
type Bus struct {
	mu      sync.Mutex
	subs    map[string]*subscriber
	metrics *observability.Metrics
}

func New(metrics *observability.Metrics) *Bus {
	return &Bus{
		subs:    make(map[string]*subscriber),
		metrics: metrics,
	}
}

// Subscribe registers id and returns its inbound channel plus an
// unsubscribe function the caller must invoke on disconnect.
func (b *Bus) Subscribe(id string) (<-chan []byte, func()) {
	sub := &subscriber{id: id, ch: make(chan []byte, QueueSize)}
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	b.PublishMessage(protocol.Connected{Type: protocol.TypeConnected, SubscriberID: id})

	return sub.ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(sub.ch)
	}
}

// Disconnect publishes a disconnected event for id with reason, without
// removing its channel (the websocket handler's own unsubscribe func does
// that once its read/write loop has fully exited).
func (b *Bus) Disconnect(id, reason string) {
	b.PublishMessage(protocol.Disconnected{Type: protocol.TypeDisconnected, SubscriberID: id, Reason: reason})
}

// PublishMessage marshals msg and fans it out to every subscriber,
// dropping (and counting) for subscribers whose queue is full.
func (b *Bus) PublishMessage(msg any) {
	raw, err := protocol.Marshal(msg)
	if err != nil {
		observability.LogEvent("broadcast_marshal_error", "err", err)
		return
	}
	b.publishRaw(raw)
}

func (b *Bus) publishRaw(raw []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- raw:
		default:
			if b.metrics != nil {
				b.metrics.ObserveBroadcastDrop("queue_full")
			}
			observability.LogEvent("broadcast_drop", "subscriber", sub.id)
		}
	}
}

// SubscriberCount reports the number of currently connected subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Run emits a ping frame every PingInterval until ctx is canceled. Callers
// start this once in a background goroutine at process startup.
func (b *Bus) Run(ctx context.Context) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.PublishMessage(protocol.Ping{Type: protocol.TypePing, TSMs: time.Now().UnixMilli()})
		}
	}
}

// CallInitiated publishes a call_initiated event.
func (b *Bus) CallInitiated(callID, leadID, toNumber string) {
	b.PublishMessage(protocol.CallInitiated{Type: protocol.TypeCallInitiated, CallID: callID, LeadID: leadID, ToNumber: toNumber})
}

// CallInProgress publishes a call_in_progress event carrying the call's
// current sales-state name.
func (b *Bus) CallInProgress(callID, state string) {
	b.PublishMessage(protocol.CallInProgress{Type: protocol.TypeCallInProgress, CallID: callID, State: state})
}

// CallStatus publishes a call_status lifecycle transition.
func (b *Bus) CallStatus(callID, status string) {
	b.PublishMessage(protocol.CallStatus{Type: protocol.TypeCallStatus, CallID: callID, Status: status, TSMs: time.Now().UnixMilli()})
}

// CallTranscriptUpdate publishes one transcript delta (role "lead" or
// "assistant").
func (b *Bus) CallTranscriptUpdate(callID, role, delta string, final bool) {
	b.PublishMessage(protocol.CallTranscriptUpdate{Type: protocol.TypeCallTranscriptUpdate, CallID: callID, Role: role, Delta: delta, Final: final})
}
