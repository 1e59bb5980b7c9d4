package server

import (
	"context"
	"sync"
	"time"

	"github.com/saftrack/ippt-backend/internal/roster"
)

const realtimeEventHeartbeat = "heartbeat"

// RealtimeDispatcher fans roster events out to the devices subscribed to a
// session. Sends are non-blocking; a device that stops draining its stream
// misses events and is expected to recover through a sync request.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[roster.SessionID]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id       int64
	deviceID string
	stream   chan roster.Event
}

// NewRealtimeDispatcher constructs an empty dispatcher.
func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[roster.SessionID]map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe attaches a device to a session channel until the context is
// cancelled. Peers are told about the arrival and, on cleanup, the departure.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, sessionID roster.SessionID, deviceID string) (<-chan roster.Event, func()) {
	if sessionID == "" {
		ch := make(chan roster.Event)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:       d.nextSequence(),
		deviceID: deviceID,
		stream:   make(chan roster.Event, d.bufferSize),
	}
	d.registerSubscriber(sessionID, subscriber)
	d.Broadcast(roster.Event{
		Type:         roster.EventDeviceJoin,
		SessionID:    sessionID,
		OriginDevice: deviceID,
		Timestamp:    d.clock().UTC(),
	})

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(sessionID, subscriber.id)
			d.Broadcast(roster.Event{
				Type:         roster.EventDeviceLeave,
				SessionID:    sessionID,
				OriginDevice: deviceID,
				Timestamp:    d.clock().UTC(),
			})
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Broadcast delivers the event to every subscriber of its session except the
// originating device, so a device never echoes its own action back to itself.
func (d *RealtimeDispatcher) Broadcast(event roster.Event) {
	if event.SessionID == "" || event.Type == "" {
		return
	}
	rosterEventsTotal.WithLabelValues(string(event.Type)).Inc()
	d.mu.RLock()
	subscribers := d.subscribers[event.SessionID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		if event.OriginDevice != "" && subscriber.deviceID == event.OriginDevice {
			continue
		}
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

// DeviceCount reports how many devices are attached to the session.
func (d *RealtimeDispatcher) DeviceCount(sessionID roster.SessionID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[sessionID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(sessionID roster.SessionID, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[sessionID]; !ok {
		d.subscribers[sessionID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[sessionID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(sessionID roster.SessionID, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[sessionID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, sessionID)
		}
	}
	d.mu.Unlock()
}
