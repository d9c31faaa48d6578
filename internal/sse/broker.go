// Package sse implements a Server-Sent Events broker that pushes session
// changes to open browser tabs.
package sse

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Change kinds published by the session service and the reconciler.
const (
	SessionCreated = "session.created"
	SessionExpired = "session.expired"
	SessionDeleted = "session.deleted"
	NoteAdded      = "note.added"
	NoteUpdated    = "note.updated"
	NoteDeleted    = "note.deleted"
	FileUploaded   = "file.uploaded"
	FileUpdated    = "file.updated"
	FileRemoved    = "file.removed"

	// SessionsUpdated follows public session-level changes, at most once
	// per throttle window.
	SessionsUpdated = "sessions.updated"
)

// Heartbeat is how often an idle stream receives a keep-alive comment.
var Heartbeat = 25 * time.Second

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Change describes a mutation inside one session.
type Change struct {
	Kind        string `json:"-"`
	SessionType string `json:"type"`
	Session     string `json:"session"`
	ID          int64  `json:"id,omitempty"`
}

// Scope identifies the session a change belongs to, e.g. "public/Trip_Notes".
func (c Change) Scope() string {
	return c.SessionType + "/" + c.Session
}

func (c Change) private() bool {
	return c.SessionType == "private"
}

type subscription struct {
	ch    chan []byte
	scope string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal loop owns the client set, the event sequence and the
// throttle timestamp. Public methods talk to it over channels.
//
// A client subscribes either to one session scope or to everything public.
// Changes to private sessions only reach clients scoped to that session.
type Broker struct {
	listMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan Change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits sessions.updated at most once per
// listThrottle.
func NewBroker(listThrottle time.Duration) *Broker {
	if listThrottle <= 0 {
		listThrottle = 2 * time.Second
	}

	b := &Broker{
		listMin:       listThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan Change, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	var (
		seq      uint64
		lastList time.Time
	)

	send := func(event Event, accept func(scope string) bool) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := encode(seq, event.Type, payload)
		for ch, scope := range clients {
			if !accept(scope) {
				continue
			}
			select {
			case ch <- raw:
			default:
				// slow client, drop
			}
		}
	}
	everyone := func(string) bool { return true }

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.scope

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			send(event, everyone)

		case c := <-b.changeCh:
			key := c.Scope()
			send(Event{Type: c.Kind, Data: c}, func(scope string) bool {
				if scope == "" {
					return !c.private()
				}
				return scope == key
			})

			if c.private() || !strings.HasPrefix(c.Kind, "session.") {
				continue
			}
			if now := time.Now(); now.Sub(lastList) >= b.listMin {
				lastList = now
				send(Event{Type: SessionsUpdated, Data: struct{}{}}, everyone)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

func encode(id uint64, typ string, payload []byte) []byte {
	buf := make([]byte, 0, len(typ)+len(payload)+32)
	buf = append(buf, "id: "...)
	buf = strconv.AppendUint(buf, id, 10)
	buf = append(buf, "\nevent: "...)
	buf = append(buf, typ...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, payload...)
	return append(buf, "\n\n"...)
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. An empty scope
// receives every public change; "type/name" receives that session only.
func (b *Broker) Subscribe(scope string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, scope: scope}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishChange broadcasts c to the clients allowed to see it.
func (b *Broker) PublishChange(c Change) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- c:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /events). The optional
// "session" query parameter ("type/name") narrows the stream to one session;
// callers must check access to private scopes before delegating here.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get("session"))
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(Heartbeat)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
