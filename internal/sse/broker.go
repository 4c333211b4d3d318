// Package sse streams catalog change notifications to Server-Sent Events
// subscribers.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	clientBuffer = 64
	// historySize bounds Last-Event-ID replay.
	historySize = clientBuffer
)

// Catalog event types.
const (
	TypeNoteCreated     = "note.created"
	TypeNoteUpdated     = "note.updated"
	TypeNoteDeleted     = "note.deleted"
	TypeCategoryCreated = "category.created"
	TypeCategoryRemoved = "category.removed"
	TypeTagCreated      = "tag.created"
	TypeBatchCompleted  = "batch.completed"
	TypeCatalogUpdated  = "catalog.updated"
)

// Event is a single SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type catalogEventReq struct {
	kind string
	data map[string]string
}

type subscribeReq struct {
	ch     chan []byte
	lastID uint64
}

type frame struct {
	id  uint64
	raw []byte
}

// Broker fans events out to connected clients.
//
// A single loop goroutine owns the client set, the event sequence, the replay
// history and the catalog.updated throttle timestamp. Public methods talk to
// it over channels.
type Broker struct {
	catalogMin time.Duration
	keepAlive  time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	catalogCh     chan catalogEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker. At most one catalog.updated event is emitted
// per throttle interval.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		catalogMin:    throttle,
		keepAlive:     15 * time.Second,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		catalogCh:     make(chan catalogEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastCatalog time.Time
		seq         uint64
		history     []frame
	)

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Slow client; drop rather than stall the loop.
		}
	}

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		history = append(history, frame{id: seq, raw: raw})
		if len(history) > historySize {
			history = history[len(history)-historySize:]
		}
		for ch := range clients {
			send(ch, raw)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = struct{}{}
			if req.lastID == 0 {
				continue
			}
			for _, f := range history {
				if f.id > req.lastID {
					send(req.ch, f.raw)
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.catalogCh:
			broadcast(Event{Type: req.kind, Data: req.data})

			now := time.Now()
			if now.Sub(lastCatalog) >= b.catalogMin {
				lastCatalog = now
				broadcast(Event{Type: TypeCatalogUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client that receives events published from now on.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeAfter(0)
}

// SubscribeAfter adds a new client and first replays the retained events
// whose id is greater than lastID. Zero replays nothing.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, lastID: lastID}:
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

// PublishCatalogEvent publishes one catalog change followed, at most once
// per throttle interval, by catalog.updated.
func (b *Broker) PublishCatalogEvent(kind string, data map[string]string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.catalogCh <- catalogEventReq{kind: kind, data: data}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A reconnecting
// client that sends Last-Event-ID gets the events it missed, as far back as
// the broker still holds them.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeAfter(lastEventID(r))
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
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

func lastEventID(r *http.Request) uint64 {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("last_event_id")
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
