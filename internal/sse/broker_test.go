package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeNoteCreated, Data: map[string]string{"id": "n1"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: note.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.HasPrefix(s, "id: 1\n") {
			t.Errorf("missing event id in %q", s)
		}
		if !strings.Contains(s, `"id":"n1"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishCatalogEvent_Throttle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishCatalogEvent(TypeNoteCreated, map[string]string{"id": "n1"})
	b.PublishCatalogEvent(TypeTagCreated, map[string]string{"name": "go"})

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	catalogCount := 0
	changeCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "event: catalog.updated") {
				catalogCount++
			} else {
				changeCount++
			}
		default:
			break loop
		}
	}

	if changeCount != 2 {
		t.Errorf("change events = %d, want 2", changeCount)
	}
	if catalogCount != 1 {
		t.Errorf("catalog.updated events = %d, want 1", catalogCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: TypeNoteUpdated, Data: map[string]string{"id": "n2"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: note.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: TypeNoteUpdated, Data: map[string]string{"id": "n2"}})
	b.PublishCatalogEvent(TypeNoteDeleted, map[string]string{"id": "n2"})
}

func TestPublishCatalogEvent_ThrottleWindowElapses(t *testing.T) {
	b := NewBroker(30 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishCatalogEvent(TypeCategoryCreated, map[string]string{"name": "go"})
	time.Sleep(60 * time.Millisecond)
	b.PublishCatalogEvent(TypeCategoryRemoved, map[string]string{"name": "go"})
	time.Sleep(30 * time.Millisecond)

	var types []string
	for {
		select {
		case msg := <-ch:
			for _, line := range strings.Split(string(msg), "\n") {
				if after, ok := strings.CutPrefix(line, "event: "); ok {
					types = append(types, after)
				}
			}
			continue
		default:
		}
		break
	}

	want := []string{TypeCategoryCreated, TypeCatalogUpdated, TypeCategoryRemoved, TypeCatalogUpdated}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", types, want)
	}
}

func TestSubscribeAfterReplaysMissedEvents(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	for _, id := range []string{"n1", "n2", "n3"} {
		b.Publish(Event{Type: TypeNoteCreated, Data: map[string]string{"id": id}})
	}
	time.Sleep(50 * time.Millisecond)

	ch := b.SubscribeAfter(1)
	defer b.Unsubscribe(ch)

	var got []string
	for len(got) < 2 {
		select {
		case msg := <-ch:
			got = append(got, strings.SplitN(string(msg), "\n", 2)[0])
		case <-time.After(time.Second):
			t.Fatalf("replayed %v, want 2 events", got)
		}
	}
	if got[0] != "id: 2" || got[1] != "id: 3" {
		t.Errorf("replayed %v", got)
	}

	select {
	case msg := <-ch:
		t.Errorf("unexpected extra event %q", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSSEHandler_LastEventID(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	b.Publish(Event{Type: TypeNoteCreated, Data: map[string]string{"id": "n1"}})
	b.Publish(Event{Type: TypeNoteDeleted, Data: map[string]string{"id": "n1"}})
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)

	body := w.Body.String()
	if strings.Contains(body, "event: note.created") {
		t.Errorf("already seen event replayed: %q", body)
	}
	if !strings.Contains(body, "id: 2\nevent: note.deleted") {
		t.Errorf("missed event not replayed: %q", body)
	}
}

func TestLastEventID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/events?last_event_id=7", nil)
	if got := lastEventID(req); got != 7 {
		t.Errorf("query id = %d, want 7", got)
	}
	req.Header.Set("Last-Event-ID", "9")
	if got := lastEventID(req); got != 9 {
		t.Errorf("header id = %d, want 9", got)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("Last-Event-ID", "bogus")
	if got := lastEventID(req); got != 0 {
		t.Errorf("bogus id = %d, want 0", got)
	}
}
