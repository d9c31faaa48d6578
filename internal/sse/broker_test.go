package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("")
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
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "note.added", Data: map[string]string{"session": "Trip_Notes"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "id: 1\n") {
			t.Errorf("missing event id in %q", s)
		}
		if !strings.Contains(s, "event: note.added") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"session":"Trip_Notes"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

// drain waits briefly for the broker loop, then collects what is buffered.
func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestPublishChange_SessionsUpdatedThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// First session change triggers sessions.updated, the second is throttled.
	b.PublishChange(Change{Kind: SessionCreated, SessionType: "public", Session: "a"})
	b.PublishChange(Change{Kind: SessionCreated, SessionType: "public", Session: "b"})

	listCount, changeCount := 0, 0
	for _, s := range drain(ch) {
		if strings.Contains(s, "event: "+SessionsUpdated) {
			listCount++
		} else {
			changeCount++
		}
	}

	if changeCount != 2 {
		t.Errorf("change events = %d, want 2", changeCount)
	}
	if listCount != 1 {
		t.Errorf("sessions.updated events = %d, want 1 (throttled)", listCount)
	}
}

func TestPublishChange_NoteDoesNotRefreshList(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("public/Trip_Notes")
	defer b.Unsubscribe(ch)

	b.PublishChange(Change{Kind: NoteAdded, SessionType: "public", Session: "Trip_Notes", ID: 7})

	msgs := drain(ch)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1: %v", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], `"session":"Trip_Notes"`) || !strings.Contains(msgs[0], `"id":7`) {
		t.Errorf("unexpected payload %q", msgs[0])
	}
}

func TestPrivateChangesStayScoped(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()
	all := b.Subscribe("")
	defer b.Unsubscribe(all)
	diary := b.Subscribe("private/Diary")
	defer b.Unsubscribe(diary)
	other := b.Subscribe("public/Trip_Notes")
	defer b.Unsubscribe(other)

	b.PublishChange(Change{Kind: SessionCreated, SessionType: "private", Session: "Diary"})
	b.PublishChange(Change{Kind: NoteAdded, SessionType: "private", Session: "Diary", ID: 1})

	if msgs := drain(all); len(msgs) != 0 {
		t.Errorf("unscoped client saw private changes: %v", msgs)
	}
	if msgs := drain(other); len(msgs) != 0 {
		t.Errorf("other session saw private changes: %v", msgs)
	}
	if msgs := drain(diary); len(msgs) != 2 {
		t.Errorf("scoped client got %d messages, want 2: %v", len(msgs), msgs)
	}
}

// flushRecorder guards the recorder body shared with the handler goroutine.
type flushRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Write(p)
}

func (f *flushRecorder) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Body.String()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events?session=public/x", nil)
	req = req.WithContext(ctx)
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}

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

	b.PublishChange(Change{Kind: NoteUpdated, SessionType: "public", Session: "x", ID: 1})
	b.PublishChange(Change{Kind: NoteUpdated, SessionType: "public", Session: "y", ID: 2})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.body()
	if !strings.Contains(body, "event: note.updated") {
		t.Errorf("handler output missing event: %q", body)
	}
	if strings.Contains(body, `"session":"y"`) {
		t.Errorf("handler leaked another session: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandlerHeartbeat(t *testing.T) {
	old := Heartbeat
	Heartbeat = 10 * time.Millisecond
	t.Cleanup(func() { Heartbeat = old })

	b := NewBroker(time.Second)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	b.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx))

	if !strings.Contains(w.body(), ": ping") {
		t.Errorf("expected a heartbeat comment, got %q", w.body())
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("")
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
	b.Publish(Event{Type: NoteUpdated, Data: map[string]string{}})
	b.PublishChange(Change{Kind: NoteUpdated})
}
