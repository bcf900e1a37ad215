package realtime

import (
	"context"
	"testing"
	"time"
)

func TestRecent_Record_KeepsLatestWithinCapacity(t *testing.T) {
	r := NewRecent(2)
	r.Record(lowStock("p-1", "2026-01-01T10:00:00"))
	r.Record(lowStock("p-2", "2026-01-01T11:00:00"))
	r.Record(lowStock("p-3", "2026-01-01T12:00:00"))

	got := r.Snapshot()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].SubjectID() != "p-2" || got[1].SubjectID() != "p-3" {
		t.Errorf("got %+v", got)
	}

	got[0].CurrentStock = 999
	if r.Snapshot()[0].CurrentStock == 999 {
		t.Error("Snapshot should return a copy")
	}
}

func TestRecent_Follow_RecordsHubEvents(t *testing.T) {
	h := NewHub(4, nil)
	r := NewRecent(0)
	sub := h.Subscribe("t")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Follow(ctx, sub)
	}()

	h.Publish(Event{Topic: "t", Notification: lowStock("p-1", "2026-01-01T10:00:00")})
	h.Publish(Event{Topic: "t", Body: []byte("garbage")})

	deadline := time.Now().Add(2 * time.Second)
	for len(r.Snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	got := r.Snapshot()
	if len(got) != 1 || got[0].SubjectID() != "p-1" {
		t.Errorf("got %+v, want only the decodable notification", got)
	}
	if h.Subscribers("t") != 0 {
		t.Error("Follow should close its subscription on return")
	}
}
