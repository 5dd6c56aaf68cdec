package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendEventSequencing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.AppendEvent(ctx, "lead.created", "lead", "lead_1", "tester", nil); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	events, err := s.EventsAfter(ctx, 0, 0)
	if err != nil {
		t.Fatalf("events after: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, evt := range events {
		if evt.Seq != int64(i+1) {
			t.Fatalf("event %d has seq %d", i, evt.Seq)
		}
	}
}

func TestEventsAfterCursorAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := s.AppendEvent(ctx, "lead.created", "lead", "lead_1", "tester", nil); err != nil {
			t.Fatal(err)
		}
	}
	events, err := s.EventsAfter(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Seq != 3 || events[1].Seq != 4 {
		t.Fatalf("unexpected window: %+v", events)
	}
}

func TestTornFinalLineTolerated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.AppendEvent(ctx, "lead.created", "lead", "lead_1", "tester", nil); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash mid-append: garbage partial line at the tail.
	path := filepath.Join(s.Dir(), "events.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"seq":2,"type":"lead.tra`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	events, err := s.EventsAfter(ctx, 0, 0)
	if err != nil {
		t.Fatalf("read with torn tail: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("torn line should be skipped, got %d events", len(events))
	}

	// The next append restarts numbering after the last complete line.
	evt, err := s.AppendEvent(ctx, "lead.transitioned", "lead", "lead_1", "tester", nil)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Seq != 2 {
		t.Fatalf("expected seq 2 after torn line, got %d", evt.Seq)
	}
}

func TestTailEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := s.AppendEvent(ctx, "lead.created", "lead", "lead_1", "tester", nil); err != nil {
			t.Fatal(err)
		}
	}
	tail, err := s.TailEvents(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 || tail[1].Seq != 4 {
		t.Fatalf("unexpected tail: %+v", tail)
	}
}
