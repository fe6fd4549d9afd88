package events

import (
	"testing"

	"nftstake/core/types"
)

type testEvent struct{ kind string }

func (e testEvent) EventType() string { return e.kind }

type recorder struct{ seen []string }

func (r *recorder) Emit(evt Event) { r.seen = append(r.seen, evt.EventType()) }

func TestBufferFlushPreservesOrder(t *testing.T) {
	buf := NewBuffer()
	buf.Emit(testEvent{kind: "a"})
	buf.Emit(testEvent{kind: "b"})
	buf.Emit(nil)
	if buf.Len() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", buf.Len())
	}
	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.seen) != 2 || rec.seen[0] != "a" || rec.seen[1] != "b" {
		t.Fatalf("unexpected flush order: %v", rec.seen)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer not reset after flush")
	}
}

func TestBufferDiscard(t *testing.T) {
	buf := NewBuffer()
	buf.Emit(testEvent{kind: "a"})
	buf.Discard()
	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.seen) != 0 {
		t.Fatalf("discarded events were flushed: %v", rec.seen)
	}
}

func TestFanoutSkipsNil(t *testing.T) {
	first, second := &recorder{}, &recorder{}
	Fanout{first, nil, second}.Emit(testEvent{kind: "x"})
	if len(first.seen) != 1 || len(second.seen) != 1 {
		t.Fatalf("fanout did not reach both emitters")
	}
}

func TestEventClone(t *testing.T) {
	evt := &types.Event{Type: "t", Attributes: map[string]string{"k": "v"}}
	clone := evt.Clone()
	clone.Attributes["k"] = "changed"
	if evt.Attr("k") != "v" {
		t.Fatalf("clone shares attribute map")
	}
}
