package gossip

import "testing"

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func TestInsertIsIdempotent(t *testing.T) {
	e := NewEngine([]string{"n2"})
	if !e.Insert(1) {
		t.Fatal("expected first insert of 1 to report new")
	}
	if e.Insert(1) {
		t.Fatal("expected second insert of 1 to report not-new")
	}
	if len(e.Messages()) != 1 {
		t.Fatalf("expected exactly one message, got %v", e.Messages())
	}
}

func TestDigestOnlyContainsUnseenMessages(t *testing.T) {
	e := NewEngine([]string{"n2"})
	e.Insert(1)
	e.Insert(2)

	digest := e.Digest("n2")
	if !contains(digest, 1) || !contains(digest, 2) {
		t.Fatalf("expected digest to contain both values, got %v", digest)
	}

	e.RecordPending(10, digest)
	e.Ack("n2", 10)

	if d := e.Digest("n2"); len(d) != 0 {
		t.Fatalf("expected empty digest after ack, got %v", d)
	}
}

func TestReceiveGossipMergesAndMarksSenderSeen(t *testing.T) {
	e := NewEngine([]string{"n2"})
	e.ReceiveGossip("n2", []int{5, 6})

	if !contains(e.Messages(), 5) || !contains(e.Messages(), 6) {
		t.Fatalf("expected merged set to contain gossiped values, got %v", e.Messages())
	}
	if d := e.Digest("n2"); len(d) != 0 {
		t.Fatalf("expected sender's digest to be empty (it already has what it sent), got %v", d)
	}
}

func TestAckOnUnknownMsgIDIsNoOp(t *testing.T) {
	e := NewEngine([]string{"n2"})
	e.Insert(1)
	e.Ack("n2", 999) // no matching RecordPending

	if d := e.Digest("n2"); len(d) != 1 {
		t.Fatalf("expected digest unaffected by a stale ack, got %v", d)
	}
}

func TestTwoEnginesConvergeAfterMutualGossip(t *testing.T) {
	a := NewEngine([]string{"b"})
	b := NewEngine([]string{"a"})

	a.Insert(1)
	a.Insert(2)
	b.Insert(3)

	digestAtoB := a.Digest("b")
	b.ReceiveGossip("a", digestAtoB)

	digestBtoA := b.Digest("a")
	a.ReceiveGossip("b", digestBtoA)

	wantA, wantB := a.Messages(), b.Messages()
	if len(wantA) != 3 || len(wantB) != 3 {
		t.Fatalf("expected both engines to converge on 3 messages, got a=%v b=%v", wantA, wantB)
	}
}
