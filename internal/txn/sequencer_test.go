package txn

import (
	"reflect"
	"testing"
)

func writeOp(key, value int) Op {
	v := value
	return Op{Kind: "w", Key: key, Value: &v}
}

func readOp(key int) Op {
	return Op{Kind: "r", Key: key}
}

func TestPreviewReflectsOwnPendingWrites(t *testing.T) {
	s := NewSequencer("n1", []string{"n2", "n3"})

	s.Preview([]Op{writeOp(1, 100)})
	result := s.Preview([]Op{readOp(1)})

	if len(result) != 1 || result[0].Value == nil || *result[0].Value != 100 {
		t.Fatalf("expected optimistic read to see own pending write, got %+v", result)
	}

	if _, ok := s.KV(1); ok {
		t.Fatal("expected kv to stay uncommitted until a flush applies it")
	}
}

func TestThreeNodeClusterConvergesDeterministically(t *testing.T) {
	s1 := NewSequencer("n1", []string{"n2", "n3"})
	s2 := NewSequencer("n2", []string{"n1", "n3"})
	s3 := NewSequencer("n3", []string{"n1", "n2"})

	s1.Preview([]Op{writeOp(1, 100)})
	s2.Preview([]Op{writeOp(2, 200)})

	// First phase switch: each node offers its own contribution but
	// sees no peer entries yet for the freshly-started epoch, so no
	// quorum and no apply.
	b1, applied1 := s1.PhaseSwitch()
	b2, applied2 := s2.PhaseSwitch()
	b3, applied3 := s3.PhaseSwitch()
	if len(applied1) != 0 || len(applied2) != 0 || len(applied3) != 0 {
		t.Fatalf("expected no apply before any peer broadcast is observed, got %v %v %v", applied1, applied2, applied3)
	}

	// Deliver each node's broadcast to the other two.
	s1.ReceiveBroadcast("n2", b2)
	s1.ReceiveBroadcast("n3", b3)
	s2.ReceiveBroadcast("n1", b1)
	s2.ReceiveBroadcast("n3", b3)
	s3.ReceiveBroadcast("n1", b1)
	s3.ReceiveBroadcast("n2", b2)

	// Second phase switch: every node now has an entry from every peer
	// for the epoch it's about to flush, so quorum is met everywhere.
	_, applied1 = s1.PhaseSwitch()
	_, applied2 = s2.PhaseSwitch()
	_, applied3 = s3.PhaseSwitch()

	if len(applied1) == 0 {
		t.Fatal("expected the second phase switch to reach quorum and apply")
	}
	if !reflect.DeepEqual(applied1, applied2) || !reflect.DeepEqual(applied2, applied3) {
		t.Fatalf("expected identical flush order on every node, got\n%+v\n%+v\n%+v", applied1, applied2, applied3)
	}

	for _, s := range []*Sequencer{s1, s2, s3} {
		if v, ok := s.KV(1); !ok || v != 100 {
			t.Fatalf("expected kv[1]=100 on every node, got %v ok=%v", v, ok)
		}
		if v, ok := s.KV(2); !ok || v != 200 {
			t.Fatalf("expected kv[2]=200 on every node, got %v ok=%v", v, ok)
		}
	}
}

func TestReceiveBroadcastReplayIsIdempotent(t *testing.T) {
	s := NewSequencer("n1", []string{"n2"})
	txns := []SeqTxn{{Seq: 0, Ops: []Op{writeOp(1, 1)}}}

	s.ReceiveBroadcast("n2", txns)
	s.ReceiveBroadcast("n2", txns)

	if got := len(s.buf[s.epoch]); got != 1 {
		t.Fatalf("expected a replayed broadcast to overwrite the same entry, not add one, got %d entries", got)
	}
	if !reflect.DeepEqual(s.buf[s.epoch]["n2"], txns) {
		t.Fatalf("expected buffered entry to match the replayed payload, got %+v", s.buf[s.epoch]["n2"])
	}
}

func TestUnflushedContributionIsReofferedInALaterEpoch(t *testing.T) {
	s1 := NewSequencer("n1", []string{"n2"})
	s2 := NewSequencer("n2", []string{"n1"})

	s1.Preview([]Op{writeOp(1, 7)})

	// n1 flushes alone; n2 never participates, so quorum never forms
	// and n1's write must stay pending across epochs.
	for i := 0; i < 3; i++ {
		broadcast, applied := s1.PhaseSwitch()
		if len(applied) != 0 {
			t.Fatalf("expected no quorum while n2 never contributes, got %v", applied)
		}
		if len(broadcast) != 1 {
			t.Fatalf("expected the pending write to be re-offered in epoch %d, got %v", i, broadcast)
		}
	}

	if len(s1.pendingSelf) != 1 {
		t.Fatalf("expected the write to remain pending for later re-offer, got %d entries", len(s1.pendingSelf))
	}
	_ = s2
}
