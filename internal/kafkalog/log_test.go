package kafkalog

import (
	"reflect"
	"testing"
)

func TestAppendAssignsSequentialOffsets(t *testing.T) {
	s := NewState()
	if off := s.Append("k1", 10); off != 0 {
		t.Fatalf("expected first offset 0, got %d", off)
	}
	if off := s.Append("k1", 20); off != 1 {
		t.Fatalf("expected second offset 1, got %d", off)
	}
}

func TestAppendDedupesByValue(t *testing.T) {
	s := NewState()
	s.Append("k1", 10)
	s.Append("k1", 20)

	if off := s.Append("k1", 10); off != 0 {
		t.Fatalf("expected retried append of existing value to return its original offset 0, got %d", off)
	}
	if log := s.Log("k1"); len(log) != 2 {
		t.Fatalf("expected log to stay append-only without a duplicate entry, got %v", log)
	}
}

func TestAdoptIgnoresShorterProposal(t *testing.T) {
	s := NewState()
	s.Adopt("k1", []int{1, 2, 3})
	s.Adopt("k1", []int{9})

	if log := s.Log("k1"); !reflect.DeepEqual(log, []int{1, 2, 3}) {
		t.Fatalf("expected shorter adopt to be ignored, got %v", log)
	}
}

func TestPollReturnsOffsetValuePairsFromRequestedOffset(t *testing.T) {
	s := NewState()
	s.Append("k1", 10)
	s.Append("k1", 20)
	s.Append("k1", 30)

	got := s.Poll(map[string]uint64{"k1": 1})
	want := [][2]int{{1, 20}, {2, 30}}
	if !reflect.DeepEqual(got["k1"], want) {
		t.Fatalf("expected %v, got %v", want, got["k1"])
	}
}

func TestPollOmitsKeysWithNoLog(t *testing.T) {
	s := NewState()
	got := s.Poll(map[string]uint64{"missing": 0})
	if _, ok := got["missing"]; ok {
		t.Fatalf("expected missing key to be omitted entirely, got %v", got)
	}
}

func TestCommitOffsetsOnlyAdvances(t *testing.T) {
	s := NewState()
	s.CommitOffsets(map[string]uint64{"k1": 5})
	s.CommitOffsets(map[string]uint64{"k1": 2})

	got := s.ListCommittedOffsets([]string{"k1"})
	if got["k1"] != 5 {
		t.Fatalf("expected committed watermark to stay at max 5, got %d", got["k1"])
	}
}

func TestListCommittedOffsetsOmitsNeverCommittedKeys(t *testing.T) {
	s := NewState()
	got := s.ListCommittedOffsets([]string{"k1"})
	if _, ok := got["k1"]; ok {
		t.Fatalf("expected no entry for a key never committed, got %v", got)
	}
}
