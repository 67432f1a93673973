// Package eventloop implements the node's single-writer scheduling
// model: one ingress reader, one ticker goroutine per periodic task,
// and one dispatcher loop that owns all node state. Producers only
// ever send on a channel; only the dispatcher mutates state or writes
// to stdout.
//
// Grounded architecturally on dedis-tlc's go/tlc/minnet package, the
// one repo in the retrieval pack built around a single goroutine
// draining a receive channel rather than a pool of goroutines behind a
// mutex (the teacher repo's style); no go.mod backs that package, so
// it contributes the shape, not a dependency.
package eventloop

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"maelnode/internal/protocol"
)

// Task identifies a periodic internal event.
type Task int

const (
	TaskCentralGossip Task = iota
	TaskMeshGossip
	TaskCounterGossip
	TaskPhaseSwitch
)

func (t Task) String() string {
	switch t {
	case TaskCentralGossip:
		return "central_gossip"
	case TaskMeshGossip:
		return "mesh_gossip"
	case TaskCounterGossip:
		return "counter_gossip"
	case TaskPhaseSwitch:
		return "phase_switch"
	default:
		return "unknown_task"
	}
}

// Event is the tagged union the dispatcher consumes: either an
// external message read from stdin, or an internal timer tick.
type Event struct {
	External *protocol.Message
	Internal Task
	IsTimer  bool
}

// Handler mutates node state in response to one Event and returns zero
// or more outbound messages to write to stdout, in order.
type Handler func(Event) []protocol.Message

// maxScanBuffer sizes the stdin scanner generously, matching the
// teacher's habit of over-provisioning buffers rather than tuning them
// per workload (internal/gossip/gossip.go's fixed-size channels).
const maxScanBuffer = 1 << 20

// Run drives the event loop until ctx is cancelled or reader reaches
// EOF. Cancelling ctx stops the tickers at once; the ingress reader
// sees it only after its next line or EOF, and a blocked read is not
// interrupted. It returns a non-nil error for an unparseable input
// line (spec: fatal to the ingress reader), a read error from reader,
// or a failed write; clean EOF returns nil.
func Run(ctx context.Context, reader io.Reader, writer io.Writer, tickers map[Task]time.Duration, handle Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan Event, 256)
	var wg sync.WaitGroup
	var ingressErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		ingressErr = runIngress(ctx, reader, events)
	}()

	for task, interval := range tickers {
		wg.Add(1)
		go func(task Task, interval time.Duration) {
			defer wg.Done()
			runTicker(ctx, task, interval, events)
		}(task, interval)
	}

	go func() {
		wg.Wait()
		close(events)
	}()

	enc := json.NewEncoder(writer)
	for event := range events {
		for _, out := range handle(event) {
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("write message: %w", err)
			}
		}
	}

	return ingressErr
}

func runIngress(ctx context.Context, reader io.Reader, events chan<- Event) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanBuffer)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg protocol.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return fmt.Errorf("parse input line: %w", err)
		}

		select {
		case events <- Event{External: &msg}:
		case <-ctx.Done():
			return nil
		}
	}

	return scanner.Err()
}

func runTicker(ctx context.Context, task Task, interval time.Duration, events chan<- Event) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case events <- Event{Internal: task, IsTimer: true}:
			case <-ctx.Done():
				return
			}
		}
	}
}
