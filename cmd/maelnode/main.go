package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"maelnode/internal/eventloop"
	"maelnode/internal/server"
)

func main() {
	noBroadcast := flag.Bool("no-broadcast", false, "disable the broadcast workload")
	noCounter := flag.Bool("no-counter", false, "disable the g-counter workload")
	noKafka := flag.Bool("no-kafka", false, "disable the replicated-log workload")
	noTxn := flag.Bool("no-txn", false, "disable the transaction workload")

	meshGossip := flag.Duration("mesh-gossip-interval", server.DefaultCadences().MeshGossip, "mesh gossip tick interval")
	centralGossip := flag.Duration("central-gossip-interval", server.DefaultCadences().CentralGossip, "central gossip tick interval")
	counterGossip := flag.Duration("counter-gossip-interval", server.DefaultCadences().CounterGossip, "counter gossip tick interval")
	phaseSwitch := flag.Duration("phase-switch-interval", server.DefaultCadences().PhaseSwitch, "transaction phase-switch tick interval")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	features := server.Features{
		Broadcast: !*noBroadcast,
		GCounter:  !*noCounter,
		Kafka:     !*noKafka,
		Txn:       !*noTxn,
	}
	cadences := server.Cadences{
		MeshGossip:    *meshGossip,
		CentralGossip: *centralGossip,
		CounterGossip: *counterGossip,
		PhaseSwitch:   *phaseSwitch,
	}

	n := server.New(sugar, features, cadences, cancel)

	err := eventloop.Run(ctx, os.Stdin, os.Stdout, n.Tickers(), n.Handle)
	if fatal := n.Fatal(); fatal != nil {
		sugar.Errorw("shutting down on invariant violation", "error", fatal)
		os.Exit(1)
	}
	if err != nil {
		sugar.Errorw("shutting down on ingress error", "error", err)
		os.Exit(1)
	}
}

// newLogger builds a production zap logger writing structured logs to
// stderr, keeping stdout reserved for the wire protocol.
func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.EpochNanosTimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
