package cli

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/beroset/fncs/internal/broker"
	"github.com/beroset/fncs/internal/coordinator"
	"github.com/beroset/fncs/internal/status"
	"github.com/beroset/fncs/internal/trace"
	"github.com/beroset/fncs/internal/transport"
)

const (
	defaultEndpoint = "tcp://*:5570"
	traceFile       = "broker_trace.txt"
)

var runCmd = &cobra.Command{
	Use:   "run <n_sims> [<realtime_interval>]",
	Short: "Bind the broker and coordinate n_sims co-simulators",
	Args:  cobra.RangeArgs(1, 2),
	Run:   runBroker,
}

func runBroker(cmd *cobra.Command, args []string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)

	nSims, err := strconv.Atoi(args[0])
	if err != nil || nSims <= 0 {
		logrus.Fatalf("n_sims must be a positive integer, got %q", args[0])
	}

	var realtimeInterval time.Duration
	if len(args) == 2 {
		realtimeInterval, err = time.ParseDuration(args[1])
		if err != nil {
			logrus.Fatalf("invalid realtime_interval %q: %v", args[1], err)
		}
	}

	endpoint := envOr("FNCS_BROKER", defaultEndpoint)

	t, err := transport.NewZMQRouter(endpoint)
	if err != nil {
		logrus.WithError(err).Fatal("failed to bind transport")
	}
	atexit.Register(func() {
		if err := t.Close(); err != nil {
			logrus.WithError(err).Error("failed to close transport")
		}
	})

	// Everything from here on must exit through atexit.Exit, never
	// logrus.Fatal or os.Exit directly: the transport cleanup above is
	// only registered with atexit, not with logrus's exit handler, so a
	// Fatal here would leak the bound socket and context.
	traceSink, err := buildTraceSink()
	if err != nil {
		logrus.WithError(err).Error("failed to open trace file")
		atexit.Exit(1)
	}

	var statusPub broker.StatusPublisher
	var statusSrv *status.Server
	if statusAddr != "" {
		statusSrv = status.NewServer(statusAddr)
		statusSrv.Start()
		statusPub = statusSrv
		atexit.Register(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := statusSrv.Close(ctx); err != nil {
				logrus.WithError(err).Error("failed to close status server")
			}
		})
	}

	coord := coordinator.New(nSims, realtimeInterval)
	b := broker.New(t, coord, traceSink, statusPub)

	// A termination signal cancels ctx rather than touching the socket
	// itself: the loop goroutine is the only one that may ever call
	// Send/Recv on it. The loop notices the cancellation at its next poll
	// (see broker.Broker.Run), broadcasts DIE to every registered peer
	// exactly like any other abort, and returns here for the shared
	// atexit.Exit cleanup path below.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logrus.WithField("signal", sig).Warn("received termination signal, aborting")
		cancel()
	}()

	logrus.WithFields(logrus.Fields{
		"endpoint":          endpoint,
		"n_sims":            nSims,
		"realtime_interval": realtimeInterval,
	}).Info("broker listening")

	code := b.Run(ctx)
	atexit.Exit(code)
}

func buildTraceSink() (trace.Sink, error) {
	enabled := envOr("FNCS_TRACE", "")
	if len(enabled) == 0 {
		return trace.NoopSink{}, nil
	}
	switch enabled[0] {
	case 'Y', 'y', 'T', 't':
		return trace.NewFileSink(traceFile)
	default:
		return trace.NoopSink{}, nil
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
