// Command monitor is the monitor entry point: it resolves
// every heartbeat stream on the network, aggregates the
// latest message per source, prints a periodic pretty-printed table
// and optionally serves Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstreaming/lsltools/internal/cliconfig"
	"github.com/labstreaming/lsltools/internal/lsl"
	"github.com/labstreaming/lsltools/internal/monitor"
)

func main() {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	c := cliconfig.Register(fs)
	printInterval := fs.Duration("print-interval", 2*time.Second, "how often to print the aggregated table")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("monitor: parse flags: %v", err)
	}

	resolver, err := lsl.NewResolver(c.MulticastAddr)
	if err != nil {
		log.Fatalf("monitor: open resolver: %v", err)
	}
	defer resolver.Close()

	receiver := monitor.NewReceiver(resolver, 256)
	defer receiver.Stop()

	agg := monitor.NewAggregator()

	var metricsServer *monitor.MetricsServer
	if c.MetricsAddr != "" {
		metricsServer = monitor.NewMetricsServer(c.MetricsAddr)
		metricsServer.Start()
		log.Printf("monitor: serving Prometheus metrics on %s/metrics", c.MetricsAddr)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metricsServer.Stop(ctx)
		}()
	}

	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		for msg := range receiver.Out() {
			agg.IngestOne(msg)
			if metricsServer != nil {
				monitor.RecordHeartbeat(msg, lsl.LocalClock())
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*printInterval)
	defer ticker.Stop()

	fmt.Printf("monitor: watching %s for heartbeat streams\n", c.MulticastAddr)
	for {
		select {
		case <-ingestDone:
			return
		case <-ticker.C:
			now := lsl.LocalClock()
			snapshot := agg.Snapshot()
			if metricsServer != nil {
				monitor.RecordStreamsSeen(snapshot)
			}
			fmt.Print(agg.Pretty(now))
		case <-sig:
			fmt.Println("shutting down")
			return
		}
	}
}
