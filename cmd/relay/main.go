// Command relay is the Relay Worker entry point. Run with no
// -worker-mode flag, it is the Supervisor parent: it resolves upstream
// streams matching a predicate and re-execs itself once per match, in
// -worker-mode=relay, to run a single Relay Worker as its own OS process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstreaming/lsltools/internal/cliconfig"
	"github.com/labstreaming/lsltools/internal/control"
	"github.com/labstreaming/lsltools/internal/ipc"
	"github.com/labstreaming/lsltools/internal/lsl"
	"github.com/labstreaming/lsltools/internal/monitor"
	"github.com/labstreaming/lsltools/internal/supervisor"
	"github.com/labstreaming/lsltools/internal/worker"
)

func main() {
	fs := flag.NewFlagSet("relay", flag.ExitOnError)
	c := cliconfig.Register(fs)
	workerMode := fs.String("worker-mode", "", "internal: run as a single relay worker child (set to \"relay\" by the parent)")
	upstreamType := fs.String("upstream-type", "", "content_type to match for upstream streams (empty = any)")
	upstreamHostname := fs.String("upstream-hostname", "", "hostname to match for upstream streams (empty = any)")
	allowNonLocal := fs.Bool("allow-non-local", false, "relay upstream streams from any host, not just this relay's own host")
	reEncode := fs.Bool("reencode-timestamps", false, "stamp relayed samples with the relay's own local clock instead of forwarding the upstream timestamp")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("relay: parse flags: %v", err)
	}

	if *workerMode == "relay" {
		runWorker(c)
		return
	}
	runSupervisor(c, *upstreamType, *upstreamHostname, *allowNonLocal, *reEncode)
}

// runSupervisor resolves upstream matches and spawns one relay worker child
// per StreamKey. Unless allowNonLocal is set, only streams from this host
// are considered, so a fleet of relays does not chain into relaying each
// other's relayed and monitor streams.
func runSupervisor(c *cliconfig.Config, upstreamType, upstreamHostname string, allowNonLocal, reEncode bool) {
	resolver, err := lsl.NewResolver(c.MulticastAddr)
	if err != nil {
		log.Fatalf("relay: open resolver: %v", err)
	}
	defer resolver.Close()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	preds := []lsl.Predicate{lsl.RelayExclusionPredicate(hostname, allowNonLocal)}
	if upstreamType != "" {
		preds = append(preds, lsl.TypeEquals(upstreamType))
	}
	if upstreamHostname != "" {
		preds = append(preds, lsl.HostnameEquals(upstreamHostname))
	}
	predicate := lsl.And(preds...)

	exe, err := os.Executable()
	if err != nil {
		log.Fatalf("relay: resolve own executable: %v", err)
	}

	args := func(name string) []string {
		a := []string{
			"-worker-mode=relay",
			"-multicast-addr=" + c.MulticastAddr,
			"-latency=" + formatFloat(c.Latency),
			"-upstream-hostname=" + upstreamHostname,
		}
		if reEncode {
			a = append(a, "-reencode-timestamps")
		}
		return a
	}

	sup := supervisor.New(exe, args, nil, resolver, predicate, func(info lsl.StreamInfo) worker.Spec {
		return worker.Spec{
			Descriptor: lsl.StreamDescriptor{
				Name:         worker.RelayOutletPrefix + info.Descriptor.Name,
				ChannelCount: info.Descriptor.ChannelCount,
			},
			RelayUpstreamName:        info.Descriptor.Name,
			RelayUpstreamContentType: info.Descriptor.ContentType,
			RelayUpstreamHostname:    info.Descriptor.Hostname,
			RelayReEncodeTimestamps:  reEncode,
			MulticastAddr:            c.MulticastAddr,
		}
	}, true, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("shutting down")
		cancel()
	}()

	statusDone := make(chan struct{})
	go func() {
		defer close(statusDone)
		for st := range sup.Status() {
			log.Printf("relay[%s]: phase=%s samples=%d", st.Name, st.Phase, st.SampleCount)
		}
	}()

	fmt.Printf("relay: supervising upstream matches on %s\n", c.MulticastAddr)
	if err := sup.Run(ctx); err != nil {
		log.Printf("relay: supervisor: %v", err)
	}
	<-statusDone
}

// runWorker runs a single Relay Worker as a re-exec'd child: it reads its
// WorkerSpec from SpecFD, reports status over stdout, and terminates on a
// STOP control message delivered over stdin or on SIGINT/SIGTERM — the
// process-boundary equivalent of the in-process mailbox STOP the Relay
// Worker's free-running loop does not itself consume.
func runWorker(c *cliconfig.Config) {
	spec, err := ipc.ReadSpecFD()
	if err != nil {
		log.Fatalf("relay worker: read spec: %v", err)
	}

	resolver, err := lsl.NewResolver(spec.MulticastAddr)
	if err != nil {
		log.Fatalf("relay worker: open resolver: %v", err)
	}
	defer resolver.Close()

	statusW := ipc.NewStdoutStatusWriter(os.Stdout)
	heartbeat := func(st worker.Status) { _ = statusW.Write(st) }

	monitorSender, err := monitor.NewSender(worker.MonitorOutletName(spec.RelayUpstreamName), spec.MulticastAddr, 1.0)
	if err == nil {
		defer monitorSender.Close()
		inner := heartbeat
		heartbeat = func(st worker.Status) {
			inner(st)
			_ = monitorSender.Send(st)
		}
	} else {
		log.Printf("relay worker: open monitor sender: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	rw, err := worker.NewRelayWorker(ctx, spec, resolver, heartbeat)
	if err != nil {
		cancel()
		log.Fatalf("relay worker: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	mb := ipc.NewStdinMailbox(os.Stdin)
	go func() {
		for {
			msg, ok := mb.Recv(ctx)
			if !ok {
				cancel()
				return
			}
			if msg.State == control.Stop {
				cancel()
				return
			}
		}
	}()

	if err := rw.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("relay worker: %v", err)
		os.Exit(1)
	}
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
