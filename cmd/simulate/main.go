// Command simulate is the in-process stream generator entry point:
// it opens N outlets, each driven by a Stream Worker emitting samples from
// the pure Sample Generator, barrier-synchronized so the first START lands
// at nearly the same wall time across all of them, and all controllable
// through a shared Control Receiver.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/pkg/profile"

	"github.com/labstreaming/lsltools/internal/cliconfig"
	"github.com/labstreaming/lsltools/internal/control"
	"github.com/labstreaming/lsltools/internal/lsl"
	"github.com/labstreaming/lsltools/internal/monitor"
	"github.com/labstreaming/lsltools/internal/pacer"
	"github.com/labstreaming/lsltools/internal/sample"
	"github.com/labstreaming/lsltools/internal/worker"
)

func main() {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	c := cliconfig.Register(fs)
	streamCount := fs.Int("streams", 1, "number of streams to simulate")
	channelCount := fs.Int("channels", 8, "channels per stream")
	srate := fs.Float64("srate", 100, "nominal sample rate in Hz (0 = irregular)")
	channelFns := fs.String("channel-fns", "counter+", "comma-separated per-channel function tags")
	namePrefix := fs.String("name-prefix", "sim", "stream name prefix; streams are named <prefix>-0, <prefix>-1...")
	contentType := fs.String("content-type", "misc", "stream content type")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("simulate: parse flags: %v", err)
	}

	if c.Debug {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	if *streamCount <= 0 {
		log.Fatalf("simulate: --streams must be positive")
	}

	fns := parseChannelFns(*channelFns)
	labels, types := sample.Metadata(fns, *channelCount)

	receiver, err := newControlReceiver(c.MulticastAddr, c.ControlName)
	if err != nil {
		log.Fatalf("simulate: open control receiver: %v", err)
	}
	defer receiver.Stop()

	barrier := worker.NewBarrier(*streamCount)
	mailboxes := make([]*worker.ChanMailbox, *streamCount)
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < *streamCount; i++ {
		descriptor := lsl.StreamDescriptor{
			Name:          fmt.Sprintf("%s-%d", *namePrefix, i),
			ContentType:   *contentType,
			ChannelCount:  *channelCount,
			NominalSRate:  *srate,
			ChannelFormat: lsl.FormatDouble64,
			ChannelLabels: labels,
			ChannelTypes:  types,
		}
		descriptor, diag := descriptor.Validate()
		if diag != "" {
			log.Printf("simulate: %s: %s", descriptor.Name, diag)
		}

		outlet, err := lsl.NewOutlet(descriptor, lsl.OutletOptions{ChunkSize: c.ChunkSize, MaxBuffered: c.MaxBuffered}, c.MulticastAddr)
		if err != nil {
			log.Fatalf("simulate: open outlet %s: %v", descriptor.Name, err)
		}

		monitorSender, err := monitor.NewSender(descriptor.Name, c.MulticastAddr, 1.0)
		if err != nil {
			log.Fatalf("simulate: open monitor sender for %s: %v", descriptor.Name, err)
		}

		mb := worker.NewChanMailbox(8)
		mailboxes[i] = mb

		spec := worker.Spec{
			Descriptor: descriptor,
			ChannelFns: fns,
			Latency:    c.Latency,
		}
		heartbeat := func(status worker.Status) {
			_ = monitorSender.Send(status)
		}
		w := worker.New(spec, i, mb, pacer.SystemClock{}, pacer.RealSleeper{}, outlet, heartbeat)

		wg.Add(1)
		go func(name string, mon *monitor.Sender) {
			defer wg.Done()
			defer mon.Close()
			w.Run(ctx, barrier)
		}(descriptor.Name, monitorSender)
	}

	go dispatchControl(ctx, receiver, mailboxes)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	fmt.Printf("simulate: running %d streams (control=%q)\n", *streamCount, c.ControlName)
	<-sig
	fmt.Println("shutting down")
	cancel()
	for _, mb := range mailboxes {
		mb.Close()
	}
	wg.Wait()
}

func newControlReceiver(multicastAddr, controlName string) (*control.Receiver, error) {
	resolver, err := lsl.NewResolver(multicastAddr)
	if err != nil {
		return nil, err
	}
	return control.NewReceiver(resolver, controlName, 64), nil
}

// dispatchControl forwards every message observed on the control stream to
// every worker's mailbox.
func dispatchControl(ctx context.Context, receiver *control.Receiver, mailboxes []*worker.ChanMailbox) {
	for {
		select {
		case <-ctx.Done():
			return
		case tm, ok := <-receiver.Out():
			if !ok {
				return
			}
			for _, mb := range mailboxes {
				mb.Send(tm.Message)
			}
		}
	}
}

func parseChannelFns(raw string) []sample.Tag {
	parts := strings.Split(raw, ",")
	tags := make([]sample.Tag, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tags = append(tags, sample.Tag(p))
	}
	if len(tags) == 0 {
		tags = append(tags, sample.TagCounterPlus)
	}
	return tags
}
