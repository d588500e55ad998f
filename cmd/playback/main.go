// Command playback is the Generator Driver entry point: it
// streams a stored dataset through a single outlet, paced by the Pacer the
// same way a live Stream Worker paces its Sample Generator, reacting to the
// shared control stream for START/PAUSE/STOP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"

	"github.com/labstreaming/lsltools/internal/cliconfig"
	"github.com/labstreaming/lsltools/internal/control"
	"github.com/labstreaming/lsltools/internal/lsl"
	"github.com/labstreaming/lsltools/internal/monitor"
	"github.com/labstreaming/lsltools/internal/pacer"
	"github.com/labstreaming/lsltools/internal/playback"
)

func main() {
	fs := flag.NewFlagSet("playback", flag.ExitOnError)
	c := cliconfig.Register(fs)
	dataset := fs.String("dataset", "", "path to the dataset to play back (JSON-lines of [index, v0, v1...], optionally .br brotli-compressed)")
	name := fs.String("name", "playback", "outlet stream name")
	contentType := fs.String("content-type", "misc", "outlet stream content type")
	channelCount := fs.Int("channels", 0, "channel count; 0 infers from the dataset's first row")
	srate := fs.Float64("srate", 100, "nominal sample rate in Hz used to pace playback (0 = irregular, as fast as rows arrive)")
	loop := fs.Bool("loop", false, "restart from the first row after the dataset is exhausted")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("playback: parse flags: %v", err)
	}
	if *dataset == "" {
		log.Fatalf("playback: -dataset is required")
	}

	if c.Debug {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	rows := make(chan playback.Row, 64)
	driver := playback.New(*dataset, playback.Options{Loop: *loop, ReadChunkSize: c.ChunkSize})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driverErrCh := make(chan error, 1)
	go func() { driverErrCh <- driver.Run(ctx, rows) }()

	first, ok := <-rows
	if !ok {
		if err := <-driverErrCh; err != nil {
			log.Fatalf("playback: read dataset: %v", err)
		}
		log.Fatalf("playback: dataset %s is empty", *dataset)
	}
	if *channelCount <= 0 {
		*channelCount = len(first.Values)
	}

	descriptor := lsl.StreamDescriptor{
		Name:          *name,
		ContentType:   *contentType,
		ChannelCount:  *channelCount,
		NominalSRate:  *srate,
		ChannelFormat: lsl.FormatDouble64,
	}
	descriptor, diag := descriptor.Validate()
	if diag != "" {
		log.Printf("playback: %s", diag)
	}

	outlet, err := lsl.NewOutlet(descriptor, lsl.OutletOptions{ChunkSize: c.ChunkSize, MaxBuffered: c.MaxBuffered}, c.MulticastAddr)
	if err != nil {
		log.Fatalf("playback: open outlet: %v", err)
	}
	defer outlet.Close()

	monitorSender, err := monitor.NewSender(descriptor.Name, c.MulticastAddr, 1.0)
	if err != nil {
		log.Fatalf("playback: open monitor sender: %v", err)
	}
	defer monitorSender.Close()

	resolver, err := lsl.NewResolver(c.MulticastAddr)
	if err != nil {
		log.Fatalf("playback: open resolver: %v", err)
	}
	defer resolver.Close()
	controlReceiver := control.NewReceiver(resolver, c.ControlName, 16)
	defer controlReceiver.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("playback: streaming %s as %q (loop=%v)\n", *dataset, *name, *loop)
	runLoop(ctx, cancel, outlet, monitorSender, controlReceiver, rows, first, descriptor.NominalSRate, c.Latency, sig, driverErrCh)
}

// runLoop paces and pushes rows onto outlet, starting paused until a START
// control message arrives. PAUSE and STOP take effect as soon as they are
// received; their time_stamp is not waited for. Rows that arrive while not
// running, including the first row, are discarded rather than held.
func runLoop(ctx context.Context, cancel context.CancelFunc, outlet *lsl.Outlet, mon *monitor.Sender, controlReceiver *control.Receiver, rows <-chan playback.Row, first playback.Row, nominalSRate, latency float64, sig <-chan os.Signal, driverErrCh <-chan error) {
	var pc *pacer.Pacer
	running := false
	clock := pacer.SystemClock{}
	sleeper := pacer.RealSleeper{}

	pending := []playback.Row{first}
	var sampleCount int64

	applyStart := func(msg control.Message) {
		startTime := clock.Now()
		if msg.TimeStamp != nil {
			startTime = *msg.TimeStamp
		}
		lat := latency
		if msg.Latency != nil {
			lat = *msg.Latency
		}
		if nominalSRate > 0 {
			pc = pacer.New(nominalSRate, lat, startTime, clock, sleeper)
		}
		running = true
	}

	pushRow := func(row playback.Row) {
		var ts float64
		if pc != nil {
			ts = pc.Tick()
		} else {
			ts = clock.Now()
		}
		outlet.PushSample(lsl.Frame{Timestamp: ts, Values: row.Values})
		sampleCount++
		_ = mon.Send(map[string]any{"sample_count": sampleCount, "index": row.Index})
	}

	for {
		if len(pending) > 0 {
			if running {
				pushRow(pending[0])
			}
			pending = pending[1:]
			continue
		}

		select {
		case <-sig:
			fmt.Println("shutting down")
			cancel()
			<-driverErrCh
			return
		case tmsg, ok := <-controlReceiver.Out():
			if !ok {
				continue
			}
			switch tmsg.Message.State {
			case control.Start:
				applyStart(tmsg.Message)
			case control.Pause:
				running = false
			case control.Stop:
				cancel()
				<-driverErrCh
				return
			}
		case row, ok := <-rows:
			if !ok {
				err := <-driverErrCh
				if err != nil {
					log.Printf("playback: driver: %v", err)
				}
				return
			}
			if running {
				pushRow(row)
			}
		}
	}
}
