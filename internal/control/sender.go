package control

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/labstreaming/lsltools/internal/lsl"
)

// Sender is an interactive REPL that publishes START/PAUSE/STOP markers
// with a scheduled timestamp.
type Sender struct {
	outlet  *lsl.Outlet
	latency float64
}

// NewSender opens a single-channel string marker outlet named name
// (channel_count=1, channel_format='string', nominal_srate=0).
func NewSender(name string, latency float64, multicastAddr string) (*Sender, error) {
	desc := lsl.StreamDescriptor{
		Name: name, ContentType: "control", ChannelCount: 1,
		NominalSRate: lsl.IrregularRate, ChannelFormat: lsl.FormatString,
		SourceID: name + "-control",
	}
	outlet, err := lsl.NewOutlet(desc, lsl.OutletOptions{ChunkSize: 1, MaxBuffered: 4}, multicastAddr)
	if err != nil {
		return nil, fmt.Errorf("control: new sender outlet: %w", err)
	}
	return &Sender{outlet: outlet, latency: latency}, nil
}

// Send publishes one command ("start", "pause", or "stop") with a
// timestamp of local_clock+latency. START also includes latency so
// downstream workers know how far into the future the timestamp is
// shifted.
func (s *Sender) Send(cmd string) error {
	ts := lsl.LocalClock() + s.latency
	var msg Message
	switch strings.ToLower(strings.TrimSpace(cmd)) {
	case "start":
		msg = NewStart(ts, s.latency)
	case "pause":
		msg = NewPause(ts)
	case "stop":
		msg = NewStop(ts)
	default:
		return fmt.Errorf("control: unrecognised command %q", cmd)
	}
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	s.outlet.PushSample(lsl.Frame{Timestamp: ts, Value: payload})
	return nil
}

// Close shuts down the sender's outlet.
func (s *Sender) Close() error { return s.outlet.Close() }

// RunREPL reads "start|pause|stop" lines from r, publishing each as it
// arrives, until r is exhausted or cancellation is signalled via a closed
// stopCh. Output/prompts go to w.
func (s *Sender) RunREPL(r io.Reader, w io.Writer, stopCh <-chan struct{}) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	fmt.Fprintln(w, "control> (start|pause|stop)")
	for {
		select {
		case <-stopCh:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := s.Send(line); err != nil {
				log.Printf("control: send %q: %v", line, err)
				continue
			}
			fmt.Fprintf(w, "control> sent %s\n", strings.ToUpper(line))
		}
	}
}
