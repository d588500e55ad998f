package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/labstreaming/lsltools/internal/control"
	"github.com/labstreaming/lsltools/internal/worker"
)

// ReadSpecFD decodes the worker.Spec a parent wrote to SpecFD.
func ReadSpecFD() (worker.Spec, error) {
	f := os.NewFile(uintptr(SpecFD), "spec")
	if f == nil {
		return worker.Spec{}, fmt.Errorf("ipc: fd %d not open", SpecFD)
	}
	defer f.Close()
	var spec worker.Spec
	if err := json.NewDecoder(f).Decode(&spec); err != nil {
		return worker.Spec{}, fmt.Errorf("ipc: decode spec: %w", err)
	}
	return spec, nil
}

// StdinMailbox implements worker.Mailbox by decoding control.Message JSON
// lines from an io.Reader (normally os.Stdin) in a background goroutine.
type StdinMailbox struct {
	ch     chan control.Message
	doneCh chan struct{}
}

// NewStdinMailbox starts reading r line-by-line until EOF or a read error,
// after which the mailbox's channel closes. Lines that fail to decode are
// logged and skipped.
func NewStdinMailbox(r io.Reader) *StdinMailbox {
	m := &StdinMailbox{ch: make(chan control.Message, 8), doneCh: make(chan struct{})}
	go m.run(r)
	return m
}

func (m *StdinMailbox) run(r io.Reader) {
	defer close(m.ch)
	defer close(m.doneCh)
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 4096)
	sc.Buffer(buf, 1<<20)
	for sc.Scan() {
		msg, err := control.Decode(sc.Text())
		if err != nil {
			log.Printf("ipc: malformed control line: %v", err)
			continue
		}
		m.ch <- msg
	}
}

func (m *StdinMailbox) Recv(ctx context.Context) (control.Message, bool) {
	select {
	case msg, ok := <-m.ch:
		return msg, ok
	case <-ctx.Done():
		return control.Message{}, false
	}
}

func (m *StdinMailbox) TryRecv() (control.Message, bool) {
	select {
	case msg, ok := <-m.ch:
		return msg, ok
	default:
		return control.Message{}, false
	}
}

// StdoutStatusWriter serializes worker.Status (or any JSON-able value) as
// newline-delimited JSON to w (normally os.Stdout), safe for concurrent use
// since the encoder itself is not goroutine-safe.
type StdoutStatusWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewStdoutStatusWriter(w io.Writer) *StdoutStatusWriter {
	return &StdoutStatusWriter{enc: json.NewEncoder(w)}
}

func (s *StdoutStatusWriter) Write(status any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(status)
}
