// Command control opens a Control Sender outlet and runs an interactive
// REPL that sends start/pause/stop to every worker listening on the
// control stream.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstreaming/lsltools/internal/cliconfig"
	"github.com/labstreaming/lsltools/internal/control"
)

func main() {
	fs := flag.NewFlagSet("control", flag.ExitOnError)
	c := cliconfig.Register(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("control: parse flags: %v", err)
	}

	sender, err := control.NewSender(c.ControlName, c.Latency, c.MulticastAddr)
	if err != nil {
		log.Fatalf("control: open sender: %v", err)
	}
	defer sender.Close()

	stopCh := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		close(stopCh)
	}()

	fmt.Printf("control: publishing on %q (latency=%.3fs). Commands: start, pause, stop.\n", c.ControlName, c.Latency)
	sender.RunREPL(os.Stdin, os.Stdout, stopCh)
}
