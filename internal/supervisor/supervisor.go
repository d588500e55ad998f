// Package supervisor implements resolver-driven worker supervision: two
// concurrent loops, one discovering and spawning workers from live resolver
// matches, one broadcasting control messages and draining worker status,
// generalized from a static instance-list restart loop into a dynamic
// StreamKey-deduplicated worker set spawned over internal/ipc.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/labstreaming/lsltools/internal/control"
	"github.com/labstreaming/lsltools/internal/ipc"
	"github.com/labstreaming/lsltools/internal/lsl"
	"github.com/labstreaming/lsltools/internal/worker"
)

// SpecFactory builds the worker.Spec to spawn for a newly-resolved stream.
type SpecFactory func(info lsl.StreamInfo) worker.Spec

// ArgsFactory builds the re-exec command-line for a spawned worker child
// identified by name (e.g. ["-worker-mode=relay", "-name=" + name]).
type ArgsFactory func(name string) []string

// Supervisor owns the active set of subprocess workers matched by one
// resolver predicate.
type Supervisor struct {
	exe            string
	args           ArgsFactory
	env            map[string]string
	resolver       *lsl.Resolver
	predicate      lsl.Predicate
	specFactory    SpecFactory
	includeContent bool

	controlReceiver *control.Receiver

	mu     sync.Mutex
	active map[lsl.StreamKey]*ipc.Child

	statusOut chan worker.Status
}

// New builds a Supervisor: the resolver loop spawns one worker per
// newly-matched StreamKey (e.g. one Relay Worker per discovered upstream)
// and tears it down when the worker process exits, making the StreamKey
// eligible for respawn on the next tick. includeContentType should be true
// for relay supervision.
func New(exe string, args ArgsFactory, env map[string]string, resolver *lsl.Resolver, predicate lsl.Predicate, specFactory SpecFactory, includeContentType bool, controlReceiver *control.Receiver) *Supervisor {
	return &Supervisor{
		exe:             exe,
		args:            args,
		env:             env,
		resolver:        resolver,
		predicate:       predicate,
		specFactory:     specFactory,
		includeContent:  includeContentType,
		controlReceiver: controlReceiver,
		active:          make(map[lsl.StreamKey]*ipc.Child),
		statusOut:       make(chan worker.Status, 256),
	}
}

// Status returns the fan-in channel of every active worker's status
// updates.
func (s *Supervisor) Status() <-chan worker.Status { return s.statusOut }

// Run drives the resolver loop and dispatcher loop concurrently until ctx
// is cancelled, then stops every active child and returns.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.resolverLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case errCh <- fmt.Errorf("supervisor: resolver loop: %w", err):
			default:
			}
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.dispatcherLoop(ctx)
	}()

	<-ctx.Done()
	s.stopAll()
	wg.Wait()
	close(s.statusOut)

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (s *Supervisor) resolverLoop(ctx context.Context) error {
	matches := s.resolver.ResolveContinuous(ctx, s.predicate, 1*time.Second)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case infos, ok := <-matches:
			if !ok {
				return nil
			}
			s.reconcile(ctx, infos)
		}
	}
}

// reconcile spawns a worker for every match whose StreamKey is new.
// Collection of self-terminated workers happens asynchronously in
// watchChild, not here.
func (s *Supervisor) reconcile(ctx context.Context, infos []lsl.StreamInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, info := range infos {
		key := lsl.NewStreamKey(info.Descriptor, s.includeContent)
		if _, ok := s.active[key]; ok {
			continue
		}
		spec := s.specFactory(info)
		name := spec.Descriptor.Name
		child, err := ipc.Spawn(ctx, s.exe, s.args(name), name, spec, s.env)
		if err != nil {
			log.Printf("supervisor: spawn %s: %v", name, err)
			continue
		}
		s.active[key] = child
		log.Printf("supervisor: spawned worker %q for stream key %+v", name, key)
		go s.watchChild(key, child)
	}
}

// watchChild forwards a child's status stream into the aggregator queue
// and removes it from the active set once its process exits.
func (s *Supervisor) watchChild(key lsl.StreamKey, child *ipc.Child) {
	for st := range child.Status() {
		select {
		case s.statusOut <- st:
		default:
			log.Printf("supervisor: status queue full, dropping update for %s", st.Name)
		}
	}
	_ = child.Wait()

	s.mu.Lock()
	delete(s.active, key)
	s.mu.Unlock()
}

// dispatcherLoop broadcasts every control message received from the
// Control Receiver to all currently-active workers' mailboxes. A nil
// controlReceiver means control is driven some other way (e.g. simulate's
// direct mailbox wiring) and this loop is a no-op.
func (s *Supervisor) dispatcherLoop(ctx context.Context) {
	if s.controlReceiver == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case tmsg, ok := <-s.controlReceiver.Out():
			if !ok {
				return
			}
			s.broadcast(tmsg.Message)
		}
	}
}

func (s *Supervisor) broadcast(msg control.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, child := range s.active {
		if err := child.Send(msg); err != nil {
			log.Printf("supervisor: broadcast to %+v: %v", key, err)
		}
	}
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	children := make([]*ipc.Child, 0, len(s.active))
	for _, c := range s.active {
		children = append(children, c)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range children {
		wg.Add(1)
		go func(c *ipc.Child) {
			defer wg.Done()
			_ = c.Stop(8 * time.Second)
		}(c)
	}
	wg.Wait()
}
