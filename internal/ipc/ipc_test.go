package ipc

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labstreaming/lsltools/internal/control"
	"github.com/labstreaming/lsltools/internal/lsl"
	"github.com/labstreaming/lsltools/internal/worker"
)

// TestMain re-execs this test binary as the "helper process" child when
// GO_WANT_HELPER_PROCESS is set, following the standard library's own
// os/exec test pattern for spawning a real child without a separate
// fixture binary.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		runHelperProcess()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// runHelperProcess reads its worker.Spec from SpecFD, announces readiness,
// then relays every control.Message it reads from stdin back out as a
// Status.Err string so the parent test can observe round-tripped messages,
// exiting on STOP.
func runHelperProcess() {
	spec, err := ReadSpecFD()
	if err != nil {
		os.Exit(1)
	}
	statusW := NewStdoutStatusWriter(os.Stdout)
	_ = statusW.Write(worker.Status{Name: spec.Descriptor.Name, Phase: worker.PhaseIdle, Ready: true})

	mb := NewStdinMailbox(os.Stdin)
	for {
		msg, ok := mb.Recv(context.Background())
		if !ok {
			return
		}
		_ = statusW.Write(worker.Status{Name: spec.Descriptor.Name, Err: msg.State.String()})
		if msg.State == control.Stop {
			return
		}
	}
}

func TestSpawnRoundTrip(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	spec := worker.Spec{Descriptor: lsl.StreamDescriptor{Name: "helper-stream", ChannelCount: 1}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	child, err := Spawn(ctx, exe, []string{"-test.run=TestMain"}, "helper", spec,
		map[string]string{"GO_WANT_HELPER_PROCESS": "1"})
	require.NoError(t, err)

	first := <-child.Status()
	assert.Equal(t, "helper-stream", first.Name)
	assert.True(t, first.Ready)

	require.NoError(t, child.Send(control.NewStart(0, 0)))
	second := <-child.Status()
	assert.Equal(t, control.Start.String(), second.Err)

	require.NoError(t, child.Send(control.NewStop(0)))
	third := <-child.Status()
	assert.Equal(t, control.Stop.String(), third.Err)

	_, ok := <-child.Status()
	assert.False(t, ok, "status channel should close once the child exits")

	require.NoError(t, child.Wait())
}
