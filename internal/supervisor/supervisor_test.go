package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCrashIsolation is the seed scenario from spec.md §8 #1: a crashing
// service is isolated from a healthy one.
func TestCrashIsolation(t *testing.T) {
	sup := New(t.TempDir(), t.TempDir(), nil)
	sup.AddService("crasher", "/usr/bin/false")
	sup.AddService("healthy", "/bin/cat")

	events := sup.Subscribe()
	ok := sup.StartAll()
	require.True(t, ok)

	deadline := time.After(2 * time.Second)
	sawCrasher := false
	sawHealthyCrash := false
loop:
	for {
		select {
		case ev := <-events:
			if ev.Kind == EventServiceCrashed {
				if ev.Service == "crasher" {
					sawCrasher = true
				}
				if ev.Service == "healthy" {
					sawHealthyCrash = true
				}
			}
			if sawCrasher {
				break loop
			}
		case <-deadline:
			break loop
		}
	}

	require.True(t, sawCrasher, "expected crasher to report at least one crash")
	require.False(t, sawHealthyCrash, "healthy service must not crash")

	sup.StopAll()
}

func TestRestartDelayShapeByCount(t *testing.T) {
	d1 := restartDelay(1)
	require.Less(t, d1, 125*time.Millisecond+time.Millisecond)

	d2 := restartDelay(2)
	require.GreaterOrEqual(t, d2, time.Second)
	require.Less(t, d2, 2*time.Second+250*time.Millisecond)

	d3 := restartDelay(3)
	require.GreaterOrEqual(t, d3, 2*time.Second)
	require.Less(t, d3, 4*time.Second+time.Second)
}

func TestAddServiceIsIdempotentAndResetsCounters(t *testing.T) {
	sup := New(t.TempDir(), t.TempDir(), nil)
	sup.AddService("svc", "/bin/true")

	sup.mu.Lock()
	svc := sup.services["svc"]
	sup.mu.Unlock()

	svc.mu.Lock()
	svc.crashCount = 2
	svc.state = StateGivingUp
	svc.mu.Unlock()

	sup.AddService("svc", "/bin/true2")

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Equal(t, 0, svc.crashCount)
	require.Equal(t, StateRegistered, svc.state)
	require.Equal(t, "/bin/true2", svc.executablePath)
}
