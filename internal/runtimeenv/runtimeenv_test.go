package runtimeenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveHonorsEnvOverrides(t *testing.T) {
	root := t.TempDir()
	sockDir := filepath.Join(root, "custom-sockets")
	pidDir := filepath.Join(root, "custom-pids")

	t.Setenv(envRuntimeDir, root)
	t.Setenv(envSocketDir, sockDir)
	t.Setenv(envPidDir, pidDir)
	t.Setenv(envInstanceID, "inst-1")

	layout, err := Resolve("1.2.3")
	require.NoError(t, err)
	require.Equal(t, root, layout.Root)
	require.Equal(t, sockDir, layout.SocketDir)
	require.Equal(t, pidDir, layout.PidDir)
	require.Equal(t, "inst-1", layout.Instance.InstanceID)
	require.Equal(t, os.Getpid(), layout.Instance.AppPID)

	inst, err := ReadInstance(layout.InstanceDir)
	require.NoError(t, err)
	require.Equal(t, "inst-1", inst.InstanceID)
	require.Equal(t, "1.2.3", inst.Version)
}

func TestSocketAndPidPaths(t *testing.T) {
	require.Equal(t, filepath.Join("/tmp/s", "query.sock"), SocketPath("/tmp/s", "query"))
	require.Equal(t, filepath.Join("/tmp/p", "indexer.pid"), PidPath("/tmp/p", "indexer"))
}

func TestReconcileRemovesDeadSiblingsOnly(t *testing.T) {
	root := t.TempDir()

	live := filepath.Join(root, "live-instance")
	dead := filepath.Join(root, "dead-instance")
	unreadable := filepath.Join(root, "unreadable-instance")
	require.NoError(t, os.MkdirAll(live, 0o700))
	require.NoError(t, os.MkdirAll(dead, 0o700))
	require.NoError(t, os.MkdirAll(unreadable, 0o700))

	require.NoError(t, writeInstanceFile(live, Instance{InstanceID: "live", AppPID: os.Getpid()}))
	require.NoError(t, writeInstanceFile(dead, Instance{InstanceID: "dead", AppPID: 999999}))
	// unreadable has no instance.json at all.

	require.NoError(t, Reconcile(root, "current"))

	_, err := os.Stat(live)
	require.NoError(t, err, "live sibling must survive")
	_, err = os.Stat(dead)
	require.True(t, os.IsNotExist(err), "dead sibling must be removed")
	_, err = os.Stat(unreadable)
	require.NoError(t, err, "unreadable sibling is left alone")
}

func TestReconcileNeverRemovesCurrentInstance(t *testing.T) {
	root := t.TempDir()
	current := filepath.Join(root, "current")
	require.NoError(t, os.MkdirAll(current, 0o700))
	require.NoError(t, writeInstanceFile(current, Instance{InstanceID: "current", AppPID: 999999}))

	require.NoError(t, Reconcile(root, "current"))

	_, err := os.Stat(current)
	require.NoError(t, err)
}
