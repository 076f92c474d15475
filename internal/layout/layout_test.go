package layout_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastythames/jobdispatch/internal/fault"
	"github.com/tastythames/jobdispatch/internal/layout"
	"github.com/tastythames/jobdispatch/internal/remote"
	"github.com/tastythames/jobdispatch/internal/remote/remotetest"
	"github.com/tastythames/jobdispatch/internal/remote/sshtest"
)

func TestFor(t *testing.T) {
	l := layout.For("/home/ada", "mnist")
	assert.Equal(t, layout.Layout{
		Root:   "/home/ada/jobs/mnist",
		Data:   "/home/ada/jobs/mnist/data",
		Out:    "/home/ada/jobs/mnist/out",
		Script: "/home/ada/jobs/mnist/mnist.sh",
	}, l)

	assert.Equal(t, "/home/ada/jobs/mnist/out/T/00", l.OutputDir("T", 0, 2))
	assert.Equal(t, "/home/ada/jobs/mnist/out/T/07", l.OutputDir("T", 7, 2))
	assert.Equal(t, "/home/ada/jobs/mnist/out/T/042", l.OutputDir("T", 42, 3))
}

func TestEnsureRunsOneMkdir(t *testing.T) {
	r := remotetest.New("/home/ada")

	l, err := layout.Ensure(context.Background(), r, "mnist")
	require.NoError(t, err)
	assert.Equal(t, layout.For("/home/ada", "mnist"), l)

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "mkdir -p -- /home/ada/jobs/mnist/data /home/ada/jobs/mnist/out", calls[0].Cmd)
}

func TestEnsureFailure(t *testing.T) {
	r := remotetest.New("/home/ada").
		On("mkdir", remote.Result{ExitStatus: 1, Stderr: "mkdir: Permission denied"}, nil)
	_, err := layout.Ensure(context.Background(), r, "mnist")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.ProvisionFailure))
	assert.Contains(t, err.Error(), "Permission denied")

	r = remotetest.New("/home/ada").On("mkdir", remote.Result{}, errors.New("broken pipe"))
	_, err = layout.Ensure(context.Background(), r, "mnist")
	assert.True(t, fault.Is(err, fault.ProvisionFailure))
}

func TestEnsureKeepsExistingContent(t *testing.T) {
	srv := sshtest.Start(t)
	s, err := remote.Open(context.Background(), srv.Config(), srv.Host())
	require.NoError(t, err)
	defer s.Close()

	_, err = layout.Ensure(context.Background(), s, "demo")
	require.NoError(t, err)

	old := filepath.Join(srv.Home, "jobs", "demo", "out", "earlier", "00", "result.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(old), 0o755))
	require.NoError(t, os.WriteFile(old, []byte("kept"), 0o644))

	_, err = layout.Ensure(context.Background(), s, "demo")
	require.NoError(t, err)

	b, err := os.ReadFile(old)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(b))
	assert.DirExists(t, filepath.Join(srv.Home, "jobs", "demo", "data"))
}
