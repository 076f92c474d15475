package remote_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastythames/jobdispatch/internal/config"
	"github.com/tastythames/jobdispatch/internal/remote"
)

const sshConfig = `
Host cluster
    HostName login.cluster.example.org
    User researcher
    Port 2222
    IdentityFile /keys/cluster_ed25519

Host *.internal
    User ops
`

func writeSSHConfig(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(p, []byte(sshConfig), 0o600))
	return p
}

func TestResolveTargetFromSSHConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SSHConfigFile = writeSSHConfig(t)
	cfg.IdentityFiles = []string{"/keys/extra"}

	got, err := remote.ResolveTarget("cluster", cfg)
	require.NoError(t, err)
	assert.Equal(t, remote.Target{
		Alias:         "cluster",
		User:          "researcher",
		Hostname:      "login.cluster.example.org",
		Port:          2222,
		IdentityFiles: []string{"/keys/cluster_ed25519", "/keys/extra"},
	}, got)
	assert.Equal(t, "login.cluster.example.org:2222", got.Addr())
	assert.Equal(t, "researcher@login.cluster.example.org:2222", got.String())
}

func TestResolveTargetExplicitPartsWin(t *testing.T) {
	cfg := config.Default()
	cfg.SSHConfigFile = writeSSHConfig(t)

	got, err := remote.ResolveTarget("me@cluster:2200", cfg)
	require.NoError(t, err)
	assert.Equal(t, "me", got.User)
	assert.Equal(t, "login.cluster.example.org", got.Hostname)
	assert.Equal(t, 2200, got.Port)

	got, err = remote.ResolveTarget("db.internal", cfg)
	require.NoError(t, err)
	assert.Equal(t, "ops", got.User)
	assert.Equal(t, cfg.Port, got.Port)
}

func TestResolveTargetWithoutSSHConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SSHConfigFile = filepath.Join(t.TempDir(), "missing")
	cfg.Port = 2022

	got, err := remote.ResolveTarget("u@10.0.0.5", cfg)
	require.NoError(t, err)
	assert.Equal(t, "u", got.User)
	assert.Equal(t, "10.0.0.5", got.Hostname)
	assert.Equal(t, 2022, got.Port)
	assert.NotEmpty(t, got.IdentityFiles)

	got, err = remote.ResolveTarget("u@[::1]:2200", cfg)
	require.NoError(t, err)
	assert.Equal(t, "::1", got.Hostname)
	assert.Equal(t, "[::1]:2200", got.Addr())
}

func TestResolveTargetRejects(t *testing.T) {
	cfg := config.Default()
	cfg.SSHConfigFile = ""
	for _, host := range []string{"", "  ", "u@", "host:0", "host:http", "host:70000"} {
		_, err := remote.ResolveTarget(host, cfg)
		assert.Error(t, err, "ResolveTarget(%q)", host)
	}
}
