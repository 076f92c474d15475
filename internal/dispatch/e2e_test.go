package dispatch_test

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastythames/jobdispatch/internal/dispatch"
	"github.com/tastythames/jobdispatch/internal/jobspec"
	"github.com/tastythames/jobdispatch/internal/remote/sshtest"
)

// fakeSbatch records what it was given in the output directory and prints
// an increasing job id the way sbatch --parsable does.
const fakeSbatch = `
seq="$HOME/.sbatch_seq"
n=$(cat "$seq" 2>/dev/null || echo 100)
n=$((n + 1))
echo "$n" > "$seq"
printf '%s' "$JOB_COMMAND" > "$JOB_OUTDIR/command.txt"
printf '%s' "$JOB_RESOURCES" > "$JOB_OUTDIR/resources.txt"
printf '%s\n' "$@" > "$JOB_OUTDIR/argv.txt"
echo "$n;test"
`

func writeProject(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "demo")
	files := map[string]string{
		"jobfile.yaml": "data:\n  - inputs\n  - params.json\njob_command:\n  - echo hi\n  - echo bye\n",
		"demo.sh":      "#!/bin/sh\ncd \"$JOB_OUTDIR\" && $JOB_COMMAND\n",
		"params.json":  `{"epochs": 3}`,
		"inputs/a.txt": "alpha",
		"inputs/b.txt": "beta",
	}
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func run(t *testing.T, srv *sshtest.Server, dir string, now time.Time) (dispatch.Result, string) {
	t.Helper()
	var out bytes.Buffer
	d := dispatch.New(srv.Config(), dir, &out)
	d.Now = func() time.Time { return now }

	res, err := d.Run(context.Background(), jobspec.Overrides{Host: srv.Host()})
	require.NoError(t, err)
	return res, out.String()
}

func TestDispatchEndToEnd(t *testing.T) {
	srv := sshtest.Start(t)
	srv.Tool(t, "sbatch", fakeSbatch)
	dir := writeProject(t)
	jobRoot := filepath.Join(srv.Home, "jobs", "demo")

	first, out := run(t, srv, dir, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	require.Len(t, first.Records, 2)
	assert.Equal(t, "101", first.Records[0].JobID)
	assert.Equal(t, "102", first.Records[1].JobID)
	assert.Equal(t, 4, first.Sync.Uploaded)
	assert.True(t, strings.HasPrefix(first.Label, "20260102-030405.000000-"), first.Label)

	for i, cmd := range []string{"echo hi", "echo bye"} {
		outDir := filepath.Join(jobRoot, "out", first.Label, []string{"00", "01"}[i])
		assert.Equal(t, outDir, filepath.FromSlash(first.Records[i].OutputDir))

		b, err := os.ReadFile(filepath.Join(outDir, "command.txt"))
		require.NoError(t, err)
		assert.Equal(t, cmd, string(b))

		b, err = os.ReadFile(filepath.Join(outDir, "resources.txt"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(jobRoot, "data"), string(b))

		b, err = os.ReadFile(filepath.Join(outDir, "argv.txt"))
		require.NoError(t, err)
		assert.Equal(t, strings.Join([]string{
			"--parsable",
			"--export=ALL",
			"--job-name=demo",
			"--output=" + outDir + "/stdout.log",
			"--error=" + outDir + "/stderr.log",
			filepath.Join(jobRoot, "demo.sh"),
		}, "\n")+"\n", string(b))
	}

	for _, p := range []string{"data/inputs/a.txt", "data/inputs/b.txt", "data/params.json"} {
		assert.FileExists(t, filepath.Join(jobRoot, p))
	}
	fi, err := os.Stat(filepath.Join(jobRoot, "demo.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), fi.Mode().Perm())

	assert.Contains(t, out, "dispatched job=demo host="+srv.Host()+" scheduler=slurm label="+first.Label+" submissions=2\n")
	assert.Contains(t, out, `submitted job_id=102 index=01 command="echo bye"`)

	assert.EqualValues(t, 1, srv.Connections(), "one connection for the whole dispatch")
	assert.Eventually(t, func() bool { return srv.OpenConnections() == 0 }, 5*time.Second, 10*time.Millisecond)

	// Second run: nothing to transfer, history kept, new group added.
	second, out := run(t, srv, dir, time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC))

	assert.Zero(t, second.Sync.Bytes)
	assert.Equal(t, 4, second.Sync.Skipped)
	assert.Contains(t, out, "synced files=4 uploaded=0 skipped=4 bytes=0\n")
	assert.NotEqual(t, first.Label, second.Label)
	assert.Equal(t, "103", second.Records[0].JobID)

	groups, err := os.ReadDir(filepath.Join(jobRoot, "out"))
	require.NoError(t, err)
	assert.Len(t, groups, 2)
	assert.FileExists(t, filepath.Join(jobRoot, "out", first.Label, "00", "command.txt"))

	assert.EqualValues(t, 2, srv.Connections())
	assert.Eventually(t, func() bool { return srv.OpenConnections() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestDispatchMissingTool(t *testing.T) {
	srv := sshtest.Start(t)
	dir := writeProject(t)

	cfg := srv.Config()
	cfg.Scheduler = "pbs"
	d := dispatch.New(cfg, dir, nil)

	if _, err := exec.LookPath("qsub"); err == nil {
		t.Skip("qsub is installed on this machine")
	}
	_, err := d.Run(context.Background(), jobspec.Overrides{Host: srv.Host()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qsub not found")
	assert.Eventually(t, func() bool { return srv.OpenConnections() == 0 }, 5*time.Second, 10*time.Millisecond)
}
