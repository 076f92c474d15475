package manifest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastythames/jobdispatch/internal/fault"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestLoadYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/proj/mnist/jobfile.yaml", `
job_name: mnist
data:
  - simple.py
  - " datasets/ "
batch_script: run.sh
job_command:
  - python simple.py --epochs 1
  - python simple.py --epochs 2
scheduler: PBS
exclude: ["*.log"]
`)

	m, err := Load(fs, "/proj/mnist/jobfile.yaml")
	require.NoError(t, err)

	want := &Manifest{
		Path:        "/proj/mnist/jobfile.yaml",
		Dir:         "/proj/mnist",
		JobName:     "mnist",
		Data:        []string{"simple.py", "datasets/"},
		BatchScript: "run.sh",
		JobCommand:  Commands{"python simple.py --epochs 1", "python simple.py --epochs 2"},
		Scheduler:   "pbs",
		Exclude:     []string{"*.log"},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadYAMLSingleCommand(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/p/jobfile.yaml", "job_command: echo hi\n")

	m, err := Load(fs, "/p/jobfile.yaml")
	require.NoError(t, err)
	assert.Equal(t, Commands{"echo hi"}, m.JobCommand)
	assert.Empty(t, m.JobName)
}

func TestLoadYAMLEmptyDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/p/jobfile.yaml", "")

	m, err := Load(fs, "/p/jobfile.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/p", m.Dir)
	assert.Empty(t, m.JobCommand)
}

func TestLoadYAMLInvalid(t *testing.T) {
	cases := map[string]struct {
		content string
		hint    string
	}{
		"syntax":        {content: "job_name: [unterminated\n"},
		"unknown key":   {content: "jobname: x\n", hint: `did you mean "job_name"?`},
		"command shape": {content: "job_command:\n  run: x\n"},
		"data shape":    {content: "data: 3\n"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFile(t, fs, "/p/jobfile.yaml", tc.content)

			_, err := Load(fs, "/p/jobfile.yaml")
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.ConfigInvalid), "kind = %v", fault.KindOf(err))
			if tc.hint != "" {
				assert.Contains(t, err.Error(), tc.hint)
			}
		})
	}
}

func TestLoadHCL(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/p/jobfile.hcl", `
job_name     = "mnist"
data         = ["simple.py"]
batch_script = "mnist.sh"
job_command  = ["echo hi", "echo bye"]
`)

	m, err := Load(fs, "/p/jobfile.hcl")
	require.NoError(t, err)
	assert.Equal(t, "mnist", m.JobName)
	assert.Equal(t, []string{"simple.py"}, m.Data)
	assert.Equal(t, "mnist.sh", m.BatchScript)
	assert.Equal(t, Commands{"echo hi", "echo bye"}, m.JobCommand)
}

func TestLoadHCLSingleCommand(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/p/jobfile.hcl", `job_command = "echo hi"`)

	m, err := Load(fs, "/p/jobfile.hcl")
	require.NoError(t, err)
	assert.Equal(t, Commands{"echo hi"}, m.JobCommand)
}

func TestLoadHCLRejectsEvaluation(t *testing.T) {
	cases := map[string]string{
		"function call": `job_name = upper("mnist")`,
		"variable":      `job_command = var.cmd`,
		"unknown key":   `job_nam = "x"`,
		"syntax":        `job_name = `,
		"wrong type":    `job_command = 3`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFile(t, fs, "/p/jobfile.hcl", src)

			_, err := Load(fs, "/p/jobfile.hcl")
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.ConfigInvalid), "kind = %v: %v", fault.KindOf(err), err)
		})
	}
}

func TestLoadMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Load(fs, "/nowhere/jobfile.yaml")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.ConfigMissing))

	require.NoError(t, fs.MkdirAll("/dir/jobfile.yaml", 0o755))
	_, err = Load(fs, "/dir/jobfile.yaml")
	assert.True(t, fault.Is(err, fault.ConfigMissing))
}

func TestLocate(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Locate(fs, "/p")
	assert.True(t, fault.Is(err, fault.ConfigMissing))

	writeFile(t, fs, "/p/jobfile.hcl", "")
	p, err := Locate(fs, "/p")
	require.NoError(t, err)
	assert.Equal(t, "/p/jobfile.hcl", p)

	writeFile(t, fs, "/p/jobfile.yaml", "")
	p, err = Locate(fs, "/p")
	require.NoError(t, err)
	assert.Equal(t, "/p/jobfile.yaml", p)
}

func TestResolve(t *testing.T) {
	m := &Manifest{Dir: "/proj/mnist"}
	assert.Equal(t, "/proj/mnist/data/a.csv", m.Resolve("data/a.csv"))
	assert.Equal(t, "/proj/shared/b.csv", m.Resolve("../shared/b.csv"))
	assert.Equal(t, "/abs/c.csv", m.Resolve("/abs/c.csv"))
}
