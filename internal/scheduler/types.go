package scheduler

// Names of the per-command files the scheduler writes into the output
// directory.
const (
	StdoutName = "stdout.log"
	StderrName = "stderr.log"
)

// Environment passed to every submitted job. The batch script reads these.
const (
	EnvCommand   = "JOB_COMMAND"
	EnvResources = "JOB_RESOURCES"
	EnvOutDir    = "JOB_OUTDIR"
)

type EnvVar struct {
	Name  string
	Value string
}

// Descriptor is everything a scheduler needs to queue one command.
type Descriptor struct {
	JobName string
	Stdout  string
	Stderr  string
	Script  string
	Env     []EnvVar
}

// ForCommand builds the descriptor of one command whose output goes to
// outDir. resources is the remote data directory.
func ForCommand(jobName, script, resources, outDir, command string) Descriptor {
	return Descriptor{
		JobName: jobName,
		Stdout:  outDir + "/" + StdoutName,
		Stderr:  outDir + "/" + StderrName,
		Script:  script,
		Env: []EnvVar{
			{Name: EnvCommand, Value: command},
			{Name: EnvResources, Value: resources},
			{Name: EnvOutDir, Value: outDir},
		},
	}
}

func (d Descriptor) pairs() [][2]string {
	out := make([][2]string, len(d.Env))
	for i, e := range d.Env {
		out[i] = [2]string{e.Name, e.Value}
	}
	return out
}
