// Package scheduler turns a Descriptor into the submit command of a cluster
// batch system and reads the job id back from its output.
package scheduler

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tastythames/jobdispatch/internal/fault"
	"github.com/tastythames/jobdispatch/internal/remote"
	"github.com/tastythames/jobdispatch/internal/suggest"
)

type Scheduler interface {
	// Name is the value used in manifests and on the command line.
	Name() string
	// Tool is the remote executable SubmitCommand runs.
	Tool() string
	// SubmitCommand is a complete remote shell command. Environment
	// bindings are exported to the job.
	SubmitCommand(d Descriptor) string
	ParseJobID(out string) (string, error)
}

var registry = map[string]Scheduler{
	"slurm": Slurm{},
	"pbs":   PBS{},
}

// Lookup returns the scheduler called name. Unknown names are ConfigInvalid.
func Lookup(name string) (Scheduler, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if s, ok := registry[key]; ok {
		return s, nil
	}
	return nil, fault.New(fault.ConfigInvalid, "unknown scheduler %q%s (known: %s)",
		name, suggest.Hint(key, Names()), strings.Join(Names(), ", "))
}

// Names lists the known schedulers, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Slurm submits with sbatch --parsable, which prints "<id>[;<cluster>]".
type Slurm struct{}

func (Slurm) Name() string { return "slurm" }
func (Slurm) Tool() string { return "sbatch" }

func (s Slurm) SubmitCommand(d Descriptor) string {
	return remote.WithEnv(d.pairs(), remote.Join(
		s.Tool(),
		"--parsable",
		"--export=ALL",
		"--job-name="+d.JobName,
		"--output="+d.Stdout,
		"--error="+d.Stderr,
		d.Script,
	))
}

var slurmID = regexp.MustCompile(`^[0-9]+(_[0-9]+)?$`)

func (Slurm) ParseJobID(out string) (string, error) {
	ln := firstLine(out)
	id, _, _ := strings.Cut(ln, ";")
	id = strings.TrimSpace(id)
	if !slurmID.MatchString(id) {
		return "", fmt.Errorf("sbatch: no job id in output %q", ln)
	}
	return id, nil
}

// PBS covers PBS Pro and Torque. qsub prints "<seq>.<server>".
type PBS struct{}

func (PBS) Name() string { return "pbs" }
func (PBS) Tool() string { return "qsub" }

func (p PBS) SubmitCommand(d Descriptor) string {
	return remote.WithEnv(d.pairs(), remote.Join(
		p.Tool(),
		"-V",
		"-N", d.JobName,
		"-o", d.Stdout,
		"-e", d.Stderr,
		d.Script,
	))
}

var pbsID = regexp.MustCompile(`^[0-9]+(\[[0-9]*\])?(\.[A-Za-z0-9._-]+)?$`)

func (PBS) ParseJobID(out string) (string, error) {
	ln := firstLine(out)
	if !pbsID.MatchString(ln) {
		return "", fmt.Errorf("qsub: no job id in output %q", ln)
	}
	return ln, nil
}

// firstLine returns the first non-blank line of out, trimmed.
func firstLine(out string) string {
	for _, ln := range strings.Split(out, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			return ln
		}
	}
	return ""
}
