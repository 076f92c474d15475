package jobspec

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/tastythames/jobdispatch/internal/fault"
	"github.com/tastythames/jobdispatch/internal/manifest"
)

// JobSpec is everything a dispatch needs to know about one job. It is
// produced by Resolve and not modified afterwards.
type JobSpec struct {
	JobName      string   `yaml:"job_name"`
	RemoteHost   string   `yaml:"remote_host"`
	ManifestPath string   `yaml:"manifest"`
	DataFiles    []string `yaml:"data"`
	BatchScript  string   `yaml:"batch_script"`
	Commands     []string `yaml:"job_command"`
	Scheduler    string   `yaml:"scheduler,omitempty"`
	Exclude      []string `yaml:"exclude,omitempty"`
}

// Overrides are explicit values from the command line. Empty fields are unset.
type Overrides struct {
	Host         string
	ManifestPath string
	JobName      string
	BatchScript  string
	Commands     []string
	Scheduler    string
}

var validJobName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type Resolver struct {
	FS afero.Fs
	// WorkDir anchors the manifest lookup and relative override paths.
	WorkDir string
}

func NewResolver(workDir string) *Resolver {
	return &Resolver{FS: afero.NewOsFs(), WorkDir: workDir}
}

// Resolve merges overrides, the manifest and filesystem defaults.
func (r *Resolver) Resolve(o Overrides) (JobSpec, error) {
	manifestPath := o.ManifestPath
	if manifestPath != "" {
		manifestPath = r.abs(manifestPath)
	} else {
		p, err := manifest.Locate(r.FS, r.WorkDir)
		if err != nil {
			return JobSpec{}, err
		}
		manifestPath = p
	}

	m, err := manifest.Load(r.FS, manifestPath)
	if err != nil {
		return JobSpec{}, err
	}

	spec := JobSpec{
		RemoteHost:   strings.TrimSpace(o.Host),
		ManifestPath: m.Path,
		Exclude:      append([]string(nil), m.Exclude...),
	}

	spec.JobName = firstNonEmpty(o.JobName, m.JobName, filepath.Base(m.Dir))
	if !validJobName.MatchString(spec.JobName) {
		return JobSpec{}, fault.New(fault.ConfigInvalid,
			"job name %q may only contain letters, digits, '.', '_' and '-'", spec.JobName)
	}

	switch {
	case o.BatchScript != "":
		spec.BatchScript = r.abs(o.BatchScript)
	case m.BatchScript != "":
		spec.BatchScript = m.Resolve(m.BatchScript)
	default:
		spec.BatchScript = m.Resolve(spec.JobName + ".sh")
	}
	if err := r.requireFile(spec.BatchScript, "batch script"); err != nil {
		return JobSpec{}, err
	}

	for _, d := range m.Data {
		p := m.Resolve(d)
		if err := r.requireExists(p, "data path"); err != nil {
			return JobSpec{}, err
		}
		spec.DataFiles = append(spec.DataFiles, p)
	}

	switch {
	case len(o.Commands) > 0:
		spec.Commands = append([]string(nil), o.Commands...)
	case len(m.JobCommand) > 0:
		spec.Commands = append([]string(nil), m.JobCommand...)
	default:
		spec.Commands = []string{""}
	}

	spec.Scheduler = firstNonEmpty(strings.ToLower(o.Scheduler), m.Scheduler)

	return spec, nil
}

func (r *Resolver) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(r.WorkDir, p)
}

func (r *Resolver) requireFile(p, what string) error {
	fi, err := r.FS.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return fault.New(fault.FileMissing, "%s %s does not exist", what, p)
		}
		return fault.Wrap(fault.FileMissing, err, "%s %s", what, p)
	}
	if fi.IsDir() {
		return fault.New(fault.FileMissing, "%s %s is a directory", what, p)
	}
	return nil
}

func (r *Resolver) requireExists(p, what string) error {
	ok, err := afero.Exists(r.FS, p)
	if err != nil {
		return fault.Wrap(fault.FileMissing, err, "%s %s", what, p)
	}
	if !ok {
		return fault.New(fault.FileMissing, "%s %s does not exist", what, p)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
