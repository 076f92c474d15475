// Package manifest reads the per-project job manifest.
//
// A manifest is a plain declarative document, YAML (jobfile.yaml) or HCL
// (jobfile.hcl). It is decoded against a fixed schema; nothing in it is
// evaluated as code.
package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/tastythames/jobdispatch/internal/fault"
)

// Candidates are the conventional manifest names, in lookup order.
var Candidates = []string{"jobfile.yaml", "jobfile.yml", "jobfile.hcl"}

// Keys lists every key a manifest may declare.
var Keys = []string{"job_name", "data", "batch_script", "job_command", "scheduler", "exclude"}

type Manifest struct {
	// Path is the absolute path of the manifest file and Dir its directory.
	Path string
	Dir  string

	JobName     string
	Data        []string
	BatchScript string
	JobCommand  Commands
	Scheduler   string
	Exclude     []string
}

// Commands is job_command: either one string or a list of strings.
type Commands []string

// Locate returns the first conventional manifest present in dir.
func Locate(fs afero.Fs, dir string) (string, error) {
	for _, name := range Candidates {
		p := filepath.Join(dir, name)
		ok, err := afero.Exists(fs, p)
		if err != nil {
			return "", fault.Wrap(fault.ConfigMissing, err, "stat %s", p)
		}
		if ok {
			return p, nil
		}
	}
	return "", fault.New(fault.ConfigMissing, "no job manifest found in %s (looked for %s); pass --file",
		dir, strings.Join(Candidates, ", "))
}

// Load reads and decodes the manifest at path. The format is chosen by
// extension: .hcl is HCL, anything else YAML.
func Load(fs afero.Fs, path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fault.Wrap(fault.ConfigMissing, err, "manifest path %s", path)
	}

	fi, err := fs.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.New(fault.ConfigMissing, "manifest %s does not exist", abs)
		}
		return nil, fault.Wrap(fault.ConfigMissing, err, "stat manifest")
	}
	if fi.IsDir() {
		return nil, fault.New(fault.ConfigMissing, "manifest %s is a directory", abs)
	}

	b, err := afero.ReadFile(fs, abs)
	if err != nil {
		return nil, fault.Wrap(fault.ConfigMissing, err, "read manifest")
	}

	var m *Manifest
	if strings.EqualFold(filepath.Ext(abs), ".hcl") {
		m, err = decodeHCL(b, abs)
	} else {
		m, err = decodeYAML(b)
	}
	if err != nil {
		return nil, fault.Wrap(fault.ConfigInvalid, err, "manifest %s", abs)
	}

	m.Path = abs
	m.Dir = filepath.Dir(abs)
	m.normalize()
	return m, nil
}

// Resolve makes p absolute relative to the manifest's directory.
func (m *Manifest) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(m.Dir, p)
}

func (m *Manifest) normalize() {
	m.JobName = strings.TrimSpace(m.JobName)
	m.BatchScript = strings.TrimSpace(m.BatchScript)
	m.Scheduler = strings.ToLower(strings.TrimSpace(m.Scheduler))

	data := m.Data[:0]
	for _, d := range m.Data {
		if d = strings.TrimSpace(d); d != "" {
			data = append(data, d)
		}
	}
	m.Data = data
}
